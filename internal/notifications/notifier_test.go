package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/giftdrop-backend/pkg/telegram"
)

type captureBot struct {
	msgs []telegram.Message
}

func (c *captureBot) SendMessage(_ context.Context, msg telegram.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestNotifierTexts(t *testing.T) {
	bot := &captureBot{}
	n := NewNotifier(bot, "https://t.me/giftdrop_bot/app")

	require.NoError(t, n.NotifyPurchase(context.Background(), 42, "Golden Rose"))
	require.NoError(t, n.NotifyReceipt(context.Background(), 42, "Golden Rose", "@bob"))

	require.Len(t, bot.msgs, 2)
	require.Equal(t, int64(42), bot.msgs[0].ChatID)
	require.Equal(t, "✅ You have purchased a gift of <b>Golden Rose</b>", bot.msgs[0].Text)
	require.Equal(t, "🌟 @bob has received a gift (<b>Golden Rose</b>) from you!", bot.msgs[1].Text)
	require.Equal(t, "https://t.me/giftdrop_bot/app", bot.msgs[0].Buttons[0].URL)
}

func TestNotifierEscapesNames(t *testing.T) {
	bot := &captureBot{}
	n := NewNotifier(bot, "")

	require.NoError(t, n.NotifyReceipt(context.Background(), 1, "<Rose>", "Tom & Jerry"))
	require.Equal(t, "🌟 Tom &amp; Jerry has received a gift (<b>&lt;Rose&gt;</b>) from you!", bot.msgs[0].Text)
	require.Empty(t, bot.msgs[0].Buttons)
}
