package notifications

import (
	"context"
	"fmt"
	"html"

	"github.com/angelmondragon/giftdrop-backend/pkg/telegram"
)

type messenger interface {
	SendMessage(ctx context.Context, msg telegram.Message) error
}

// Notifier renders lifecycle messages for the bot chat.
type Notifier struct {
	bot    messenger
	appURL string
}

// NewNotifier builds a Notifier; appURL, when set, is attached as an
// "Open" button to every message.
func NewNotifier(bot messenger, appURL string) *Notifier {
	return &Notifier{bot: bot, appURL: appURL}
}

// NotifyPurchase tells the buyer their payment went through.
func (n *Notifier) NotifyPurchase(ctx context.Context, telegramID int64, giftName string) error {
	text := fmt.Sprintf("✅ You have purchased a gift of <b>%s</b>", html.EscapeString(giftName))
	return n.send(ctx, telegramID, text, "Open Gifts")
}

// NotifyReceipt tells the original buyer who received their gift.
func (n *Notifier) NotifyReceipt(ctx context.Context, buyerTelegramID int64, giftName, receiverName string) error {
	text := fmt.Sprintf("🌟 %s has received a gift (<b>%s</b>) from you!",
		html.EscapeString(receiverName), html.EscapeString(giftName))
	return n.send(ctx, buyerTelegramID, text, "Open Profile")
}

func (n *Notifier) send(ctx context.Context, chatID int64, text, label string) error {
	msg := telegram.Message{ChatID: chatID, Text: text}
	if n.appURL != "" {
		msg.Buttons = []telegram.InlineButton{{Text: label, URL: n.appURL}}
	}
	return n.bot.SendMessage(ctx, msg)
}
