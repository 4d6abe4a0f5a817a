// Package telegram holds the Bot API client used for notifications and the
// WebApp init data verifier used to identify mini-app users.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/angelmondragon/giftdrop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
)

const defaultTimeout = 10 * time.Second

// Bot sends messages through the Telegram Bot API. It never polls for updates.
type Bot struct {
	api     *tgbot.Bot
	botName string
}

// NewBot builds a Bot API client from config. The token is not checked
// against getMe so workers can start while Telegram is unreachable.
func NewBot(cfg config.TelegramConfig, httpClient *http.Client) (*Bot, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	opts := []tgbot.Option{
		tgbot.WithSkipGetMe(),
		tgbot.WithHTTPClient(timeout, httpClient),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"); base != "" {
		opts = append(opts, tgbot.WithServerURL(base))
	}
	api, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Bot{api: api, botName: cfg.BotName}, nil
}

// InlineButton is a single url button rendered below a message.
type InlineButton struct {
	Text string
	URL  string
}

// Message is an HTML formatted chat message.
type Message struct {
	ChatID  int64
	Text    string
	Buttons []InlineButton
}

// SendMessage delivers msg and surfaces Bot API failures as coded errors.
func (b *Bot) SendMessage(ctx context.Context, msg Message) error {
	if msg.ChatID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "chat id is required")
	}
	params := &tgbot.SendMessageParams{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		ParseMode: tgmodels.ParseModeHTML,
	}
	if len(msg.Buttons) > 0 {
		rows := make([][]tgmodels.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, button := range msg.Buttons {
			rows = append(rows, []tgmodels.InlineKeyboardButton{{Text: button.Text, URL: button.URL}})
		}
		params.ReplyMarkup = &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
	}
	if _, err := b.api.SendMessage(ctx, params); err != nil {
		return rejection(err)
	}
	return nil
}

// rejection maps a Bot API failure to a coded error. Chats that were never
// opened or that blocked the bot will not start accepting on retry.
func rejection(err error) error {
	switch {
	case errors.Is(err, tgbot.ErrorForbidden):
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "sendMessage rejected")
	case errors.Is(err, tgbot.ErrorBadRequest), tgbot.IsMigrateError(err):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "sendMessage rejected")
	default:
		// Flood waits and transport failures clear up on their own.
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sendMessage")
	}
}

// MiniAppURL links to the bot's mini app, optionally with a start parameter.
func (b *Bot) MiniAppURL(startParam string) string {
	if b.botName == "" {
		return ""
	}
	base := fmt.Sprintf("https://t.me/%s/app", strings.TrimPrefix(b.botName, "@"))
	if startParam == "" {
		return base
	}
	return base + "?startapp=" + startParam
}
