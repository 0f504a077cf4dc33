package notify

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"timeblocker/internal/model"
)

// TelegramSender is the part of the bot API used for delivery.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers to the user's Telegram chat when one is linked.
type Telegram struct {
	api TelegramSender
}

// NewTelegram wraps a bot API client, usually the one the companion bot polls with.
func NewTelegram(api TelegramSender) *Telegram {
	return &Telegram{api: api}
}

func (t *Telegram) Notify(_ context.Context, user *model.User, msg Message) error {
	if user.TelegramChatID == nil {
		return nil
	}
	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(msg.Title), html.EscapeString(msg.Body))
	out := tgbotapi.NewMessage(*user.TelegramChatID, text)
	out.ParseMode = tgbotapi.ModeHTML
	if _, err := t.api.Send(out); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
