package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/hamed0406/healthagent/internal/domain"
)

// Telegram sends events as chat messages through the Bot API.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
}

// NewTelegram builds a sender for chatID. serverURL overrides the Bot API
// endpoint and is empty in production.
func NewTelegram(token string, chatID int64, serverURL string) (*Telegram, error) {
	opts := []bot.Option{bot.WithSkipGetMe()}
	if serverURL != "" {
		opts = append(opts, bot.WithServerURL(serverURL))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Deliver(ctx context.Context, ev domain.Event) error {
	title, text := Format(ev)
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   title + "\n" + text,
	})
	return err
}
