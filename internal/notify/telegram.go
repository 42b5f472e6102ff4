package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Telegram sends operator alerts to a fixed chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("initializing Telegram bot: %w", err)
	}
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: log.With().Str("component", "notifier").Logger(),
	}, nil
}

func (t *Telegram) Notify(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Msg("Failed to send Telegram notification")
		return fmt.Errorf("sending Telegram message: %w", err)
	}
	return nil
}

// Noop discards notifications; used when no Telegram chat is configured
// so callers never have to nil-check the notifier.
type Noop struct{}

func (Noop) Notify(context.Context, string) error { return nil }
