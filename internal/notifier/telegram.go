package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/retry"
)

// ErrChannelUnreachable is wrapped by every failed delivery.
var ErrChannelUnreachable = errors.New("channel unreachable")

// DeliveryError reports a failed send to one chat.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to chat %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// TelegramNotifier sends messages through the Telegram Bot API.
type TelegramNotifier struct {
	bot       *bot.Bot
	retries   int
	baseDelay time.Duration
}

// NewTelegramNotifier creates a notifier. Extra bot options (handlers,
// server URL) are passed through to the bot client.
func NewTelegramNotifier(token string, retries int, opts ...bot.Option) (*TelegramNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	b, err := bot.New(token, append([]bot.Option{bot.WithSkipGetMe()}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	if retries < 0 {
		retries = 0
	}
	return &TelegramNotifier{bot: b, retries: retries, baseDelay: time.Second}, nil
}

// Bot exposes the underlying client for command registration.
func (t *TelegramNotifier) Bot() *bot.Bot { return t.bot }

// Send delivers an HTML message to chatID, retrying transient failures.
func (t *TelegramNotifier) Send(ctx context.Context, chatID int64, text string) error {
	attempt := 0
	err := retry.Do(ctx, t.retries+1, t.baseDelay, func() error {
		attempt++
		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, bot.ErrorForbidden) || errors.Is(err, bot.ErrorBadRequest) || errors.Is(err, bot.ErrorNotFound) {
			return retry.Permanent(err)
		}
		l := logger.GetLogger()
		l.Warn().Err(err).Int64("chat_id", chatID).Int("attempt", attempt).Msg("telegram send failed")
		return err
	})
	if err != nil {
		return &DeliveryError{ChatID: chatID, Err: fmt.Errorf("%w: %v", ErrChannelUnreachable, err)}
	}
	return nil
}

// Start runs the update loop until ctx is cancelled.
func (t *TelegramNotifier) Start(ctx context.Context) {
	l := logger.GetLogger()
	l.Info().Msg("telegram polling started")
	t.bot.Start(ctx)
	l.Info().Msg("telegram polling stopped")
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, chatID int64, text string) error {
	l := logger.GetLogger()
	l.Info().Int64("chat_id", chatID).Str("text", text).Msg("dry-run message")
	return nil
}
