package notifier

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/history"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/registry"
)

// Callback data prefixes used by the /alerts keyboard.
const (
	callbackToggle = "toggle_alert_"
	callbackSave   = "save_alerts"
)

const whalesShown = 5

const helpText = `🤖 <b>Wallet Sentinel</b>

Available commands:
/watch &lt;address&gt; - Start tracking a wallet
/unwatch &lt;address&gt; - Stop tracking a wallet
/alerts - Configure alert preferences
/status - Show tracked wallets and preferences
/whales - Show latest whale movements
/help - Show this message`

// Analyzer produces an on-demand analysis of one wallet.
type Analyzer interface {
	Analyze(ctx context.Context, address string) (*model.Analysis, error)
}

// QuotaReporter reports how many alerts a chat received in the current window.
type QuotaReporter interface {
	SentLastHour(chatID int64) int
}

// Reply is the response to a command or callback.
type Reply struct {
	Text     string
	Keyboard *models.InlineKeyboardMarkup
}

// Commands implements the bot command surface.
type Commands struct {
	Registry   *registry.Registry
	History    *history.Store
	Analyzer   Analyzer
	Quota      QuotaReporter
	MaxPerHour int
}

// Handle processes a text command from chatID.
func (c *Commands) Handle(ctx context.Context, chatID int64, text string) Reply {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Reply{Text: helpText}
	}
	// "/watch@SentinelBot" addresses the bot explicitly in groups.
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	args := fields[1:]

	switch cmd {
	case "/start", "/help":
		c.Registry.Subscribe(ctx, chatID)
		return Reply{Text: helpText}
	case "/watch":
		return c.watch(ctx, chatID, args)
	case "/unwatch":
		return c.unwatch(ctx, chatID, args)
	case "/alerts":
		sub := c.Registry.Subscribe(ctx, chatID)
		return Reply{Text: "🔔 <b>Alert Preferences</b>\n\nTap a type to enable or disable it.", Keyboard: preferencesKeyboard(sub)}
	case "/status":
		sub := c.Registry.Subscribe(ctx, chatID)
		sent := 0
		if c.Quota != nil {
			sent = c.Quota.SentLastHour(chatID)
		}
		return Reply{Text: FormatStatus(sub, sent, c.MaxPerHour)}
	case "/whales":
		recs := c.History.List(history.Filter{Type: model.AlertWhaleMovement, Limit: whalesShown})
		return Reply{Text: FormatWhales(recs)}
	default:
		return Reply{Text: "Unknown command.\n\n" + helpText}
	}
}

func (c *Commands) watch(ctx context.Context, chatID int64, args []string) Reply {
	if len(args) != 1 {
		return Reply{Text: "Usage: /watch &lt;wallet_address&gt;"}
	}
	address, err := chain.CanonicalAddress(args[0])
	if err != nil {
		return Reply{Text: "❌ Invalid Ethereum address."}
	}

	if err := c.Registry.Watch(ctx, chatID, address); err != nil {
		if errors.Is(err, registry.ErrAlreadyWatched) {
			return Reply{Text: fmt.Sprintf("Wallet <code>%s</code> is already being tracked.", address)}
		}
		return Reply{Text: "❌ Failed to track wallet."}
	}

	if c.Analyzer == nil {
		return Reply{Text: fmt.Sprintf("✅ Now tracking wallet: <code>%s</code>", address)}
	}
	analysis, err := c.Analyzer.Analyze(ctx, address)
	if err != nil {
		l := logger.GetLogger()
		l.Warn().Err(err).Str("wallet", address).Int64("chat_id", chatID).Msg("initial analysis failed")
		return Reply{Text: fmt.Sprintf("✅ Now tracking wallet: <code>%s</code>\n\nInitial analysis unavailable: %s",
			address, html.EscapeString(err.Error()))}
	}
	return Reply{Text: FormatAnalysis(address, analysis)}
}

func (c *Commands) unwatch(ctx context.Context, chatID int64, args []string) Reply {
	if len(args) != 1 {
		return Reply{Text: "Usage: /unwatch &lt;wallet_address&gt;"}
	}
	address, err := chain.CanonicalAddress(args[0])
	if err != nil {
		return Reply{Text: "❌ Invalid Ethereum address."}
	}
	if err := c.Registry.Unwatch(ctx, chatID, address); err != nil {
		return Reply{Text: fmt.Sprintf("Wallet <code>%s</code> is not being tracked.", address)}
	}
	return Reply{Text: fmt.Sprintf("✅ Stopped tracking wallet: <code>%s</code>", address)}
}

// HandleCallback processes an inline keyboard press from chatID.
func (c *Commands) HandleCallback(ctx context.Context, chatID int64, data string) Reply {
	switch {
	case data == callbackSave:
		return Reply{Text: "✅ Alert preferences saved."}
	case strings.HasPrefix(data, callbackToggle):
		t, ok := model.ParseAlertType(strings.TrimPrefix(data, callbackToggle))
		if !ok {
			return Reply{Text: "Unknown alert type."}
		}
		c.Registry.TogglePreference(ctx, chatID, t)
		sub, _ := c.Registry.Get(chatID)
		return Reply{Text: "🔔 <b>Alert Preferences</b>\n\nTap a type to enable or disable it.", Keyboard: preferencesKeyboard(sub)}
	default:
		return Reply{Text: "Unknown action."}
	}
}

func preferencesKeyboard(sub *model.Subscriber) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(model.AlertTypes)+1)
	for _, t := range model.AlertTypes {
		mark := "❌"
		if sub == nil || sub.Enabled(t) {
			mark = "✅"
		}
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         fmt.Sprintf("%s %s", mark, TitleCase(string(t))),
			CallbackData: callbackToggle + string(t),
		}})
	}
	rows = append(rows, []models.InlineKeyboardButton{{Text: "💾 Save", CallbackData: callbackSave}})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// Register attaches the command and callback handlers to b.
func (c *Commands) Register(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/", bot.MatchTypePrefix, c.onMessage)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackToggle, bot.MatchTypePrefix, c.onCallback)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackSave, bot.MatchTypeExact, c.onCallback)
}

func (c *Commands) onMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	l := logger.GetLogger()
	l.Info().Int64("chat_id", chatID).Str("command", update.Message.Text).Msg("received command")

	reply := c.Handle(ctx, chatID, update.Message.Text)
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      reply.Text,
		ParseMode: models.ParseModeHTML,
	}
	if reply.Keyboard != nil {
		params.ReplyMarkup = reply.Keyboard
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		l.Error().Err(err).Int64("chat_id", chatID).Msg("send reply")
	}
}

func (c *Commands) onCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	q := update.CallbackQuery
	if q == nil {
		return
	}
	l := logger.GetLogger()
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: q.ID}); err != nil {
		l.Warn().Err(err).Msg("answer callback query")
	}

	msg := q.Message.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID
	reply := c.HandleCallback(ctx, chatID, q.Data)

	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: msg.ID,
		Text:      reply.Text,
		ParseMode: models.ParseModeHTML,
	}
	if reply.Keyboard != nil {
		params.ReplyMarkup = reply.Keyboard
	}
	if _, err := b.EditMessageText(ctx, params); err != nil {
		l.Error().Err(err).Int64("chat_id", chatID).Msg("edit preferences message")
	}
}
