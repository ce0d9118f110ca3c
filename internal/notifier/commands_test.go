package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletSentinel/internal/history"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/registry"
)

const wallet = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

type fakeAnalyzer struct {
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, address string) (*model.Analysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.Analysis{
		Wallet: &model.WalletSnapshot{Address: address, Balance: decimal.NewFromInt(3), USDValue: 9000},
		Classification: model.Classification{
			WalletType: model.WalletWhale,
			Behavior:   model.BehaviorStable,
			RiskLevel:  model.RiskLow,
			RiskScore:  0.2,
			Confidence: 0.9,
		},
	}, nil
}

type fixedQuota int

func (q fixedQuota) SentLastHour(int64) int { return int(q) }

func newCommands() (*Commands, *fakeAnalyzer) {
	a := &fakeAnalyzer{}
	return &Commands{
		Registry:   registry.New(nil),
		History:    history.NewStore(nil),
		Analyzer:   a,
		Quota:      fixedQuota(2),
		MaxPerHour: 10,
	}, a
}

func TestHandle_Watch(t *testing.T) {
	ctx := context.Background()
	c, a := newCommands()

	r := c.Handle(ctx, 42, "/watch "+strings.ToLower(wallet))
	assert.Contains(t, r.Text, "Now tracking wallet: <code>"+wallet+"</code>")
	assert.Contains(t, r.Text, "Type: whale")
	assert.Contains(t, r.Text, "Confidence: 90.00%")
	assert.Equal(t, 1, a.calls)

	sub, ok := c.Registry.Get(42)
	require.True(t, ok)
	assert.Equal(t, []string{wallet}, sub.Wallets)

	r = c.Handle(ctx, 42, "/watch "+wallet)
	assert.Contains(t, r.Text, "already being tracked")
	assert.Equal(t, 1, a.calls)
}

func TestHandle_WatchValidation(t *testing.T) {
	ctx := context.Background()
	c, _ := newCommands()

	assert.Contains(t, c.Handle(ctx, 1, "/watch").Text, "Usage")
	assert.Contains(t, c.Handle(ctx, 1, "/watch 0x1234").Text, "Invalid")
	_, ok := c.Registry.Get(1)
	assert.False(t, ok)
}

func TestHandle_WatchAnalysisFailureStillTracks(t *testing.T) {
	ctx := context.Background()
	c, a := newCommands()
	a.err = errors.New("chain data unavailable")

	r := c.Handle(ctx, 7, "/watch "+wallet)
	assert.Contains(t, r.Text, "Initial analysis unavailable")
	assert.Equal(t, []string{wallet}, c.Registry.WatchedWallets())
}

func TestHandle_Unwatch(t *testing.T) {
	ctx := context.Background()
	c, _ := newCommands()

	assert.Contains(t, c.Handle(ctx, 5, "/unwatch "+wallet).Text, "not being tracked")
	require.NoError(t, c.Registry.Watch(ctx, 5, wallet))
	assert.Contains(t, c.Handle(ctx, 5, "/unwatch "+wallet).Text, "Stopped tracking")
	assert.Empty(t, c.Registry.WatchedWallets())
}

func TestHandle_AlertsToggle(t *testing.T) {
	ctx := context.Background()
	c, _ := newCommands()

	r := c.Handle(ctx, 9, "/alerts")
	require.NotNil(t, r.Keyboard)
	rows := r.Keyboard.InlineKeyboard
	require.Len(t, rows, len(model.AlertTypes)+1)
	assert.Equal(t, "✅ Whale Movement", rows[0][0].Text)
	assert.Equal(t, "toggle_alert_whale_movement", rows[0][0].CallbackData)
	assert.Equal(t, "save_alerts", rows[len(rows)-1][0].CallbackData)

	r = c.HandleCallback(ctx, 9, "toggle_alert_whale_movement")
	require.NotNil(t, r.Keyboard)
	assert.Equal(t, "❌ Whale Movement", r.Keyboard.InlineKeyboard[0][0].Text)
	sub, _ := c.Registry.Get(9)
	assert.False(t, sub.Enabled(model.AlertWhaleMovement))

	c.HandleCallback(ctx, 9, "toggle_alert_whale_movement")
	sub, _ = c.Registry.Get(9)
	assert.True(t, sub.Enabled(model.AlertWhaleMovement))

	assert.Contains(t, c.HandleCallback(ctx, 9, "save_alerts").Text, "saved")
	assert.Contains(t, c.HandleCallback(ctx, 9, "toggle_alert_bogus").Text, "Unknown alert type")
}

func TestHandle_StatusAndHelp(t *testing.T) {
	ctx := context.Background()
	c, _ := newCommands()

	r := c.Handle(ctx, 3, "/status")
	assert.Contains(t, r.Text, "No wallets being tracked")
	assert.Contains(t, r.Text, "Alerts this hour: 2/10")

	assert.Contains(t, c.Handle(ctx, 3, "/help").Text, "/watch")
	assert.Contains(t, c.Handle(ctx, 3, "/start@SentinelBot").Text, "/unwatch")
	assert.Contains(t, c.Handle(ctx, 3, "/token").Text, "Unknown command")
}

func TestHandle_Whales(t *testing.T) {
	ctx := context.Background()
	c, _ := newCommands()

	assert.Contains(t, c.Handle(ctx, 1, "/whales").Text, "No whale movements")

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.History.Put(ctx, &model.AlertRecord{
		ID:            "a",
		Key:           model.NewAlertKey(model.AlertWhaleMovement, wallet),
		Description:   "Whale movement of $2,000,000.00",
		CreatedAt:     now,
		LastTriggered: &now,
		TriggerCount:  1,
		Active:        true,
	})
	c.History.Put(ctx, &model.AlertRecord{
		ID:        "b",
		Key:       model.NewAlertKey(model.AlertRiskDetected, wallet),
		CreatedAt: now,
		Active:    true,
	})

	r := c.Handle(ctx, 1, "/whales")
	assert.Contains(t, r.Text, "0xAb58...eC9B")
	assert.Contains(t, r.Text, "2025-03-01 12:00")
	assert.Equal(t, 1, strings.Count(r.Text, "•"))
}
