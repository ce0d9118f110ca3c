package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletSentinel/internal/model"
	"WalletSentinel/internal/recorder"
)

const wallet = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	fail map[int64]error
	sent []sent
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{chatID, text})
	return nil
}

func (f *fakeSender) to(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.chatID == chatID {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu         sync.Mutex
	deliveries []*recorder.Delivery
}

func (f *fakeRecorder) RecordDelivery(_ context.Context, d *recorder.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	return nil
}

func alertFor(t model.AlertType, sev model.Severity) Alert {
	return Alert{
		Record: &model.AlertRecord{
			ID:          "id-" + string(t),
			Key:         model.NewAlertKey(t, wallet),
			Severity:    sev,
			Description: "test alert",
		},
		Wallet:     &model.WalletSnapshot{Address: wallet},
		WalletRisk: 0.9,
	}
}

func TestDispatch_PreferenceDisabled(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	d := New(sender, nil)

	optOut := &model.Subscriber{
		ChatID:      1,
		Wallets:     []string{wallet},
		Preferences: map[model.AlertType]bool{model.AlertRiskDetected: false},
	}
	other := &model.Subscriber{ChatID: 2, Wallets: []string{wallet}}
	subs := []*model.Subscriber{optOut, other}

	res := d.Dispatch(ctx, alertFor(model.AlertRiskDetected, model.SeverityCritical), subs)
	assert.Equal(t, Result{Delivered: 1, Skipped: 1}, res)
	assert.Equal(t, 0, sender.to(1))
	assert.Equal(t, 1, sender.to(2))

	res = d.Dispatch(ctx, alertFor(model.AlertWhaleMovement, model.SeverityMedium), subs)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, sender.to(1))
}

func TestDispatch_WalletScoping(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, nil)

	subs := []*model.Subscriber{
		{ChatID: 1, Wallets: []string{wallet}},
		{ChatID: 2, Wallets: []string{"0x0000000000000000000000000000000000000001"}},
		{ChatID: 3},
	}
	res := d.Dispatch(context.Background(), alertFor(model.AlertWhaleMovement, model.SeverityMedium), subs)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 2, res.Skipped)

	unscoped := alertFor(model.AlertPriceImpact, model.SeverityLow)
	unscoped.Wallet = nil
	res = d.Dispatch(context.Background(), unscoped, subs)
	assert.Equal(t, 3, res.Delivered)
}

func TestDispatch_IsolatesFailures(t *testing.T) {
	sender := &fakeSender{fail: map[int64]error{2: errors.New("chat not found")}}
	rec := &fakeRecorder{}
	d := New(sender, rec)

	subs := []*model.Subscriber{
		{ChatID: 1, Wallets: []string{wallet}},
		{ChatID: 2, Wallets: []string{wallet}},
		{ChatID: 3, Wallets: []string{wallet}},
	}
	res := d.Dispatch(context.Background(), alertFor(model.AlertRiskDetected, model.SeverityHigh), subs)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, sender.to(3))

	require.Len(t, rec.deliveries, 3)
	assert.False(t, rec.deliveries[1].OK)
	assert.Equal(t, "chat not found", rec.deliveries[1].Error)
	assert.Equal(t, "id-risk_detected", rec.deliveries[0].AlertID)
}

func TestDispatch_MessageContent(t *testing.T) {
	sender := &fakeSender{}
	d := New(sender, nil)

	a := alertFor(model.AlertRiskDetected, model.SeverityCritical)
	a.Transaction = &model.TransactionRecord{Hash: "0x1111222233334444", USDValue: 1500}
	d.Dispatch(context.Background(), a, []*model.Subscriber{{ChatID: 1, Wallets: []string{wallet}}})

	require.Len(t, sender.sent, 1)
	text := sender.sent[0].text
	assert.Contains(t, text, "💥 <b>Risk Detected Alert</b>")
	assert.Contains(t, text, "Hash: <code>0x1111...4444</code>")
	assert.Contains(t, text, "Risk Score: 0.90")
}

func TestBroadcastError(t *testing.T) {
	sender := &fakeSender{fail: map[int64]error{1: errors.New("blocked")}}
	d := New(sender, nil)

	subs := []*model.Subscriber{{ChatID: 1}, {ChatID: 2}}
	res := d.BroadcastError(context.Background(), "chain provider down", subs)
	assert.Equal(t, Result{Delivered: 1, Failed: 1}, res)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].text, "System Error")
}
