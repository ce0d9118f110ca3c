package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/dispatch"
	"WalletSentinel/internal/features"
	"WalletSentinel/internal/gate"
	"WalletSentinel/internal/history"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/policy"
	"WalletSentinel/internal/recorder"
	"WalletSentinel/internal/registry"
	"WalletSentinel/internal/risk"
)

const (
	whaleWallet = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	smallWallet = "0x00000000219ab540356cBB839Cbe05303d7705Fa"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs map[int64][]string
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgs == nil {
		f.msgs = make(map[int64][]string)
	}
	f.msgs[chatID] = append(f.msgs[chatID], text)
	return nil
}

func (f *fakeSender) count(chatID int64, substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs[chatID] {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu    sync.Mutex
	evals []*recorder.Evaluation
}

func (f *fakeRecorder) RecordEvaluation(_ context.Context, e *recorder.Evaluation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, e)
	return nil
}

type harness struct {
	loop     *Loop
	client   *chain.MockClient
	registry *registry.Registry
	store    *history.Store
	sender   *fakeSender
	recorder *fakeRecorder
}

func newHarness(t *testing.T, labeler risk.Labeler, cfg Config) *harness {
	t.Helper()
	client := chain.NewMockClient()
	reg := registry.New(nil)
	store := history.NewStore(nil)
	sender := &fakeSender{}
	rec := &fakeRecorder{}

	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	if cfg.SweepRetries == 0 {
		cfg.SweepRetries = 1
	}
	loop := New(Deps{
		Collector:  chain.NewCollector(client, risk.NewTxAssessor(policy.DefaultWhaleThresholdUSD, nil), time.Second, 50),
		Extractor:  features.NewExtractor(),
		Scorer:     risk.NewScorer(labeler, 50*time.Millisecond),
		Gate:       gate.New(store, gate.Config{Cooldown: gate.DefaultCooldown, MaxPerHour: gate.DefaultMaxPerHour}),
		Registry:   reg,
		Dispatcher: dispatch.New(sender, nil),
		Recorder:   rec,
	}, cfg)
	return &harness{loop: loop, client: client, registry: reg, store: store, sender: sender, recorder: rec}
}

func whaleFixture(now time.Time) (*model.WalletSnapshot, []model.TransactionRecord) {
	return &model.WalletSnapshot{Address: whaleWallet, USDValue: 2_000_000, TransactionCount: 40, LastUpdated: now},
		[]model.TransactionRecord{
			{Hash: "0xlatest", From: whaleWallet, To: smallWallet, USDValue: 1_500_000, Kind: model.TxTransfer, Timestamp: now.Add(-time.Minute)},
			{Hash: "0xolder", From: smallWallet, To: whaleWallet, USDValue: 20_000, Kind: model.TxTransfer, Timestamp: now.Add(-2 * time.Hour)},
		}
}

func TestWhaleMovementAdmittedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, Config{})
	h.client.SetWallet(whaleFixture(time.Now()))
	require.NoError(t, h.registry.Watch(ctx, 1, whaleWallet))

	res, err := h.loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)

	key := model.NewAlertKey(model.AlertWhaleMovement, whaleWallet)
	rec, ok := h.store.Get(key)
	require.True(t, ok)
	assert.Equal(t, model.SeverityMedium, rec.Severity)
	assert.Equal(t, 1, rec.TriggerCount)
	assert.Equal(t, 1, h.sender.count(1, "Whale Movement Alert"))

	_, err = h.loop.RunOnce(ctx)
	require.NoError(t, err)
	rec, _ = h.store.Get(key)
	assert.Equal(t, 1, rec.TriggerCount)
	assert.Equal(t, 1, h.sender.count(1, "Whale Movement Alert"))
}

func TestLabelTimeoutFallsBack(t *testing.T) {
	ctx := context.Background()
	blocking := risk.LabelerFunc(func(ctx context.Context, _ features.Vector) (risk.Prediction, error) {
		<-ctx.Done()
		return risk.Prediction{}, ctx.Err()
	})
	h := newHarness(t, blocking, Config{})
	now := time.Now()
	h.client.SetWallet(&model.WalletSnapshot{Address: smallWallet, USDValue: 1_000, LastUpdated: now},
		[]model.TransactionRecord{{Hash: "0x1", USDValue: 50, Kind: model.TxTransfer, Timestamp: now}})
	require.NoError(t, h.registry.Watch(ctx, 1, smallWallet))

	res, err := h.loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 0, res.Admitted)

	level, ok := h.loop.PreviousLevel(smallWallet)
	require.True(t, ok)
	assert.Equal(t, model.RiskUnknown, level)

	require.Len(t, h.recorder.evals, 1)
	c := h.recorder.evals[0].Classification
	assert.Equal(t, 0.5, c.RiskScore)
	assert.Equal(t, 0.0, c.Confidence)
	assert.Zero(t, h.store.Len())
}

func TestFailingWalletDoesNotStallSweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, Config{Workers: 2})
	h.client.SetWallet(whaleFixture(time.Now()))
	h.client.SetError(smallWallet, chain.ErrUnavailable)
	require.NoError(t, h.registry.Watch(ctx, 1, whaleWallet))
	require.NoError(t, h.registry.Watch(ctx, 1, smallWallet))

	res, err := h.loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Wallets)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 1, res.Failed)
	assert.GreaterOrEqual(t, res.Admitted, 1)
}

func TestSweepFailureBroadcastsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, Config{ErrorBroadcastAfter: 2, SweepRetries: 2})
	h.client.SetWallet(whaleFixture(time.Now()))
	h.client.SetPingError(chain.ErrUnavailable)
	require.NoError(t, h.registry.Watch(ctx, 1, whaleWallet))
	h.registry.Subscribe(ctx, 2)

	for i := 0; i < 3; i++ {
		_, err := h.loop.RunOnce(ctx)
		assert.ErrorIs(t, err, ErrSweepFailed)
	}
	assert.Equal(t, 1, h.sender.count(1, "System Error"))
	assert.Equal(t, 1, h.sender.count(2, "System Error"))

	h.client.SetPingError(nil)
	_, err := h.loop.RunOnce(ctx)
	require.NoError(t, err)

	h.client.SetPingError(chain.ErrUnavailable)
	for i := 0; i < 2; i++ {
		_, _ = h.loop.RunOnce(ctx)
	}
	assert.Equal(t, 2, h.sender.count(2, "System Error"))
}

func TestAllWalletsUnavailableFailsSweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, Config{})
	h.client.SetError(whaleWallet, chain.ErrRateLimited)
	require.NoError(t, h.registry.Watch(ctx, 1, whaleWallet))

	_, err := h.loop.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrSweepFailed)
}

func TestCancelledSweep(t *testing.T) {
	h := newHarness(t, nil, Config{})
	h.client.SetWallet(whaleFixture(time.Now()))
	require.NoError(t, h.registry.Watch(context.Background(), 1, whaleWallet))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.loop.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.sender.count(1, "Alert"))
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil, Config{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.loop.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunImmediateSweepsFirst(t *testing.T) {
	h := newHarness(t, nil, Config{Interval: time.Hour, Immediate: true})
	h.client.SetWallet(whaleFixture(time.Now()))
	require.NoError(t, h.registry.Watch(context.Background(), 1, whaleWallet))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.loop.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return h.client.Calls(whaleWallet) > 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestAnalyze(t *testing.T) {
	h := newHarness(t, nil, Config{})
	h.client.SetWallet(whaleFixture(time.Now()))

	a, err := h.loop.Analyze(context.Background(), strings.ToLower(whaleWallet))
	require.NoError(t, err)
	assert.Equal(t, model.WalletWhale, a.Classification.WalletType)
	assert.Len(t, a.Features, int(features.NumFeatures))
	assert.Zero(t, h.store.Len())

	_, err = h.loop.Analyze(context.Background(), "nope")
	assert.ErrorIs(t, err, chain.ErrNotFound)
}
