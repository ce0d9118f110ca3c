// Package monitor runs the periodic sweep over all watched wallets.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/dispatch"
	"WalletSentinel/internal/events"
	"WalletSentinel/internal/features"
	"WalletSentinel/internal/gate"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/metrics"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/policy"
	"WalletSentinel/internal/recorder"
	"WalletSentinel/internal/registry"
	"WalletSentinel/internal/retry"
	"WalletSentinel/internal/risk"
)

// Defaults for the loop.
const (
	DefaultInterval            = 60 * time.Second
	DefaultWorkers             = 1
	DefaultSweepRetries        = 3
	DefaultRetryDelay          = 5 * time.Second
	DefaultErrorBroadcastAfter = 3
)

// ErrSweepFailed reports that no wallet could be evaluated in a sweep.
var ErrSweepFailed = errors.New("sweep failed")

// WhaleTag marks wallets known to be whales.
const WhaleTag = "whale"

// Config controls the loop.
type Config struct {
	Interval            time.Duration
	Workers             int
	SweepRetries        int
	RetryDelay          time.Duration
	ErrorBroadcastAfter int
	Thresholds          policy.Thresholds
	// Immediate starts the first sweep without waiting one Interval.
	Immediate bool
}

// EvaluationRecorder stores per-wallet evaluations.
type EvaluationRecorder interface {
	RecordEvaluation(ctx context.Context, e *recorder.Evaluation) error
}

// Deps are the collaborators of the loop. Publisher and Recorder may be nil.
type Deps struct {
	Collector  *chain.Collector
	Extractor  *features.Extractor
	Scorer     *risk.Scorer
	Gate       *gate.Gate
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Publisher  events.Publisher
	Recorder   EvaluationRecorder
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Wallets   int
	Evaluated int
	Failed    int
	Admitted  int
	Duration  time.Duration
}

// Loop is the monitor loop.
type Loop struct {
	deps Deps
	cfg  Config

	sweepMu sync.Mutex

	mu           sync.Mutex
	levels       map[string]model.RiskLevel
	failedSweeps int
	broadcasted  bool
}

// New creates a Loop.
func New(deps Deps, cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.SweepRetries <= 0 {
		cfg.SweepRetries = DefaultSweepRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.ErrorBroadcastAfter <= 0 {
		cfg.ErrorBroadcastAfter = DefaultErrorBroadcastAfter
	}
	if cfg.Thresholds == (policy.Thresholds{}) {
		cfg.Thresholds = policy.DefaultThresholds()
	}
	if deps.Extractor == nil {
		deps.Extractor = features.NewExtractor()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	return &Loop{deps: deps, cfg: cfg, levels: make(map[string]model.RiskLevel)}
}

// Run sweeps until ctx is cancelled, sleeping Interval between sweeps. A
// failed sweep never stops the loop.
func (l *Loop) Run(ctx context.Context) {
	log := logger.GetLogger()
	log.Info().Dur("interval", l.cfg.Interval).Int("workers", l.cfg.Workers).Bool("immediate", l.cfg.Immediate).
		Msg("monitor loop started")
	defer func() { log.Info().Msg("monitor loop stopped") }()

	if !l.cfg.Immediate && !sleep(ctx, l.cfg.Interval) {
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := l.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("sweep failed")
		}
		if !sleep(ctx, l.cfg.Interval) {
			return
		}
	}
}

// sleep waits for d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunOnce performs one sweep, retrying sweep-level failures.
func (l *Loop) RunOnce(ctx context.Context) (SweepResult, error) {
	l.sweepMu.Lock()
	defer l.sweepMu.Unlock()

	start := time.Now()
	var res SweepResult
	attempt := 0
	err := retry.Do(ctx, l.cfg.SweepRetries, l.cfg.RetryDelay, func() error {
		attempt++
		var err error
		res, err = l.sweep(ctx)
		if err != nil && ctx.Err() == nil {
			log := logger.GetLogger()
			log.Warn().Err(err).Int("attempt", attempt).Msg("sweep attempt failed")
		}
		if ctx.Err() != nil {
			return retry.Permanent(err)
		}
		return err
	})
	res.Duration = time.Since(start)
	metrics.SweepDuration.Observe(res.Duration.Seconds())

	if err != nil {
		if ctx.Err() != nil {
			metrics.SweepsTotal.WithLabelValues("cancelled").Inc()
			return res, ctx.Err()
		}
		metrics.SweepsTotal.WithLabelValues("failed").Inc()
		l.sweepFailed(ctx, err)
		return res, err
	}

	metrics.SweepsTotal.WithLabelValues("ok").Inc()
	l.sweepSucceeded()
	log := logger.GetLogger()
	log.Info().
		Int("wallets", res.Wallets).
		Int("evaluated", res.Evaluated).
		Int("failed", res.Failed).
		Int("admitted", res.Admitted).
		Dur("duration", res.Duration).
		Msg("sweep complete")
	return res, nil
}

func (l *Loop) sweep(ctx context.Context) (SweepResult, error) {
	wallets := l.deps.Registry.WatchedWallets()
	res := SweepResult{Wallets: len(wallets)}
	if len(wallets) == 0 {
		return res, nil
	}

	if err := l.deps.Collector.Client.Ping(ctx); err != nil {
		return res, fmt.Errorf("%w: chain ping: %v", ErrSweepFailed, err)
	}

	jobs := make(chan string)
	var (
		mu          sync.Mutex
		wg          sync.WaitGroup
		unavailable int
	)
	for i := 0; i < l.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for address := range jobs {
				admitted, err := l.safeEvaluate(ctx, address)
				mu.Lock()
				if err != nil {
					res.Failed++
					if errors.Is(err, chain.ErrUnavailable) || errors.Is(err, chain.ErrRateLimited) {
						unavailable++
					}
				} else {
					res.Evaluated++
					res.Admitted += admitted
				}
				mu.Unlock()
			}
		}()
	}

	for _, address := range wallets {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- address:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if unavailable == len(wallets) {
		return res, fmt.Errorf("%w: all %d wallets unavailable", ErrSweepFailed, len(wallets))
	}
	return res, nil
}

func (l *Loop) safeEvaluate(ctx context.Context, address string) (admitted int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate %s: panic: %v", address, r)
			log := logger.GetLogger()
			log.Error().Str("wallet", address).Interface("panic", r).Msg("wallet evaluation panicked")
			metrics.WalletEvaluationsTotal.WithLabelValues("panic").Inc()
		}
	}()
	return l.Evaluate(ctx, address)
}

// Evaluate runs the full pipeline for one wallet and returns how many
// alerts were admitted.
func (l *Loop) Evaluate(ctx context.Context, address string) (int, error) {
	log := logger.GetLogger()

	act, err := l.deps.Collector.Collect(ctx, address)
	if err != nil {
		metrics.WalletEvaluationsTotal.WithLabelValues("unavailable").Inc()
		log.Warn().Err(err).Str("wallet", address).Msg("wallet data unavailable, skipping")
		return 0, err
	}

	v := l.deps.Extractor.Extract(act.Wallet, act.Transactions)
	c := l.deps.Scorer.Score(ctx, v, l.priorFor(act.Wallet))
	l.trackLevel(address, c.RiskLevel)

	candidates := policy.Evaluate(&c, act.Latest(), act.Wallet, act.Transactions, l.cfg.Thresholds)
	admitted := 0
	for _, cand := range candidates {
		if l.gateAndDispatch(ctx, cand, act.Wallet, c) {
			admitted++
		}
	}

	outcome := "ok"
	if c.Degraded() {
		outcome = "degraded"
	}
	metrics.WalletEvaluationsTotal.WithLabelValues(outcome).Inc()
	l.record(ctx, &recorder.Evaluation{
		Wallet:         address,
		Classification: c,
		Candidates:     len(candidates),
		Admitted:       admitted,
		Timestamp:      time.Now(),
	})

	log.Debug().
		Str("wallet", address).
		Str("wallet_type", string(c.WalletType)).
		Str("risk_level", string(c.RiskLevel)).
		Float64("risk_score", c.RiskScore).
		Int("candidates", len(candidates)).
		Int("admitted", admitted).
		Msg("wallet evaluated")
	return admitted, nil
}

func (l *Loop) gateAndDispatch(ctx context.Context, cand model.AlertCandidate, wallet *model.WalletSnapshot, c model.Classification) bool {
	watchers := l.deps.Registry.Watchers(wallet.Address)
	byChat := make(map[int64]*model.Subscriber, len(watchers))
	var recipients []int64
	for _, s := range watchers {
		if s.Enabled(cand.Key.Type) {
			recipients = append(recipients, s.ChatID)
			byChat[s.ChatID] = s
		}
	}

	dec := l.deps.Gate.AdmitFor(ctx, cand, recipients)
	if !dec.Admitted {
		log := logger.GetLogger()
		log.Debug().Str("key", cand.Key.String()).Str("reason", string(dec.Reason)).Msg("alert suppressed")
		return false
	}

	subs := make([]*model.Subscriber, 0, len(dec.Recipients))
	for _, id := range dec.Recipients {
		subs = append(subs, byChat[id])
	}
	l.deps.Dispatcher.Dispatch(ctx, dispatch.Alert{
		Record:      dec.Record,
		Wallet:      wallet,
		Transaction: cand.Transaction,
		WalletRisk:  c.RiskScore,
	}, subs)

	if err := l.deps.Publisher.Publish(ctx, events.NewAlertEvent(dec.Record, dec.Recipients)); err != nil {
		log := logger.GetLogger()
		log.Error().Err(err).Str("key", dec.Record.Key.String()).Msg("publish alert event")
	}
	return true
}

// Analyze evaluates address without touching alert state.
func (l *Loop) Analyze(ctx context.Context, address string) (*model.Analysis, error) {
	addr, err := chain.CanonicalAddress(address)
	if err != nil {
		return nil, err
	}
	act, err := l.deps.Collector.Collect(ctx, addr)
	if err != nil {
		return nil, err
	}
	v := l.deps.Extractor.Extract(act.Wallet, act.Transactions)
	c := l.deps.Scorer.Score(ctx, v, l.priorFor(act.Wallet))
	return &model.Analysis{
		Wallet:         act.Wallet,
		Transactions:   act.Transactions,
		Features:       v.Map(),
		Classification: c,
	}, nil
}

// Ready reports whether the chain collaborator answers.
func (l *Loop) Ready(ctx context.Context) error {
	return l.deps.Collector.Client.Ping(ctx)
}

func (l *Loop) priorFor(w *model.WalletSnapshot) risk.Prior {
	if w.HasTag(WhaleTag) || w.USDValue >= l.cfg.Thresholds.WhaleUSD {
		return risk.Prior{Type: model.WalletWhale}
	}
	return risk.Prior{}
}

func (l *Loop) trackLevel(address string, level model.RiskLevel) {
	l.mu.Lock()
	prev, seen := l.levels[address]
	l.levels[address] = level
	l.mu.Unlock()

	if seen && prev != level {
		log := logger.GetLogger()
		log.Info().Str("wallet", address).Str("from", string(prev)).Str("to", string(level)).Msg("risk level changed")
	}
}

// PreviousLevel returns the risk level of the last evaluation of address.
func (l *Loop) PreviousLevel(address string) (model.RiskLevel, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lv, ok := l.levels[address]
	return lv, ok
}

func (l *Loop) record(ctx context.Context, e *recorder.Evaluation) {
	if l.deps.Recorder == nil {
		return
	}
	if err := l.deps.Recorder.RecordEvaluation(context.WithoutCancel(ctx), e); err != nil {
		log := logger.GetLogger()
		log.Error().Err(err).Str("wallet", e.Wallet).Msg("record evaluation")
	}
}

func (l *Loop) sweepFailed(ctx context.Context, err error) {
	l.mu.Lock()
	l.failedSweeps++
	notify := l.failedSweeps >= l.cfg.ErrorBroadcastAfter && !l.broadcasted
	if notify {
		l.broadcasted = true
	}
	failed := l.failedSweeps
	l.mu.Unlock()

	if !notify {
		return
	}
	log := logger.GetLogger()
	log.Error().Err(err).Int("failed_sweeps", failed).Msg("broadcasting system error")
	l.deps.Dispatcher.BroadcastError(ctx,
		fmt.Sprintf("Wallet monitoring failed %d times in a row: %v", failed, err),
		l.deps.Registry.All())
}

func (l *Loop) sweepSucceeded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.broadcasted {
		log := logger.GetLogger()
		log.Info().Int("failed_sweeps", l.failedSweeps).Msg("monitoring recovered")
	}
	l.failedSweeps = 0
	l.broadcasted = false
}
