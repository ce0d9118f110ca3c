package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"WalletSentinel/internal/history"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/notifier"
	"WalletSentinel/internal/registry"
)

// Default cron specs (with seconds).
const (
	DefaultPruneCron  = "0 */10 * * * *"
	DefaultDigestCron = "0 0 9 * * *"
	DefaultReportCron = "0 0 * * * *"
)

// WindowPruner drops expired rate-limit entries.
type WindowPruner interface {
	PruneWindows() int
}

// DeliveryCounter reports successful deliveries per alert type.
type DeliveryCounter interface {
	CountDeliveries(ctx context.Context, chatID int64, since time.Time) (map[model.AlertType]int, error)
}

// Sender delivers a message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Scheduler manages the housekeeping cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Pruner   WindowPruner
	Registry *registry.Registry
	History  *history.Store
	Counter  DeliveryCounter
	Sender   Sender
	Ctx      context.Context
	now      func() time.Time
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, pruner WindowPruner, reg *registry.Registry, hist *history.Store, counter DeliveryCounter, sender Sender) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Pruner:   pruner,
		Registry: reg,
		History:  hist,
		Counter:  counter,
		Sender:   sender,
		Ctx:      ctx,
		now:      time.Now,
	}
}

// RegisterAll registers the prune, digest and history report tasks. An
// empty cron expression selects the default.
func (s *Scheduler) RegisterAll(pruneCron, digestCron string) error {
	if pruneCron == "" {
		pruneCron = DefaultPruneCron
	}
	if digestCron == "" {
		digestCron = DefaultDigestCron
	}
	if _, err := s.Cron.AddFunc(pruneCron, s.pruneTask); err != nil {
		return fmt.Errorf("register prune task: %w", err)
	}
	if _, err := s.Cron.AddFunc(digestCron, s.digestTask); err != nil {
		return fmt.Errorf("register digest task: %w", err)
	}
	if _, err := s.Cron.AddFunc(DefaultReportCron, s.reportTask); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	l := logger.GetLogger()
	l.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	l := logger.GetLogger()
	l.Info().Msg("scheduler stopped")
}

// RunDigestNow sends the daily digest immediately.
func (s *Scheduler) RunDigestNow() int {
	return s.digest()
}

func (s *Scheduler) pruneTask() {
	n := s.Pruner.PruneWindows()
	l := logger.GetLogger()
	l.Debug().Int("pruned", n).Msg("rate limit windows pruned")
}

func (s *Scheduler) digestTask() {
	s.digest()
}

// digest sends each subscriber with watched wallets a summary of the
// alerts delivered to them in the last 24 hours. It returns the number of
// digests sent.
func (s *Scheduler) digest() int {
	l := logger.GetLogger()
	now := s.now()
	since := now.Add(-24 * time.Hour)
	sent := 0

	for _, sub := range s.Registry.All() {
		if s.Ctx.Err() != nil {
			break
		}
		if len(sub.Wallets) == 0 {
			continue
		}
		counts, err := s.Counter.CountDeliveries(s.Ctx, sub.ChatID, since)
		if err != nil {
			l.Error().Err(err).Int64("chat_id", sub.ChatID).Msg("count deliveries for digest")
			continue
		}
		if err := s.Sender.Send(s.Ctx, sub.ChatID, notifier.FormatDigest(now, counts)); err != nil {
			l.Error().Err(err).Int64("chat_id", sub.ChatID).Msg("send digest")
			continue
		}
		sent++
	}
	l.Info().Int("sent", sent).Msg("daily digest finished")
	return sent
}

func (s *Scheduler) reportTask() {
	recs := s.History.List(history.Filter{})
	active := 0
	for _, r := range recs {
		if r.Active {
			active++
		}
	}
	triggered := len(s.History.List(history.Filter{Since: s.now().Add(-time.Hour)}))
	l := logger.GetLogger()
	l.Info().
		Int("records", len(recs)).
		Int("active", active).
		Int("triggered_last_hour", triggered).
		Int("watched_wallets", len(s.Registry.WatchedWallets())).
		Msg("alert history report")
}
