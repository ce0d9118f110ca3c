package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"WalletSentinel/internal/history"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/metrics"
	"WalletSentinel/internal/model"
)

// Defaults for the gate.
const (
	DefaultCooldown   = 300 * time.Second
	DefaultMaxPerHour = 10
)

// ErrUnknownKey is returned when a key has no history.
var ErrUnknownKey = errors.New("alert key has no history")

// Reason explains a gate decision.
type Reason string

const (
	ReasonAdmitted     Reason = "admitted"
	ReasonCooldown     Reason = "cooldown"
	ReasonRateLimited  Reason = "rate_limited"
	ReasonInactive     Reason = "inactive"
	ReasonNoRecipients Reason = "no_recipients"
)

// Config holds gate limits.
type Config struct {
	Cooldown      time.Duration
	TypeCooldowns map[model.AlertType]time.Duration
	MaxPerHour    int
}

// Decision is the outcome of an admission attempt.
type Decision struct {
	Admitted   bool
	Reason     Reason
	Record     *model.AlertRecord // copy after bookkeeping; nil if the key has no history
	Recipients []int64            // subscribers whose rate limit allowed the alert
}

// Gate enforces per-key cooldowns and per-subscriber rate limits. It is
// the only writer of the alert history.
type Gate struct {
	store   *history.Store
	locks   keyLocks
	limiter *RateLimiter
	cfg     Config
	now     func() time.Time
	newID   func() string
}

// New creates a Gate over store.
func New(store *history.Store, cfg Config) *Gate {
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.MaxPerHour <= 0 {
		cfg.MaxPerHour = DefaultMaxPerHour
	}
	return &Gate{
		store:   store,
		limiter: NewRateLimiter(cfg.MaxPerHour),
		cfg:     cfg,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// WithClock replaces the gate's time source.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// CooldownFor returns the cooldown configured for t.
func (g *Gate) CooldownFor(t model.AlertType) time.Duration {
	if d, ok := g.cfg.TypeCooldowns[t]; ok {
		return d
	}
	return g.cfg.Cooldown
}

// Admit applies the cooldown check for c without subscriber limits.
func (g *Gate) Admit(ctx context.Context, c model.AlertCandidate) bool {
	return g.admit(ctx, c, nil, false).Admitted
}

// AdmitFor applies the cooldown check for c and then the rate limit of each
// recipient. The alert is admitted if the key is eligible and at least one
// recipient has room; bookkeeping changes only on admission.
func (g *Gate) AdmitFor(ctx context.Context, c model.AlertCandidate, recipients []int64) Decision {
	return g.admit(ctx, c, recipients, true)
}

func (g *Gate) admit(ctx context.Context, c model.AlertCandidate, recipients []int64, limited bool) Decision {
	unlock := g.locks.lock(c.Key.String())
	defer unlock()

	now := g.now()
	rec, exists := g.store.Get(c.Key)

	if exists {
		if !rec.Active {
			return g.reject(c, rec, ReasonInactive)
		}
		if rec.LastTriggered != nil && now.Sub(*rec.LastTriggered) < rec.CooldownPeriod {
			return g.reject(c, rec, ReasonCooldown)
		}
	}

	var allowed []int64
	if limited {
		if len(recipients) == 0 {
			return g.reject(c, rec, ReasonNoRecipients)
		}
		for _, id := range recipients {
			if g.limiter.Allow(id, now) {
				allowed = append(allowed, id)
			}
		}
		if len(allowed) == 0 {
			return g.reject(c, rec, ReasonRateLimited)
		}
	}

	if !exists {
		rec = &model.AlertRecord{
			ID:        g.newID(),
			Key:       c.Key,
			CreatedAt: now,
			Active:    true,
		}
	}
	triggered := now
	rec.LastTriggered = &triggered
	rec.TriggerCount++
	rec.CooldownPeriod = g.CooldownFor(c.Key.Type)
	rec.Severity = c.Severity
	rec.Description = c.Description
	rec.Conditions = c.Conditions
	g.store.Put(ctx, rec)

	metrics.AlertsTotal.WithLabelValues(string(c.Key.Type), string(ReasonAdmitted)).Inc()
	return Decision{Admitted: true, Reason: ReasonAdmitted, Record: rec.Clone(), Recipients: allowed}
}

func (g *Gate) reject(c model.AlertCandidate, rec *model.AlertRecord, reason Reason) Decision {
	metrics.AlertsTotal.WithLabelValues(string(c.Key.Type), string(reason)).Inc()
	l := logger.GetLogger()
	l.Debug().Str("key", c.Key.String()).Str("reason", string(reason)).Msg("alert suppressed")
	return Decision{Reason: reason, Record: rec}
}

// Deactivate stops key from being admitted until reactivated.
func (g *Gate) Deactivate(ctx context.Context, key model.AlertKey) error {
	return g.setActive(ctx, key, false)
}

// Activate re-enables a deactivated key.
func (g *Gate) Activate(ctx context.Context, key model.AlertKey) error {
	return g.setActive(ctx, key, true)
}

func (g *Gate) setActive(ctx context.Context, key model.AlertKey, active bool) error {
	unlock := g.locks.lock(key.String())
	defer unlock()

	rec, ok := g.store.Get(key)
	if !ok {
		return ErrUnknownKey
	}
	rec.Active = active
	g.store.Put(ctx, rec)
	return nil
}

// DeliverySource reports past delivery attempts per chat.
type DeliverySource interface {
	RecentDeliveries(ctx context.Context, since time.Time) (map[int64][]time.Time, error)
}

// RestoreWindows rebuilds the per-subscriber windows from deliveries made
// in the last Window. It returns the number of subscribers restored.
func (g *Gate) RestoreWindows(ctx context.Context, src DeliverySource) (int, error) {
	now := g.now()
	hits, err := src.RecentDeliveries(ctx, now.Add(-Window))
	if err != nil {
		return 0, fmt.Errorf("restore rate windows: %w", err)
	}
	for chatID, times := range hits {
		g.limiter.Restore(chatID, times, now)
	}
	return len(hits), nil
}

// PruneWindows drops expired rate-limit state.
func (g *Gate) PruneWindows() int {
	return g.limiter.Prune(g.now())
}

// SentLastHour returns how many alerts chatID received in the current window.
func (g *Gate) SentLastHour(chatID int64) int {
	return g.limiter.Count(chatID, g.now())
}
