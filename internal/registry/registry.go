// Package registry tracks subscribers, their watched wallets and their
// alert preferences.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/metrics"
	"WalletSentinel/internal/model"
)

var (
	ErrAlreadyWatched = errors.New("wallet already watched")
	ErrNotWatched     = errors.New("wallet not watched")
	ErrUnknownChat    = errors.New("unknown subscriber")
)

// Persister saves and restores subscribers.
type Persister interface {
	SaveSubscriber(ctx context.Context, s *model.Subscriber) error
	LoadSubscribers(ctx context.Context) ([]*model.Subscriber, error)
}

const chatShards = 64

// Registry is the subscriber registry. Subscribers are never removed; a
// subscriber with no wallets stays registered and receives nothing.
//
// Mutations of one chat are serialized from the in-memory change through
// the save, so the persisted copy never runs behind memory.
type Registry struct {
	chats     [chatShards]sync.Mutex
	mu        sync.RWMutex
	subs      map[int64]*model.Subscriber
	persister Persister
	now       func() time.Time
}

// New creates a Registry. p may be nil.
func New(p Persister) *Registry {
	return &Registry{subs: make(map[int64]*model.Subscriber), persister: p, now: time.Now}
}

// Load replaces the in-memory state with the persisted subscribers.
func (r *Registry) Load(ctx context.Context) error {
	if r.persister == nil {
		return nil
	}
	subs, err := r.persister.LoadSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}
	r.mu.Lock()
	r.subs = make(map[int64]*model.Subscriber, len(subs))
	for _, s := range subs {
		r.subs[s.ChatID] = clone(s)
	}
	r.mu.Unlock()
	r.updateGauge()
	return nil
}

// Subscribe registers chatID if it is new and returns its current state.
func (r *Registry) Subscribe(ctx context.Context, chatID int64) *model.Subscriber {
	defer r.lockChat(chatID)()

	r.mu.Lock()
	s, created := r.ensure(chatID)
	out := clone(s)
	r.mu.Unlock()

	if created {
		r.persist(ctx, out)
	}
	return out
}

// Unsubscribe clears the watch list of chatID. The subscriber record and
// its preferences are kept.
func (r *Registry) Unsubscribe(ctx context.Context, chatID int64) error {
	defer r.lockChat(chatID)()

	r.mu.Lock()
	s, ok := r.subs[chatID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownChat
	}
	s.Wallets = nil
	out := clone(s)
	r.mu.Unlock()

	r.persist(ctx, out)
	r.updateGauge()
	return nil
}

// Watch adds address to chatID's watch list, registering the chat if needed.
// The address is stored in its checksummed form.
func (r *Registry) Watch(ctx context.Context, chatID int64, address string) error {
	address, err := chain.CanonicalAddress(address)
	if err != nil {
		return err
	}
	defer r.lockChat(chatID)()

	r.mu.Lock()
	s, _ := r.ensure(chatID)
	for _, w := range s.Wallets {
		if w == address {
			r.mu.Unlock()
			return ErrAlreadyWatched
		}
	}
	s.Wallets = append(s.Wallets, address)
	out := clone(s)
	r.mu.Unlock()

	r.persist(ctx, out)
	r.updateGauge()
	return nil
}

// Unwatch removes address from chatID's watch list.
func (r *Registry) Unwatch(ctx context.Context, chatID int64, address string) error {
	address, err := chain.CanonicalAddress(address)
	if err != nil {
		return ErrNotWatched
	}
	defer r.lockChat(chatID)()

	r.mu.Lock()
	s, ok := r.subs[chatID]
	if !ok {
		r.mu.Unlock()
		return ErrNotWatched
	}
	idx := -1
	for i, w := range s.Wallets {
		if w == address {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return ErrNotWatched
	}
	s.Wallets = append(s.Wallets[:idx:idx], s.Wallets[idx+1:]...)
	out := clone(s)
	r.mu.Unlock()

	r.persist(ctx, out)
	r.updateGauge()
	return nil
}

// SetPreference enables or disables alert type t for chatID.
func (r *Registry) SetPreference(ctx context.Context, chatID int64, t model.AlertType, enabled bool) {
	defer r.lockChat(chatID)()

	r.mu.Lock()
	s, _ := r.ensure(chatID)
	if s.Preferences == nil {
		s.Preferences = make(map[model.AlertType]bool, len(model.AlertTypes))
	}
	s.Preferences[t] = enabled
	out := clone(s)
	r.mu.Unlock()

	r.persist(ctx, out)
}

// TogglePreference flips alert type t for chatID and returns the new value.
func (r *Registry) TogglePreference(ctx context.Context, chatID int64, t model.AlertType) bool {
	defer r.lockChat(chatID)()

	r.mu.Lock()
	s, _ := r.ensure(chatID)
	if s.Preferences == nil {
		s.Preferences = make(map[model.AlertType]bool, len(model.AlertTypes))
	}
	enabled := !s.Enabled(t)
	s.Preferences[t] = enabled
	out := clone(s)
	r.mu.Unlock()

	r.persist(ctx, out)
	return enabled
}

// Get returns a copy of chatID's subscriber record.
func (r *Registry) Get(chatID int64) (*model.Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[chatID]
	if !ok {
		return nil, false
	}
	return clone(s), true
}

// All returns copies of every subscriber ordered by chat id.
func (r *Registry) All() []*model.Subscriber {
	r.mu.RLock()
	out := make([]*model.Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, clone(s))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// WatchedWallets returns the distinct watched addresses across all
// subscribers, sorted.
func (r *Registry) WatchedWallets() []string {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, s := range r.subs {
		for _, w := range s.Wallets {
			seen[w] = struct{}{}
		}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Watchers returns the subscribers watching address.
func (r *Registry) Watchers(address string) []*model.Subscriber {
	if c, err := chain.CanonicalAddress(address); err == nil {
		address = c
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Subscriber
	for _, s := range r.subs {
		if s.Watches(address) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// lockChat acquires the mutation lock of chatID and returns its unlock.
func (r *Registry) lockChat(chatID int64) func() {
	mu := &r.chats[uint64(chatID)%chatShards]
	mu.Lock()
	return mu.Unlock
}

// ensure must be called with r.mu held.
func (r *Registry) ensure(chatID int64) (*model.Subscriber, bool) {
	if s, ok := r.subs[chatID]; ok {
		return s, false
	}
	s := &model.Subscriber{ChatID: chatID, CreatedAt: r.now()}
	r.subs[chatID] = s
	return s, true
}

func (r *Registry) persist(ctx context.Context, s *model.Subscriber) {
	if r.persister == nil {
		return
	}
	if err := r.persister.SaveSubscriber(ctx, s); err != nil {
		l := logger.GetLogger()
		l.Error().Err(err).Int64("chat_id", s.ChatID).Msg("persist subscriber")
	}
}

func (r *Registry) updateGauge() {
	metrics.WatchedWallets.Set(float64(len(r.WatchedWallets())))
}

func clone(s *model.Subscriber) *model.Subscriber {
	c := *s
	c.Wallets = append([]string(nil), s.Wallets...)
	if s.Preferences != nil {
		c.Preferences = make(map[model.AlertType]bool, len(s.Preferences))
		for k, v := range s.Preferences {
			c.Preferences[k] = v
		}
	}
	return &c
}
