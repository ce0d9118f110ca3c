// Package history owns alert bookkeeping records keyed by AlertKey.
package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// Persister saves and restores alert records.
type Persister interface {
	SaveAlertRecord(ctx context.Context, rec *model.AlertRecord) error
	LoadAlertRecords(ctx context.Context) ([]*model.AlertRecord, error)
}

// Store is the in-memory alert history with optional write-through
// persistence. Records are never removed.
type Store struct {
	mu        sync.RWMutex
	records   map[model.AlertKey]*model.AlertRecord
	persister Persister
}

// NewStore creates a Store. p may be nil.
func NewStore(p Persister) *Store {
	return &Store{records: make(map[model.AlertKey]*model.AlertRecord), persister: p}
}

// Load replaces the in-memory state with the persisted records.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	recs, err := s.persister.LoadAlertRecords(ctx)
	if err != nil {
		return fmt.Errorf("load alert records: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[model.AlertKey]*model.AlertRecord, len(recs))
	for _, r := range recs {
		s.records[r.Key] = r.Clone()
	}
	return nil
}

// Get returns a copy of the record for key.
func (s *Store) Get(key model.AlertKey) (*model.AlertRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key]
	return r.Clone(), ok
}

// Put stores a copy of rec and writes it through to the persister. A
// persistence failure is logged; the in-memory state is kept.
func (s *Store) Put(ctx context.Context, rec *model.AlertRecord) {
	c := rec.Clone()
	s.mu.Lock()
	s.records[c.Key] = c
	s.mu.Unlock()

	if s.persister == nil {
		return
	}
	if err := s.persister.SaveAlertRecord(ctx, c); err != nil {
		l := logger.GetLogger()
		l.Error().Err(err).Str("key", c.Key.String()).Msg("persist alert record")
	}
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Filter selects records in List.
type Filter struct {
	Type  model.AlertType // empty matches all
	Since time.Time       // zero matches all; compared to LastTriggered
	Limit int             // 0 means unlimited
}

// List returns copies of the matching records, most recently triggered first.
func (s *Store) List(f Filter) []*model.AlertRecord {
	s.mu.RLock()
	out := make([]*model.AlertRecord, 0, len(s.records))
	for _, r := range s.records {
		if f.Type != "" && r.Key.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && (r.LastTriggered == nil || r.LastTriggered.Before(f.Since)) {
			continue
		}
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return lastTriggered(out[i]).After(lastTriggered(out[j]))
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func lastTriggered(r *model.AlertRecord) time.Time {
	if r.LastTriggered == nil {
		return r.CreatedAt
	}
	return *r.LastTriggered
}
