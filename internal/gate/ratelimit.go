package gate

import (
	"sort"
	"sync"
	"time"
)

// Window is the rolling period of the per-subscriber limit.
const Window = time.Hour

// RateLimiter enforces a rolling-window cap of admitted alerts per subscriber.
type RateLimiter struct {
	mu    sync.Mutex
	limit int
	hits  map[int64][]time.Time // ascending
}

// NewRateLimiter allows at most limit alerts per subscriber per Window.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{limit: limit, hits: make(map[int64][]time.Time)}
}

// Allow records a hit for chatID at now if the window has room.
func (r *RateLimiter) Allow(chatID int64, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	hits := trim(r.hits[chatID], now)
	if len(hits) >= r.limit {
		r.hits[chatID] = hits
		return false
	}
	r.hits[chatID] = append(hits, now)
	return true
}

// Restore merges previously recorded hits for chatID into its window.
func (r *RateLimiter) Restore(chatID int64, hits []time.Time, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := append(append([]time.Time(nil), r.hits[chatID]...), hits...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })
	merged = trim(merged, now)
	if len(merged) == 0 {
		return
	}
	r.hits[chatID] = merged
}

// Count returns the hits for chatID inside the window ending at now.
func (r *RateLimiter) Count(chatID int64, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(trim(r.hits[chatID], now))
}

// Prune drops expired hits and idle subscribers. It returns the number of
// subscribers removed.
func (r *RateLimiter) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, hits := range r.hits {
		hits = trim(hits, now)
		if len(hits) == 0 {
			delete(r.hits, id)
			removed++
			continue
		}
		r.hits[id] = hits
	}
	return removed
}

func trim(hits []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
