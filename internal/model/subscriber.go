package model

import "time"

// Subscriber is a chat that receives alerts.
type Subscriber struct {
	ChatID      int64              `json:"chat_id"`
	Wallets     []string           `json:"wallets"`
	Preferences map[AlertType]bool `json:"preferences,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Enabled reports whether the subscriber wants alerts of type t.
// Types without an explicit preference are enabled.
func (s *Subscriber) Enabled(t AlertType) bool {
	if s.Preferences == nil {
		return true
	}
	v, ok := s.Preferences[t]
	return !ok || v
}

// Watches reports whether address is on the subscriber's watch list.
func (s *Subscriber) Watches(address string) bool {
	for _, w := range s.Wallets {
		if w == address {
			return true
		}
	}
	return false
}
