// Package events publishes admitted alerts to downstream consumers.
package events

import (
	"context"
	"time"

	"WalletSentinel/internal/model"
)

// AlertEvent is the payload emitted for every admitted alert.
type AlertEvent struct {
	AlertID      string         `json:"alert_id"`
	Key          string         `json:"key"`
	Type         string         `json:"type"`
	Severity     string         `json:"severity"`
	Subject      string         `json:"subject"`
	Description  string         `json:"description"`
	Conditions   map[string]any `json:"conditions,omitempty"`
	TriggerCount int            `json:"trigger_count"`
	Recipients   []int64        `json:"recipients"`
	TriggeredAt  time.Time      `json:"triggered_at"`
}

// NewAlertEvent builds the event for an admitted record.
func NewAlertEvent(rec *model.AlertRecord, recipients []int64) AlertEvent {
	e := AlertEvent{
		AlertID:      rec.ID,
		Key:          rec.Key.String(),
		Type:         string(rec.Key.Type),
		Severity:     string(rec.Severity),
		Subject:      rec.Key.Subject,
		Description:  rec.Description,
		Conditions:   rec.Conditions,
		TriggerCount: rec.TriggerCount,
		Recipients:   append([]int64(nil), recipients...),
		TriggeredAt:  rec.CreatedAt,
	}
	if rec.LastTriggered != nil {
		e.TriggeredAt = *rec.LastTriggered
	}
	return e
}

// Publisher emits alert events.
type Publisher interface {
	Publish(ctx context.Context, e AlertEvent) error
	Close() error
}

// NoopPublisher discards events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, AlertEvent) error { return nil }
func (NoopPublisher) Close() error                              { return nil }
