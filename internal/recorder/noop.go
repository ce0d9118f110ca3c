package recorder

import (
	"context"
	"time"

	"WalletSentinel/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordEvaluation(_ context.Context, _ *Evaluation) error { return nil }
func (n *NoopRecorder) RecordDelivery(_ context.Context, _ *Delivery) error     { return nil }
func (n *NoopRecorder) Ping(_ context.Context) error                            { return nil }
func (n *NoopRecorder) Close() error                                            { return nil }

func (n *NoopRecorder) RecentDeliveries(_ context.Context, _ time.Time) (map[int64][]time.Time, error) {
	return map[int64][]time.Time{}, nil
}

func (n *NoopRecorder) CountDeliveries(_ context.Context, _ int64, _ time.Time) (map[model.AlertType]int, error) {
	return map[model.AlertType]int{}, nil
}
