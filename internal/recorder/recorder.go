package recorder

import (
	"context"
	"time"

	"WalletSentinel/internal/model"
)

// Evaluation records one wallet evaluation of a sweep.
type Evaluation struct {
	Wallet         string
	Classification model.Classification
	Candidates     int
	Admitted       int
	Timestamp      time.Time
}

// Delivery records one attempt to deliver an alert to a subscriber.
type Delivery struct {
	AlertID   string
	Key       model.AlertKey
	ChatID    int64
	OK        bool
	Error     string
	Timestamp time.Time
}

// Recorder persists evaluation and delivery history for analysis.
type Recorder interface {
	RecordEvaluation(ctx context.Context, e *Evaluation) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	// CountDeliveries returns successful deliveries to chatID since the
	// given time, grouped by alert type.
	CountDeliveries(ctx context.Context, chatID int64, since time.Time) (map[model.AlertType]int, error)
	// RecentDeliveries returns the attempt times of every delivery since
	// the given time, grouped by chat and ascending.
	RecentDeliveries(ctx context.Context, since time.Time) (map[int64][]time.Time, error)
	Ping(ctx context.Context) error
	Close() error
}
