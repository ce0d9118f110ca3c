// Package dispatch delivers admitted alerts to interested subscribers.
package dispatch

import (
	"context"
	"time"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/metrics"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/notifier"
	"WalletSentinel/internal/recorder"
)

// Sender is the notification collaborator.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// DeliveryRecorder stores delivery attempts.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d *recorder.Delivery) error
}

// Alert is an admitted alert with the context used to render it.
type Alert struct {
	Record      *model.AlertRecord
	Wallet      *model.WalletSnapshot
	Transaction *model.TransactionRecord
	WalletRisk  float64
}

// Result summarizes one dispatch.
type Result struct {
	Delivered int
	Failed    int
	Skipped   int
}

// Dispatcher formats alerts and hands them to the Sender.
type Dispatcher struct {
	sender   Sender
	recorder DeliveryRecorder
	now      func() time.Time
}

// New creates a Dispatcher. rec may be nil.
func New(sender Sender, rec DeliveryRecorder) *Dispatcher {
	return &Dispatcher{sender: sender, recorder: rec, now: time.Now}
}

// Dispatch sends a to every subscriber that has the alert type enabled and
// watches the alert's wallet. Alerts without a wallet go to every subscriber
// with the type enabled. A failed delivery is logged and does not stop the
// remaining ones.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert, subs []*model.Subscriber) Result {
	var res Result
	if a.Record == nil {
		return res
	}
	l := logger.GetLogger()
	text := notifier.FormatAlert(a.Record, a.Wallet, a.Transaction, a.WalletRisk)

	for _, s := range subs {
		if !interested(s, a) {
			res.Skipped++
			continue
		}
		if ctx.Err() != nil {
			res.Skipped++
			continue
		}

		err := d.sender.Send(ctx, s.ChatID, text)
		d.record(ctx, a.Record, s.ChatID, err)
		if err != nil {
			res.Failed++
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
			l.Error().Err(err).
				Int64("chat_id", s.ChatID).
				Str("alert_type", string(a.Record.Key.Type)).
				Str("subject", a.Record.Key.Subject).
				Msg("alert delivery failed")
			continue
		}
		res.Delivered++
		metrics.DeliveriesTotal.WithLabelValues("delivered").Inc()
	}

	l.Info().
		Str("alert_type", string(a.Record.Key.Type)).
		Str("subject", a.Record.Key.Subject).
		Int("delivered", res.Delivered).
		Int("failed", res.Failed).
		Msg("alert dispatched")
	return res
}

// Broadcast sends text to every subscriber, isolating failures.
func (d *Dispatcher) Broadcast(ctx context.Context, text string, subs []*model.Subscriber) Result {
	var res Result
	l := logger.GetLogger()
	for _, s := range subs {
		if ctx.Err() != nil {
			res.Skipped++
			continue
		}
		if err := d.sender.Send(ctx, s.ChatID, text); err != nil {
			res.Failed++
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
			l.Error().Err(err).Int64("chat_id", s.ChatID).Msg("broadcast delivery failed")
			continue
		}
		res.Delivered++
		metrics.DeliveriesTotal.WithLabelValues("delivered").Inc()
	}
	return res
}

// BroadcastError sends the system error notice to every subscriber.
func (d *Dispatcher) BroadcastError(ctx context.Context, msg string, subs []*model.Subscriber) Result {
	return d.Broadcast(ctx, notifier.FormatSystemError(msg), subs)
}

func interested(s *model.Subscriber, a Alert) bool {
	if !s.Enabled(a.Record.Key.Type) {
		return false
	}
	if a.Wallet == nil {
		return true
	}
	return s.Watches(a.Wallet.Address)
}

func (d *Dispatcher) record(ctx context.Context, rec *model.AlertRecord, chatID int64, sendErr error) {
	if d.recorder == nil {
		return
	}
	del := &recorder.Delivery{
		AlertID:   rec.ID,
		Key:       rec.Key,
		ChatID:    chatID,
		OK:        sendErr == nil,
		Timestamp: d.now(),
	}
	if sendErr != nil {
		del.Error = sendErr.Error()
	}
	if err := d.recorder.RecordDelivery(context.WithoutCancel(ctx), del); err != nil {
		l := logger.GetLogger()
		l.Error().Err(err).Int64("chat_id", chatID).Msg("record delivery")
	}
}
