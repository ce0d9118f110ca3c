package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletSentinel/internal/model"
)

func TestNewAlertEvent(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	last := created.Add(time.Hour)
	rec := &model.AlertRecord{
		ID:            "abc",
		Key:           model.NewAlertKey(model.AlertWhaleMovement, "0x1"),
		Severity:      model.SeverityMedium,
		CreatedAt:     created,
		LastTriggered: &last,
		TriggerCount:  2,
	}
	recipients := []int64{1, 2}
	e := NewAlertEvent(rec, recipients)
	recipients[0] = 99

	assert.Equal(t, "whale_movement:0x1", e.Key)
	assert.Equal(t, "whale_movement", e.Type)
	assert.Equal(t, "0x1", e.Subject)
	assert.Equal(t, []int64{1, 2}, e.Recipients)
	assert.True(t, e.TriggeredAt.Equal(last))
}

func TestEncode(t *testing.T) {
	e := AlertEvent{AlertID: "abc", Key: "risk_detected:0x1", Type: "risk_detected", Severity: "critical"}
	msg, err := encode(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("risk_detected:0x1"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "critical", string(msg.Headers[1].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "abc", decoded["alert_id"])
}

func TestKafkaPublisher_ClosedRejects(t *testing.T) {
	p := NewKafkaPublisher("localhost:9092", "alerts")
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Error(t, p.Publish(context.Background(), AlertEvent{Key: "k"}))
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), AlertEvent{}))
	assert.NoError(t, p.Close())
}
