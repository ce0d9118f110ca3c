package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletSentinel/internal/model"
)

type stubPersister struct {
	records []*model.AlertRecord
	saves   int
	err     error
}

func (s *stubPersister) SaveAlertRecord(_ context.Context, rec *model.AlertRecord) error {
	s.saves++
	return s.err
}

func (s *stubPersister) LoadAlertRecords(context.Context) ([]*model.AlertRecord, error) {
	return s.records, s.err
}

func record(t model.AlertType, subject string, at time.Time) *model.AlertRecord {
	return &model.AlertRecord{
		ID:            subject,
		Key:           model.NewAlertKey(t, subject),
		CreatedAt:     at,
		LastTriggered: &at,
		TriggerCount:  1,
		Active:        true,
	}
}

func TestStore_PutGetIsolation(t *testing.T) {
	s := NewStore(nil)
	rec := record(model.AlertRiskDetected, "0xa", time.Now())
	s.Put(context.Background(), rec)

	rec.TriggerCount = 99
	got, ok := s.Get(rec.Key)
	require.True(t, ok)
	assert.Equal(t, 1, got.TriggerCount)

	got.TriggerCount = 50
	again, _ := s.Get(rec.Key)
	assert.Equal(t, 1, again.TriggerCount)

	_, ok = s.Get(model.NewAlertKey(model.AlertRiskDetected, "missing"))
	assert.False(t, ok)
}

func TestStore_ListOrderAndFilter(t *testing.T) {
	s := NewStore(nil)
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	s.Put(context.Background(), record(model.AlertWhaleMovement, "0x1", base))
	s.Put(context.Background(), record(model.AlertWhaleMovement, "0x2", base.Add(2*time.Hour)))
	s.Put(context.Background(), record(model.AlertRiskDetected, "0x3", base.Add(time.Hour)))

	all := s.List(Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, "0x2", all[0].Key.Subject)
	assert.Equal(t, "0x1", all[2].Key.Subject)

	whales := s.List(Filter{Type: model.AlertWhaleMovement, Limit: 1})
	require.Len(t, whales, 1)
	assert.Equal(t, "0x2", whales[0].Key.Subject)

	recent := s.List(Filter{Since: base.Add(30 * time.Minute)})
	assert.Len(t, recent, 2)
}

func TestStore_LoadAndWriteThrough(t *testing.T) {
	p := &stubPersister{records: []*model.AlertRecord{record(model.AlertRiskDetected, "0xa", time.Now())}}
	s := NewStore(p)
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 1, s.Len())

	s.Put(context.Background(), record(model.AlertRiskDetected, "0xb", time.Now()))
	assert.Equal(t, 1, p.saves)

	p.err = errors.New("locked")
	s.Put(context.Background(), record(model.AlertRiskDetected, "0xc", time.Now()))
	assert.Equal(t, 3, s.Len())
	assert.Error(t, s.Load(context.Background()))
}
