package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"WalletSentinel/internal/logger"
)

// KafkaPublisher writes alert events to a Kafka topic keyed by AlertKey.
type KafkaPublisher struct {
	writer *kafka.Writer
	mu     sync.Mutex
}

// NewKafkaPublisher creates a publisher for topic on brokerAddress.
func NewKafkaPublisher(brokerAddress, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokerAddress),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e AlertEvent) error {
	msg, err := encode(e)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer == nil {
		return fmt.Errorf("kafka publisher closed")
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to kafka: %w", err)
	}

	l := logger.GetLogger()
	l.Debug().Str("key", e.Key).Str("alert_id", e.AlertID).Msg("alert event published")
	return nil
}

func (k *KafkaPublisher) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}

func encode(e AlertEvent) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal alert event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
		Time:  e.TriggeredAt,
		Headers: []kafka.Header{
			{Key: "alert_type", Value: []byte(e.Type)},
			{Key: "severity", Value: []byte(e.Severity)},
		},
	}, nil
}
