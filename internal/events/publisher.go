// Package events delivers lifecycle events recorded in the outbox to the
// event bus.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// Event is the wire form of an outbox row.
type Event struct {
	ID          string           `json:"id"`
	Type        domain.EventType `json:"type"`
	Aggregate   string           `json:"aggregate"`
	AggregateID string           `json:"aggregate_id"`
	Payload     json.RawMessage  `json:"payload"`
	CreatedAt   time.Time        `json:"created_at"`
}

// FromOutbox converts a stored outbox row.
func FromOutbox(e domain.OutboxEvent) Event {
	payload := json.RawMessage(e.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(e.Payload)
	}
	return Event{
		ID:          e.ID,
		Type:        e.Type,
		Aggregate:   e.Aggregate,
		AggregateID: e.AggregateID,
		Payload:     payload,
		CreatedAt:   e.CreatedAt,
	}
}

// Publisher sends events to a bus.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one Kafka topic keyed by aggregate id, so
// all events of an aggregate land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher returns a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
	return &KafkaPublisher{writer: w}
}

// Publish implements Publisher.
func (k *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: b,
			Time:  e.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "event_id", Value: []byte(e.ID)},
			},
		})
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// LogPublisher writes events to a zerolog logger. It stands in for Kafka
// when no brokers are configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

// Publish implements Publisher.
func (l LogPublisher) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		l.Logger.Info().
			Str("event_id", e.ID).
			Str("event_type", string(e.Type)).
			Str("aggregate", e.Aggregate).
			Str("aggregate_id", e.AggregateID).
			RawJSON("payload", e.Payload).
			Msg("lifecycle event")
	}
	return nil
}

// Close implements Publisher.
func (LogPublisher) Close() error { return nil }
