package eventpublisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/iho/numledger/internal/domain"
)

func revokedEvent() *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:            "evt-1",
		AggregateID:   "user-1",
		AggregateType: domain.AggregateTypeUser,
		EventType:     domain.EventTypeUserRevoked,
		Payload:       map[string]any{"user_id": "user-1", "reason": "ledger drift 10"},
		CreatedAt:     time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

type recordingChannel struct {
	channel string
	payload []byte
}

func (r *recordingChannel) Publish(_ context.Context, channel string, payload []byte) (int64, error) {
	r.channel = channel
	r.payload = payload
	return 1, nil
}

func TestPubSubPublisherSendsEnvelope(t *testing.T) {
	rec := &recordingChannel{}
	if err := NewPubSubPublisher(rec, "").Publish(context.Background(), revokedEvent()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if rec.channel != DefaultChannel {
		t.Fatalf("expected default channel, got %s", rec.channel)
	}

	var env Envelope
	if err := json.Unmarshal(rec.payload, &env); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if env.EventType != domain.EventTypeUserRevoked || env.AggregateID != "user-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Payload["reason"] != "ledger drift 10" {
		t.Fatalf("unexpected payload: %+v", env.Payload)
	}
}

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaPublisherKeysByAggregate(t *testing.T) {
	w := &recordingWriter{}
	if err := NewKafkaPublisher(w).Publish(context.Background(), revokedEvent()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "user-1" {
		t.Fatalf("expected aggregate key, got %q", msg.Key)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != domain.EventTypeUserRevoked {
		t.Fatalf("unexpected headers: %+v", msg.Headers)
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if env.ID != "evt-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestNewKafkaWriterConfiguresTopic(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "numledger.events")
	defer w.Close()

	if w.Topic != "numledger.events" {
		t.Fatalf("unexpected topic %q", w.Topic)
	}
	if w.Addr.String() != "localhost:9092" {
		t.Fatalf("unexpected addr %q", w.Addr.String())
	}
}
