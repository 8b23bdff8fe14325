package eventpublisher

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/iho/numledger/internal/domain"
)

// DefaultChannel is the pub/sub channel outbox events are sent on.
const DefaultChannel = "numledger.events"

// ChannelPublisher publishes raw payloads on a named channel.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// PubSubPublisher sends envelopes to a pub/sub channel.
type PubSubPublisher struct {
	client  ChannelPublisher
	channel string
}

// NewPubSubPublisher creates a PubSubPublisher.
func NewPubSubPublisher(client ChannelPublisher, channel string) *PubSubPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PubSubPublisher{client: client, channel: channel}
}

// Publish sends the event envelope.
func (p *PubSubPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	body, err := Encode(event)
	if err != nil {
		return err
	}
	_, err = p.client.Publish(ctx, p.channel, body)
	return err
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes envelopes to a Kafka topic keyed by aggregate, so
// events for one aggregate keep their order.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// NewKafkaWriter builds a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
	}
}

// Publish writes the event envelope.
func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	body, err := Encode(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
		Time: event.CreatedAt,
	})
}
