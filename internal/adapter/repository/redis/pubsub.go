package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Publisher publishes raw payloads on Redis pub/sub channels.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a new Publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends payload to channel and returns the number of receivers.
func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	return p.client.Publish(ctx, channel, payload).Result()
}
