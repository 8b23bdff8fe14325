package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownKeyPrefix namespaces per-user alert cooldowns.
const CooldownKeyPrefix = "forensic:cooldown:"

// CooldownStore implements forensics.CooldownStore using SET NX EX.
type CooldownStore struct {
	client *redis.Client
	prefix string
}

// NewCooldownStore creates a new CooldownStore.
func NewCooldownStore(client *redis.Client) *CooldownStore {
	return &CooldownStore{
		client: client,
		prefix: CooldownKeyPrefix,
	}
}

// Acquire starts a cooldown for key. It reports false when one is already
// running.
func (s *CooldownStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Remaining returns how long the cooldown for key still runs.
func (s *CooldownStore) Remaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, s.prefix+key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Clear ends the cooldown for key.
func (s *CooldownStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
