package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
)

// DefaultKeyPrefix prefixes the Redis key of every zone.
const DefaultKeyPrefix = "security_zone:state:"

// redisClient is the part of *redis.Client used by the repository.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisRepository stores each zone snapshot as a JSON value.
type RedisRepository struct {
	// client talks to Redis.
	client redisClient
	// prefix is prepended to zone ids.
	prefix string
}

// NewRedisRepository creates a repository on top of a Redis client.
func NewRedisRepository(client redisClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &RedisRepository{
		client: client,
		prefix: prefix,
	}
}

// Load reads the snapshot of one zone.
func (r *RedisRepository) Load(ctx context.Context, zoneID string) (*domain.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key(zoneID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to get state from Redis: %w", err)
	}

	var stored record
	if err = json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	snapshot, err := fromRecord(&stored)
	if err != nil {
		return nil, fmt.Errorf("decode zone %s: %w", zoneID, err)
	}

	return snapshot, nil
}

// Save writes the snapshot of one zone without expiration.
func (r *RedisRepository) Save(ctx context.Context, zoneID string, snapshot *domain.Snapshot) error {
	data, err := json.Marshal(toRecord(snapshot))
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err = r.client.Set(ctx, r.key(zoneID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}

	return nil
}

// Delete removes the snapshot of one zone.
func (r *RedisRepository) Delete(ctx context.Context, zoneID string) error {
	if err := r.client.Del(ctx, r.key(zoneID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state from Redis: %w", err)
	}

	return nil
}

func (r *RedisRepository) key(zoneID string) string {
	return r.prefix + zoneID
}
