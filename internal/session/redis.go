package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as JSON values with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed Store. ttl <= 0 keeps sessions forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func redisKey(key int64) string { return fmt.Sprintf("session:%d", key) }

func (r *RedisStore) Load(ctx context.Context, key int64) (*Session, error) {
	raw, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to load session %d: %w", key, err)
	}
	return decodeSession(raw)
}

func (r *RedisStore) Save(ctx context.Context, key int64, s *Session) error {
	c := s.Clone()
	c.UpdatedAt = time.Now()
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode session %d: %w", key, err)
	}
	if err := r.client.Set(ctx, redisKey(key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %d: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key int64) error {
	if err := r.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %d: %w", key, err)
	}
	return nil
}

func decodeSession(raw []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.State == "" {
		s.State = StateIdle
	}
	return &s, nil
}
