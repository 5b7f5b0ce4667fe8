package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "bastion:ratelimit:"

// RedisStore shares windows between instances through Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to addr and verifies the connection
func NewRedisStore(ctx context.Context, addr string, db int) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
		now:    time.Now,
	}
}

// Increment implements Store. The window is opened with SET NX PX so only the
// first hit sets the expiry.
func (s *RedisStore) Increment(ctx context.Context, key string, length time.Duration) (int64, time.Time, error) {
	k := s.prefix + key

	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, length)
		incr = pipe.Incr(ctx, k)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("rate limit increment: %w", err)
	}

	remaining := pttl.Val()
	if remaining <= 0 {
		// key lost its expiry; restart the window from now
		if err := s.client.PExpire(ctx, k, length).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("rate limit expire: %w", err)
		}
		remaining = length
	}

	return incr.Val(), s.now().Add(remaining), nil
}

// Close releases the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
