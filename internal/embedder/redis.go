package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisKV is a KV backed by Redis through rueidis. Entries expire after ttl
// (zero keeps them forever).
type RedisKV struct {
	client rueidis.Client
	ttl    time.Duration
}

// NewRedisKV connects to the Redis server at addr.
func NewRedisKV(addr string, ttl time.Duration) (*RedisKV, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: redis %s: %w", addr, err)
	}
	return &RedisKV{client: client, ttl: ttl}, nil
}

// Get implements KV.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Do(ctx, r.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("embedder: redis get: %w", err)
	}
	return data, nil
}

// Set implements KV.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	var cmd rueidis.Completed
	if r.ttl > 0 {
		cmd = r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(r.ttl).Build()
	} else {
		cmd = r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("embedder: redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisKV) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("embedder: redis ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (r *RedisKV) Close() {
	r.client.Close()
}
