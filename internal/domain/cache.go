package domain

import (
	"context"
	"time"
)

// Cache is the optional fast path for velocity counters and small lookups.
// The rule snapshot itself is never cached across requests.
type Cache interface {
	// Get returns nil, nil when the key is not present.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// IncrementCounter atomically increments a windowed counter and returns
	// the new value. The counter expires after window, which makes it an
	// approximation of "events in the trailing window" suitable for
	// velocity checks.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// GetCounter reads a windowed counter without incrementing it.
	// Returns ok=false when the counter is absent or expired.
	GetCounter(ctx context.Context, key string) (value int64, ok bool, err error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds settings for cache initialization.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	LocalMaxSize int
	LocalTTL     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
