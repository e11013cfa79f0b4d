package cacheinfra

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store mirrors cache.Store so this package can build drivers without
// importing its consumer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*ShardedStore)(nil)
)

// NewStore builds the driver selected by cfg.Driver.
func NewStore(cfg Config, logger *zap.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(cfg, logger), nil
	case DriverSharded:
		return NewShardedStore(cfg, logger), nil
	default:
		return NewRedisStore(cfg, logger)
	}
}
