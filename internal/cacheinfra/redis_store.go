package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore is the shared, networked cache store.
type RedisStore struct {
	rdb       *redis.Client
	logger    *zap.Logger
	timeout   time.Duration
	scanCount int64
}

// NewRedisStore creates a client for cfg. It does not dial; call Ping to
// verify connectivity.
func NewRedisStore(cfg Config, logger *zap.Logger) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		DB:           cfg.Redis.DB,
		Password:     cfg.Redis.Password,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	return &RedisStore{
		rdb:       rdb,
		logger:    logger,
		timeout:   cfg.OpTimeout,
		scanCount: cfg.ScanCount,
	}, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("PING", "", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	if s.rdb == nil {
		return nil
	}
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	s.logger.Debug("redis cache store closed")
	return nil
}

// Get returns the value for key. A missing key is (nil, false, nil).
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("GET", key, err)
	}
	return b, true, nil
}

// SetWithTTL replaces the value for key unconditionally.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("SET %q: ttl must be positive, got %s", key, ttl)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("SET", key, err)
	}
	return nil
}

// Delete removes keys. UNLINK reclaims memory off the main thread.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.rdb.Unlink(ctx, keys...).Err(); err != nil {
		return unavailable("UNLINK", strings.Join(keys, ","), err)
	}
	return nil
}

// DeleteByPrefix walks the keyspace with SCAN and unlinks each batch as it
// goes, so the server is never asked to enumerate every key at once. Each
// round trip gets its own timeout; the caller's context bounds the walk.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("delete by prefix: empty prefix")
	}

	pattern := escapeGlob(prefix) + "*"
	var (
		cursor  uint64
		deleted int
	)

	for {
		if err := ctx.Err(); err != nil {
			return deleted, unavailable("SCAN", pattern, err)
		}

		keys, next, err := s.scan(ctx, cursor, pattern)
		if err != nil {
			return deleted, err
		}

		if len(keys) > 0 {
			if err := s.Delete(ctx, keys...); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	s.logger.Debug("redis prefix delete",
		zap.String("prefix", prefix),
		zap.Int("deleted", deleted),
	)
	return deleted, nil
}

func (s *RedisStore) scan(ctx context.Context, cursor uint64, pattern string) ([]string, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	keys, next, err := s.rdb.Scan(ctx, cursor, pattern, s.scanCount).Result()
	if err != nil {
		return nil, 0, unavailable("SCAN", pattern, err)
	}
	return keys, next, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func unavailable(cmd, key string, err error) error {
	if key == "" {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, cmd, err)
	}
	return fmt.Errorf("%w: %s %q: %v", ErrUnavailable, cmd, key, err)
}
