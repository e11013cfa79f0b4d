package cacheinfra

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// MemoryStore keeps entries in process. Every entry carries its own TTL and
// expired entries are never returned, even before the janitor removes them.
type MemoryStore struct {
	cache  *ttlcache.Cache[string, []byte]
	logger *zap.Logger
	closed atomic.Bool
}

// NewMemoryStore creates and starts a process local store.
func NewMemoryStore(cfg Config, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if cfg.MemoryCapacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](cfg.MemoryCapacity))
	}

	c := ttlcache.New[string, []byte](opts...)
	go c.Start()

	return &MemoryStore{cache: c, logger: logger}
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.check(ctx, "PING")
}

// Close stops the expiry janitor and drops every entry.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cache.Stop()
	s.cache.DeleteAll()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.check(ctx, "GET"); err != nil {
		return nil, false, err
	}

	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	return cloneBytes(item.Value()), true, nil
}

func (s *MemoryStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx, "SET"); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("SET %q: ttl must be positive, got %s", key, ttl)
	}

	s.cache.Set(key, cloneBytes(value), ttl)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := s.check(ctx, "DEL"); err != nil {
		return err
	}
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix.
func (s *MemoryStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if err := s.check(ctx, "DELPREFIX"); err != nil {
		return 0, err
	}
	if prefix == "" {
		return 0, fmt.Errorf("delete by prefix: empty prefix")
	}

	deleted := 0
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of entries held, expired or not.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

func (s *MemoryStore) check(ctx context.Context, cmd string) error {
	if s.closed.Load() {
		return fmt.Errorf("%w: %s: store closed", ErrUnavailable, cmd)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, cmd, err)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
