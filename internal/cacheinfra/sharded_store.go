package cacheinfra

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viccon/sturdyc"
	"go.uber.org/zap"
)

// ShardedStore keeps entries in process on sharded sturdyc clients.
//
// A sturdyc client applies one TTL to everything it holds, so the store runs
// one client per distinct TTL and routes each write by its TTL. The TTL
// policy has one TTL per view, which keeps the number of clients small.
// A key lives in at most one client at a time.
type ShardedStore struct {
	cfg    ShardedConfig
	logger *zap.Logger
	closed atomic.Bool

	mu      sync.RWMutex
	clients map[time.Duration]*sturdyc.Client[[]byte]
}

// NewShardedStore creates a sharded process local store. Clients are
// created on first use of each TTL.
func NewShardedStore(cfg Config, logger *zap.Logger) *ShardedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShardedStore{
		cfg:     cfg.Sharded,
		logger:  logger,
		clients: make(map[time.Duration]*sturdyc.Client[[]byte]),
	}
}

// Ping reports whether the store is open.
func (s *ShardedStore) Ping(ctx context.Context) error {
	return s.check(ctx, "PING")
}

// Close drops every client. sturdyc has no shutdown hook; the clients are
// released to the garbage collector.
func (s *ShardedStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = make(map[time.Duration]*sturdyc.Client[[]byte])
	return nil
}

func (s *ShardedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.check(ctx, "GET"); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		if v, ok := client.Get(key); ok {
			return cloneBytes(v), true, nil
		}
	}
	return nil, false, nil
}

func (s *ShardedStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx, "SET"); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("SET %q: ttl must be positive, got %s", key, ttl)
	}

	target := s.client(ttl)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for d, client := range s.clients {
		if d != ttl {
			client.Delete(key)
		}
	}
	target.Set(key, cloneBytes(value))
	return nil
}

func (s *ShardedStore) Delete(ctx context.Context, keys ...string) error {
	if err := s.check(ctx, "DEL"); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		for _, key := range keys {
			client.Delete(key)
		}
	}
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix.
func (s *ShardedStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if err := s.check(ctx, "DELPREFIX"); err != nil {
		return 0, err
	}
	if prefix == "" {
		return 0, fmt.Errorf("delete by prefix: empty prefix")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	deleted := 0
	for _, client := range s.clients {
		for _, key := range client.ScanKeys() {
			if strings.HasPrefix(key, prefix) {
				client.Delete(key)
				deleted++
			}
		}
	}
	return deleted, nil
}

// Classes returns the number of TTL classes in use.
func (s *ShardedStore) Classes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *ShardedStore) client(ttl time.Duration) *sturdyc.Client[[]byte] {
	s.mu.RLock()
	c, ok := s.clients[ttl]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[ttl]; ok {
		return c
	}
	c = sturdyc.New[[]byte](s.cfg.Capacity, s.cfg.NumShards, ttl, s.cfg.EvictionPercentage)
	s.clients[ttl] = c
	s.logger.Debug("sharded cache class created", zap.Duration("ttl", ttl), zap.Int("classes", len(s.clients)))
	return c
}

func (s *ShardedStore) check(ctx context.Context, cmd string) error {
	if s.closed.Load() {
		return fmt.Errorf("%w: %s: store closed", ErrUnavailable, cmd)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, cmd, err)
	}
	return nil
}
