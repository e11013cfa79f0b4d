package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-reservation-cache/internal/cacheinfra"
)

// ErrCacheUnavailable is returned by Store implementations when the backing
// store cannot be reached or an operation timed out. ReadThrough never lets
// it escape to callers.
var ErrCacheUnavailable = cacheinfra.ErrUnavailable

// ErrInvalidResultType is returned when a coalesced load produced a value of
// a different type than the caller asked for. Two call sites sharing a key
// with different types is a programming error.
var ErrInvalidResultType = errors.New("cache: invalid result type")

// KeySerializer builds a cache key from a namespace + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(namespace string, args ...any) string
}

// FetchFn is the function signature ReadThrough expects when loading from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Store is the key/value contract the cache layer needs from a backing store.
//
// Get reports a miss with ok=false and a nil error; a stored empty value is a
// hit. Delete with keys that do not exist is a no-op. DeleteByPrefix must walk
// the keyspace incrementally instead of enumerating every key in one call.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Page is the cached shape of a paginated list read.
type Page[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	Limit   int `json:"limit"`
}
