package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultOpTimeout bounds every individual Store call made by ReadThrough.
const DefaultOpTimeout = 250 * time.Millisecond

// ReadThrough implements cache-aside reads over a Store.
//
// Concurrent misses on the same key are coalesced into one load. Store
// failures are logged and treated as misses; they never fail a read.
//
// Populate and Invalidate are ordered against each other: every invalidation
// marks the keys and prefixes it deletes while holding the write side of mu,
// and a load only writes its result back if no mark covering its key was
// recorded after the load started. A load that overlapped an invalidation of
// its key is returned to its callers but not cached, so a value read before a
// write can never be stored after the delete meant to remove it. Loads of
// unrelated keys keep populating.
type ReadThrough struct {
	store   Store
	codec   Codec
	logger  *zap.Logger
	timeout time.Duration

	group singleflight.Group
	mu    sync.RWMutex
	marks *invalidationMarks

	stats *stats
}

// Option configures a ReadThrough.
type Option func(*ReadThrough)

// WithCodec sets the value codec. Defaults to JSON.
func WithCodec(codec Codec) Option {
	return func(r *ReadThrough) {
		if codec != nil {
			r.codec = codec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *ReadThrough) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOpTimeout bounds each Store call.
func WithOpTimeout(d time.Duration) Option {
	return func(r *ReadThrough) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewReadThrough wires a ReadThrough on top of store.
func NewReadThrough(store Store, opts ...Option) *ReadThrough {
	r := &ReadThrough{
		store:   store,
		codec:   JSONCodec{},
		logger:  zap.NewNop(),
		timeout: DefaultOpTimeout,
		marks:   newInvalidationMarks(),
		stats:   newStats(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying store.
func (r *ReadThrough) Store() Store {
	return r.store
}

type flightResult struct {
	value any
	data  []byte
}

// GetOrLoad returns the cached value for key, or runs fetch, caches its
// result for ttl and returns it. Errors from fetch are returned unchanged and
// nothing is cached for them.
func GetOrLoad[T any](ctx context.Context, r *ReadThrough, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	var zero T

	if data, ok := r.lookup(ctx, key); ok {
		var v T
		err := r.codec.Unmarshal(data, &v)
		if err == nil {
			r.stats.hits.Inc()
			r.logger.Debug("cache hit", zap.String("key", key))
			return v, nil
		}
		r.stats.errors.Inc()
		r.logger.Warn("cache entry undecodable, reloading",
			zap.String("key", key),
			zap.String("codec", r.codec.Name()),
			zap.Error(err),
		)
	}

	r.stats.misses.Inc()
	r.logger.Debug("cache miss", zap.String("key", key))

	load := func(ctx context.Context) (flightResult, error) {
		start := r.beginLoad()
		defer r.marks.end(start)

		v, err := fetch(ctx)
		if err != nil {
			return flightResult{}, err
		}
		r.stats.loads.Inc()

		data, err := r.codec.Marshal(v)
		if err != nil {
			r.stats.errors.Inc()
			r.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
			return flightResult{value: v}, nil
		}

		r.populate(ctx, key, data, ttl, start)
		return flightResult{value: v, data: data}, nil
	}

	// The flight key carries the key's invalidation generation: a caller
	// arriving after an invalidation must not join a load that started
	// before it.
	flightKey := key + "#" + strconv.FormatUint(r.generation(key), 10)

	var led atomic.Bool
	ch := r.group.DoChan(flightKey, func() (any, error) {
		led.Store(true)
		return load(ctx)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}

	// A coalesced load runs under the context of the caller that started
	// it. When that caller went away the load fails with its context error;
	// callers that are still waiting load again under their own context.
	if res.Err != nil && !led.Load() && ctx.Err() == nil && isContextError(res.Err) {
		r.logger.Debug("coalesced load cancelled by its initiator, reloading", zap.String("key", key))
		fr, err := load(ctx)
		res = singleflight.Result{Val: fr, Err: err}
	}
	if res.Err != nil {
		return zero, res.Err
	}

	fr := res.Val.(flightResult)

	// Coalesced callers each get their own decoded copy so that one caller
	// mutating a slice or map cannot leak into another's result.
	if res.Shared && fr.data != nil {
		var v T
		if err := r.codec.Unmarshal(fr.data, &v); err == nil {
			return v, nil
		}
	}

	if fr.value == nil {
		return zero, nil
	}
	v, ok := fr.value.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return v, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *ReadThrough) beginLoad() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.marks.begin()
}

func (r *ReadThrough) generation(key string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.marks.generation(key)
}

func (r *ReadThrough) lookup(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.stats.errors.Inc()
		r.logger.Warn("cache get failed, falling back to source",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false
	}
	return data, ok
}

func (r *ReadThrough) populate(ctx context.Context, key string, data []byte, ttl time.Duration, start uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.marks.generation(key) > start {
		r.stats.skipped.Inc()
		r.logger.Debug("cache populate skipped, invalidated during load", zap.String("key", key))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		r.stats.errors.Inc()
		r.logger.Warn("cache set failed",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("cache populated", zap.String("key", key), zap.Duration("ttl", ttl))
}

// Invalidate deletes keys and every entry under prefixes. All deletes are
// attempted even when some fail; the joined error reports the failures.
func (r *ReadThrough) Invalidate(ctx context.Context, keys []string, prefixes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.marks.mark(keys, prefixes)
	r.stats.invalidations.Inc()

	var errs []error

	if len(keys) > 0 {
		if err := r.withTimeout(ctx, func(ctx context.Context) error {
			return r.store.Delete(ctx, keys...)
		}); err != nil {
			errs = append(errs, fmt.Errorf("delete %d keys: %w", len(keys), err))
		}
	}

	for _, prefix := range prefixes {
		var n int
		err := r.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			n, err = r.store.DeleteByPrefix(ctx, prefix)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete prefix %q: %w", prefix, err))
			continue
		}
		r.logger.Debug("cache prefix invalidated", zap.String("prefix", prefix), zap.Int("deleted", n))
	}

	if len(errs) > 0 {
		r.stats.errors.Add(int64(len(errs)))
		return errors.Join(errs...)
	}
	return nil
}

// withTimeout runs fn with a bounded context. Prefix scans get a larger
// budget since they may take several round trips.
func (r *ReadThrough) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, 4*r.timeout)
	defer cancel()
	return fn(ctx)
}

// Stats returns a snapshot of the cache counters.
func (r *ReadThrough) Stats() Stats {
	return r.stats.snapshot()
}

// Stats is a point in time view of ReadThrough counters.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Loads         int64 `json:"loads"`
	Skipped       int64 `json:"skipped"`
	Invalidations int64 `json:"invalidations"`
	Errors        int64 `json:"errors"`
}

type stats struct {
	hits          *xsync.Counter
	misses        *xsync.Counter
	loads         *xsync.Counter
	skipped       *xsync.Counter
	invalidations *xsync.Counter
	errors        *xsync.Counter
}

func newStats() *stats {
	return &stats{
		hits:          xsync.NewCounter(),
		misses:        xsync.NewCounter(),
		loads:         xsync.NewCounter(),
		skipped:       xsync.NewCounter(),
		invalidations: xsync.NewCounter(),
		errors:        xsync.NewCounter(),
	}
}

func (s *stats) snapshot() Stats {
	return Stats{
		Hits:          s.hits.Value(),
		Misses:        s.misses.Value(),
		Loads:         s.loads.Value(),
		Skipped:       s.skipped.Value(),
		Invalidations: s.invalidations.Value(),
		Errors:        s.errors.Value(),
	}
}
