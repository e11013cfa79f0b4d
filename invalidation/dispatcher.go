// Package invalidation maps mutations to the cache entries they make stale
// and removes them once the authoritative write has committed.
package invalidation

import (
	"context"
	"sort"

	"github.com/goliatone/go-reservation-cache/cache"
	"go.uber.org/zap"
)

// Kind names the mutation that happened. It only feeds logs; the set of
// entries to drop is derived from the entity and identities.
type Kind string

const (
	KindCreated       Kind = "created"
	KindUpdated       Kind = "updated"
	KindDeleted       Kind = "deleted"
	KindCancelled     Kind = "cancelled"
	KindStatusChanged Kind = "status_changed"
)

// Event describes one committed mutation.
type Event struct {
	Kind    Kind
	Entity  cache.Entity
	ID      string
	OwnerID string
	// Dates lists the calendar days whose slot maps the change touches.
	Dates []string
}

// Set is the closed set of cache entries one or more events make stale.
type Set struct {
	Keys     []string
	Prefixes []string
}

// Empty reports whether there is nothing to delete.
func (s Set) Empty() bool {
	return len(s.Keys) == 0 && len(s.Prefixes) == 0
}

// SetFor computes the entries made stale by e. When in doubt it errs on the
// broad side: an extra delete costs one cache miss, a missing one serves
// stale data until the TTL runs out.
func SetFor(e Event) Set {
	b := newBuilder()

	switch e.Entity {
	case cache.EntityReservation:
		// Any page of any global list may match the changed row under some
		// filter, and the owner's pages shift on insert.
		b.key(cache.DetailKey(e.Entity, e.ID))
		b.key(cache.StatsKey(e.Entity))
		b.key(cache.DashboardStatsKey())
		for _, d := range e.Dates {
			b.key(cache.AvailableSlotsKey(d))
		}
		b.ownerPrefix(e.OwnerID, e.Entity)
		b.prefix(cache.AllListPrefix(e.Entity))

	case cache.EntityProfile:
		id := e.ID
		if id == "" {
			id = e.OwnerID
		}
		b.key(cache.DetailKey(e.Entity, id))
		b.key(cache.PublicDetailKey(e.Entity, id))
		b.key(cache.MainUserKey(id))
		b.prefix(cache.AllListPrefix(e.Entity))

	default:
		// samples, reports, notifications, protocols, readings
		b.key(cache.DetailKey(e.Entity, e.ID))
		b.key(cache.PublicDetailKey(e.Entity, e.ID))
		b.key(cache.StatsKey(e.Entity))
		b.key(cache.DashboardStatsKey())
		b.ownerPrefix(e.OwnerID, e.Entity)
		b.prefix(cache.AllListPrefix(e.Entity))
	}

	return b.set()
}

// Merge unions several sets.
func Merge(sets ...Set) Set {
	b := newBuilder()
	for _, s := range sets {
		for _, k := range s.Keys {
			b.key(k)
		}
		for _, p := range s.Prefixes {
			b.prefix(p)
		}
	}
	return b.set()
}

type builder struct {
	keys     map[string]struct{}
	prefixes map[string]struct{}
}

func newBuilder() *builder {
	return &builder{
		keys:     map[string]struct{}{},
		prefixes: map[string]struct{}{},
	}
}

func (b *builder) key(k string) {
	b.keys[k] = struct{}{}
}

func (b *builder) prefix(p string) {
	b.prefixes[p] = struct{}{}
}

// ownerPrefix drops the owner's list pages. Without a known owner every
// user's pages are dropped.
func (b *builder) ownerPrefix(ownerID string, entity cache.Entity) {
	if ownerID == "" {
		b.prefix("user" + cache.KeySeparator)
		return
	}
	b.prefix(cache.UserListPrefix(ownerID, entity))
}

func (b *builder) set() Set {
	var s Set

	// a key already covered by a prefix does not need its own delete
	for p := range b.prefixes {
		covered := false
		for other := range b.prefixes {
			if other != p && len(other) < len(p) && p[:len(other)] == other {
				covered = true
				break
			}
		}
		if !covered {
			s.Prefixes = append(s.Prefixes, p)
		}
	}
	for k := range b.keys {
		covered := false
		for _, p := range s.Prefixes {
			if len(k) >= len(p) && k[:len(p)] == p {
				covered = true
				break
			}
		}
		if !covered {
			s.Keys = append(s.Keys, k)
		}
	}

	sort.Strings(s.Keys)
	sort.Strings(s.Prefixes)
	return s
}

// Invalidator removes cache entries. *cache.ReadThrough implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, keys []string, prefixes []string) error
}

// Dispatcher issues deletes for committed mutations.
type Dispatcher struct {
	target Invalidator
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher deleting through target.
func NewDispatcher(target Invalidator, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{target: target, logger: logger}
}

// Dispatch deletes every entry made stale by events. The deletes run even
// if ctx was cancelled after the write committed. A failure is logged and
// returned; the entries it missed will expire with their TTL.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) (Set, error) {
	sets := make([]Set, 0, len(events))
	for _, e := range events {
		sets = append(sets, SetFor(e))
	}
	set := Merge(sets...)
	if set.Empty() {
		return set, nil
	}

	ctx = context.WithoutCancel(ctx)
	if err := d.target.Invalidate(ctx, set.Keys, set.Prefixes); err != nil {
		d.logger.Warn("cache invalidation failed, entries will expire by ttl",
			zap.Strings("keys", set.Keys),
			zap.Strings("prefixes", set.Prefixes),
			zap.Any("events", eventKinds(events)),
			zap.Error(err),
		)
		return set, err
	}

	d.logger.Debug("cache invalidated",
		zap.Strings("keys", set.Keys),
		zap.Strings("prefixes", set.Prefixes),
		zap.Any("events", eventKinds(events)),
	)
	return set, nil
}

// WriteFn performs an authoritative write and reports what it changed.
type WriteFn func(ctx context.Context) ([]Event, error)

// AfterWrite runs write and, only if it succeeds, invalidates the entries
// its events make stale. Write errors are returned untouched and nothing is
// invalidated. Invalidation errors are logged and swallowed: the write has
// committed and must be reported as successful.
func (d *Dispatcher) AfterWrite(ctx context.Context, write WriteFn) error {
	events, err := write(ctx)
	if err != nil {
		return err
	}
	_, _ = d.Dispatch(ctx, events...)
	return nil
}

func eventKinds(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, string(e.Entity)+"."+string(e.Kind))
	}
	return out
}
