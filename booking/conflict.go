package booking

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ConflictDetector answers whether a slot is already taken. It always reads
// the authoritative store.
type ConflictDetector struct {
	store Store
}

func NewConflictDetector(store Store) *ConflictDetector {
	return &ConflictDetector{store: store}
}

// HasConflict reports whether an active reservation holds exactly
// (date, slotTime).
func (d *ConflictDetector) HasConflict(ctx context.Context, date, slotTime string) (bool, error) {
	return d.store.ExistsActive(ctx, date, slotTime)
}

const defaultLockStripes = 64

// SlotLocker serializes check-then-insert per slot inside one process.
// Slots hash onto a fixed set of mutexes, so two different slots may share
// a stripe; that only costs contention, never correctness.
type SlotLocker struct {
	stripes []sync.Mutex
}

// NewSlotLocker creates a locker with n stripes.
func NewSlotLocker(n int) *SlotLocker {
	if n <= 0 {
		n = defaultLockStripes
	}
	return &SlotLocker{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe of (date, slotTime) and returns its release.
func (l *SlotLocker) Lock(date, slotTime string) (unlock func()) {
	m := &l.stripes[l.stripe(date, slotTime)]
	m.Lock()
	return m.Unlock
}

func (l *SlotLocker) stripe(date, slotTime string) int {
	return int(xxhash.Sum64String(date+"|"+slotTime) % uint64(len(l.stripes)))
}
