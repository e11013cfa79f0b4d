package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-reservation-cache/cache"
)

// memStore is an in-memory Store that enforces the same one active
// reservation per slot rule as the database index.
type memStore struct {
	mu   sync.Mutex
	rows map[string]Reservation

	checks  atomic.Int64
	inserts atomic.Int64
	updates atomic.Int64
	loads   atomic.Int64

	// hooks
	existsErr    error
	insertErr    error
	updateErr    error
	blindExists  bool
	existsDelay  time.Duration
	afterInsert  func()
	beforeUpdate func()
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]Reservation{}}
}

var _ Store = (*memStore)(nil)

func (m *memStore) ExistsActive(ctx context.Context, date, slotTime string) (bool, error) {
	m.checks.Add(1)
	if m.existsErr != nil {
		return false, m.existsErr
	}
	if m.existsDelay > 0 {
		time.Sleep(m.existsDelay)
	}
	if m.blindExists {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeAtLocked(date, slotTime), nil
}

func (m *memStore) activeAtLocked(date, slotTime string) bool {
	for _, r := range m.rows {
		if r.Date == date && r.Time == slotTime && r.Status.Active() {
			return true
		}
	}
	return false
}

func (m *memStore) ActiveOnDate(ctx context.Context, date string) ([]Reservation, error) {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Reservation
	for _, r := range m.rows {
		if r.Date == date && r.Status.Active() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Insert(ctx context.Context, r *Reservation) error {
	if m.insertErr != nil {
		return m.insertErr
	}

	m.mu.Lock()
	if m.activeAtLocked(r.Date, r.Time) {
		m.mu.Unlock()
		return fmt.Errorf("insert reservation: %w", ErrSlotTaken)
	}
	m.rows[r.ID] = *r
	m.mu.Unlock()

	m.inserts.Add(1)
	if m.afterInsert != nil {
		m.afterInsert()
	}
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Reservation, error) {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	if m.updateErr != nil {
		return m.updateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != from {
		return ErrStatusChanged
	}
	r.Status = to
	r.UpdatedAt = at
	m.rows[id] = r
	m.updates.Add(1)
	return nil
}

func (m *memStore) ListByOwner(ctx context.Context, ownerID string, q cache.ListQuery) ([]Reservation, int, error) {
	return m.list(q, func(r Reservation) bool { return r.OwnerID == ownerID })
}

func (m *memStore) List(ctx context.Context, q cache.ListQuery) ([]Reservation, int, error) {
	q = q.Normalize()
	return m.list(q, func(r Reservation) bool {
		if q.Status != "" && string(r.Status) != q.Status {
			return false
		}
		return q.Search == "" || strings.Contains(strings.ToLower(r.Purpose), q.Search)
	})
}

func (m *memStore) list(q cache.ListQuery, keep func(Reservation) bool) ([]Reservation, int, error) {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []Reservation
	for _, r := range m.rows {
		if keep(r) {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date < all[j].Date
		}
		return all[i].Time < all[j].Time
	})

	q = q.Normalize()
	start := q.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (m *memStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[Status]int{}
	for _, r := range m.rows {
		out[r.Status]++
	}
	return out, nil
}

func (m *memStore) CountUpcoming(ctx context.Context, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.rows {
		if r.Status.Active() && r.Date >= date {
			n++
		}
	}
	return n, nil
}

func (m *memStore) activeCount(date, slotTime string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.rows {
		if r.Date == date && r.Time == slotTime && r.Status.Active() {
			n++
		}
	}
	return n
}
