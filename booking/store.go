package booking

import (
	"context"
	"time"

	"github.com/goliatone/go-reservation-cache/cache"
)

// Store is the authoritative reservation store. Every read used to gate a
// write goes through it, never through the cache.
type Store interface {
	// ExistsActive reports whether a non cancelled reservation occupies the
	// slot (date, slotTime).
	ExistsActive(ctx context.Context, date, slotTime string) (bool, error)
	// ActiveOnDate returns the non cancelled reservations of one day in a
	// single query.
	ActiveOnDate(ctx context.Context, date string) ([]Reservation, error)
	// Insert stores r. It returns ErrSlotTaken when the store itself
	// rejects a second active reservation for the same slot.
	Insert(ctx context.Context, r *Reservation) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Reservation, error)
	// UpdateStatus moves id from `from` to `to` only if its current status is
	// still `from`. It returns ErrStatusChanged when it is not and
	// ErrNotFound when the row does not exist.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
	ListByOwner(ctx context.Context, ownerID string, q cache.ListQuery) ([]Reservation, int, error)
	List(ctx context.Context, q cache.ListQuery) ([]Reservation, int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	// CountUpcoming counts active reservations on or after date.
	CountUpcoming(ctx context.Context, date string) (int, error)
}
