package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-reservation-cache/booking"
	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/repositorycache"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ReservationStore is the bun backed booking.Store. Paginated reads go
// through a go-repository-bun repository; the booking critical path uses
// explicit queries so the conditional update and the unique index are
// visible at the call site.
type ReservationStore struct {
	db      *bun.DB
	repo    repository.Repository[*booking.Reservation]
	timeout time.Duration
}

var _ booking.Store = (*ReservationStore)(nil)

func NewReservationStore(db *bun.DB, timeout time.Duration) *ReservationStore {
	if timeout <= 0 {
		timeout = DefaultConfig().OpTimeout
	}
	return &ReservationStore{
		db:      db,
		repo:    NewReservationRepository(db),
		timeout: timeout,
	}
}

func NewReservationRepository(db *bun.DB) repository.Repository[*booking.Reservation] {
	return repository.NewRepository[*booking.Reservation](db, repository.ModelHandlers[*booking.Reservation]{
		NewRecord:     func() *booking.Reservation { return &booking.Reservation{} },
		GetID:         func(r *booking.Reservation) uuid.UUID { return parseID(r.ID) },
		SetID:         func(r *booking.Reservation, id uuid.UUID) { r.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

func (s *ReservationStore) ExistsActive(ctx context.Context, date, slotTime string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.db.NewSelect().
		Model((*booking.Reservation)(nil)).
		Where("slot_date = ?", date).
		Where("slot_time = ?", slotTime).
		Where("status <> ?", booking.StatusCancelled).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check slot %s %s: %w", date, slotTime, err)
	}
	return exists, nil
}

func (s *ReservationStore) ActiveOnDate(ctx context.Context, date string) ([]booking.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []booking.Reservation
	err := s.db.NewSelect().
		Model(&out).
		Where("slot_date = ?", date).
		Where("status <> ?", booking.StatusCancelled).
		Order("slot_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reservations on %s: %w", date, err)
	}
	return out, nil
}

// Insert writes r. A violation of ActiveSlotIndex is reported as
// booking.ErrSlotTaken.
func (s *ReservationStore) Insert(ctx context.Context, r *booking.Reservation) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.NewInsert().Model(r).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert reservation: %w", booking.ErrSlotTaken)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (s *ReservationStore) Get(ctx context.Context, id string) (*booking.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := new(booking.Reservation)
	err := s.db.NewSelect().Model(r).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return r, nil
}

// UpdateStatus sets status to `to` only while it still equals `from`.
func (s *ReservationStore) UpdateStatus(ctx context.Context, id string, from, to booking.Status, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.NewUpdate().
		Model((*booking.Reservation)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update reservation %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reservation %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	exists, err := s.db.NewSelect().Model((*booking.Reservation)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return fmt.Errorf("update reservation %s: %w", id, err)
	}
	if !exists {
		return booking.ErrNotFound
	}
	return booking.ErrStatusChanged
}

func (s *ReservationStore) ListByOwner(ctx context.Context, ownerID string, q cache.ListQuery) ([]booking.Reservation, int, error) {
	return s.list(ctx, q, func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Where("?TableAlias.owner_id = ?", ownerID)
	})
}

func (s *ReservationStore) List(ctx context.Context, q cache.ListQuery) ([]booking.Reservation, int, error) {
	q = q.Normalize()
	criteria := []repository.SelectCriteria{}
	if q.Status != "" {
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("?TableAlias.status = ?", q.Status)
		})
	}
	if q.Search != "" {
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("LOWER(?TableAlias.purpose) LIKE ? ESCAPE '"+repositorycache.LikeEscape+"'", repositorycache.ContainsPattern(q.Search))
		})
	}
	return s.list(ctx, q, criteria...)
}

func (s *ReservationStore) list(ctx context.Context, q cache.ListQuery, criteria ...repository.SelectCriteria) ([]booking.Reservation, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q = q.Normalize()
	criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.
			OrderExpr("?TableAlias.slot_date ASC, ?TableAlias.slot_time ASC, ?TableAlias.id ASC").
			Limit(q.Limit).
			Offset(q.Offset())
	})

	records, total, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}

	out := make([]booking.Reservation, 0, len(records))
	for _, r := range records {
		out = append(out, *r)
	}
	return out, total, nil
}

func (s *ReservationStore) CountByStatus(ctx context.Context) (map[booking.Status]int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []struct {
		Status booking.Status `bun:"status"`
		N      int            `bun:"n"`
	}
	err := s.db.NewSelect().
		Model((*booking.Reservation)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS n").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count reservations by status: %w", err)
	}

	out := make(map[booking.Status]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func (s *ReservationStore) CountUpcoming(ctx context.Context, date string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.repo.Count(ctx, func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.
			Where("?TableAlias.slot_date >= ?", date).
			Where("?TableAlias.status <> ?", booking.StatusCancelled)
	})
	if err != nil {
		return 0, fmt.Errorf("count upcoming reservations: %w", err)
	}
	return n, nil
}
