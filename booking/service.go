package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/invalidation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Role is the privilege level of a caller.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Caller identifies who performs an operation.
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// Service is the reservation write flow plus the cached reads over it.
type Service struct {
	store      Store
	cache      *cache.ReadThrough
	ttl        cache.TTLPolicy
	dispatcher *invalidation.Dispatcher
	detector   *ConflictDetector
	slots      *SlotCalculator
	locks      *SlotLocker
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time
	loc        *time.Location
	stripes    int
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone slot dates and times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithTTL(policy cache.TTLPolicy) Option {
	return func(s *Service) {
		if policy != nil {
			s.ttl = policy.Merge()
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLockStripes sets the number of per slot lock stripes.
func WithLockStripes(n int) Option {
	return func(s *Service) {
		s.stripes = n
	}
}

// NewService wires the write flow over store, caching reads in rt.
func NewService(store Store, rt *cache.ReadThrough, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  rt,
		ttl:    cache.DefaultTTLPolicy(),
		logger: zap.NewNop(),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}

	s.dispatcher = invalidation.NewDispatcher(rt, s.logger)
	s.detector = NewConflictDetector(store)
	s.slots = NewSlotCalculator(store, rt, s.ttl.For(cache.ViewSlots), s.logger)
	s.locks = NewSlotLocker(s.stripes)
	return s
}

// Create books a slot for caller. The flow is: validate, take the slot lock,
// check for a conflict, insert, then invalidate. A conflict found by either
// the detector or the store's unique index performs no write and no
// invalidation.
func (s *Service) Create(ctx context.Context, caller Caller, input CreateInput) (*Reservation, error) {
	const op = "booking.Create"

	if caller.ID == "" {
		return nil, newError(op, KindForbidden, errors.New("anonymous caller"))
	}

	in := input.Normalize()
	if err := in.Validate(); err != nil {
		return nil, newError(op, KindValidation, err)
	}
	if err := notInPast(in.Date, in.Time, s.now().In(s.loc), s.loc); err != nil {
		return nil, newError(op, KindValidation, err)
	}

	unlock := s.locks.Lock(in.Date, in.Time)
	defer unlock()

	taken, err := s.detector.HasConflict(ctx, in.Date, in.Time)
	if err != nil {
		s.logger.Error("conflict check failed", zap.String("date", in.Date), zap.String("time", in.Time), zap.Error(err))
		return nil, newError(op, KindStorage, err)
	}
	if taken {
		return nil, newError(op, KindConflict, fmt.Errorf("%w: %s %s", ErrSlotTaken, in.Date, in.Time))
	}

	now := s.now().UTC()
	r := &Reservation{
		ID:        uuid.NewString(),
		OwnerID:   caller.ID,
		Date:      in.Date,
		Time:      in.Time,
		Purpose:   in.Purpose,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.dispatcher.AfterWrite(ctx, func(ctx context.Context) ([]invalidation.Event, error) {
		if err := s.store.Insert(ctx, r); err != nil {
			return nil, err
		}
		return []invalidation.Event{s.event(invalidation.KindCreated, r)}, nil
	})
	if errors.Is(err, ErrSlotTaken) {
		return nil, newError(op, KindConflict, err)
	}
	if err != nil {
		s.logger.Error("insert reservation failed", zap.String("date", in.Date), zap.String("time", in.Time), zap.Error(err))
		return nil, newError(op, KindStorage, err)
	}

	s.logger.Info("reservation created",
		zap.String("reservation_id", r.ID),
		zap.String("owner_id", r.OwnerID),
		zap.String("date", r.Date),
		zap.String("time", r.Time),
	)
	return r, nil
}

// Cancel cancels a pending or confirmed reservation owned by caller.
// Administrators may cancel any reservation.
func (s *Service) Cancel(ctx context.Context, caller Caller, id string) (*Reservation, error) {
	const op = "booking.Cancel"

	r, err := s.loadForWrite(ctx, op, caller, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, op, r, StatusCancelled, r.Status.CanTransitionTo)
}

// UpdateStatus moves a reservation forward. Only administrators may call it
// and they may skip states, e.g. pending -> completed; the owner is notified
// afterwards.
func (s *Service) UpdateStatus(ctx context.Context, caller Caller, id string, to Status) (*Reservation, error) {
	const op = "booking.UpdateStatus"

	if !caller.IsAdmin() {
		return nil, newError(op, KindForbidden, errors.New("status updates require the admin role"))
	}
	if !to.Valid() {
		return nil, newError(op, KindValidation, fmt.Errorf("%w: unknown status %q", ErrValidation, to))
	}

	r, err := s.loadForWrite(ctx, op, caller, id)
	if err != nil {
		return nil, err
	}
	from := r.Status

	updated, err := s.transition(ctx, op, r, to, from.CanAdvanceTo)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.StatusChanged(context.WithoutCancel(ctx), *updated, from); err != nil {
		s.logger.Warn("status change notification failed",
			zap.String("reservation_id", updated.ID),
			zap.Error(err),
		)
	}
	return updated, nil
}

func (s *Service) loadForWrite(ctx context.Context, op string, caller Caller, id string) (*Reservation, error) {
	r, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(op, KindNotFound, err)
	}
	if err != nil {
		return nil, newError(op, KindStorage, err)
	}
	// other users' reservations do not exist as far as the caller can tell
	if !caller.IsAdmin() && !r.OwnedBy(caller.ID) {
		return nil, newError(op, KindNotFound, ErrNotFound)
	}
	return r, nil
}

func (s *Service) transition(ctx context.Context, op string, r *Reservation, to Status, allowed func(Status) bool) (*Reservation, error) {
	from := r.Status
	if !allowed(to) {
		return nil, newError(op, KindValidation, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to))
	}

	now := s.now().UTC()
	kind := invalidation.KindStatusChanged
	if to == StatusCancelled {
		kind = invalidation.KindCancelled
	}

	updated := *r
	updated.Status = to
	updated.UpdatedAt = now

	err := s.dispatcher.AfterWrite(ctx, func(ctx context.Context) ([]invalidation.Event, error) {
		if err := s.store.UpdateStatus(ctx, r.ID, from, to, now); err != nil {
			return nil, err
		}
		return []invalidation.Event{s.event(kind, &updated)}, nil
	})
	switch {
	case errors.Is(err, ErrStatusChanged):
		return nil, newError(op, KindConflict, err)
	case errors.Is(err, ErrNotFound):
		return nil, newError(op, KindNotFound, err)
	case err != nil:
		s.logger.Error("update reservation status failed", zap.String("reservation_id", r.ID), zap.Error(err))
		return nil, newError(op, KindStorage, err)
	}

	s.logger.Info("reservation status updated",
		zap.String("reservation_id", r.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return &updated, nil
}

func (s *Service) event(kind invalidation.Kind, r *Reservation) invalidation.Event {
	return invalidation.Event{
		Kind:    kind,
		Entity:  cache.EntityReservation,
		ID:      r.ID,
		OwnerID: r.OwnerID,
		Dates:   []string{r.Date},
	}
}

// Get returns one reservation through the cache. Callers only see their
// own reservations unless they are administrators.
func (s *Service) Get(ctx context.Context, caller Caller, id string) (*Reservation, error) {
	const op = "booking.Get"

	r, err := cache.GetOrLoad(ctx, s.cache, cache.DetailKey(cache.EntityReservation, id), s.ttl.For(cache.ViewDetail),
		func(ctx context.Context) (*Reservation, error) {
			return s.store.Get(ctx, id)
		})
	if errors.Is(err, ErrNotFound) {
		return nil, newError(op, KindNotFound, err)
	}
	if err != nil {
		return nil, newError(op, KindStorage, err)
	}
	if r == nil || (!caller.IsAdmin() && !r.OwnedBy(caller.ID)) {
		return nil, newError(op, KindNotFound, ErrNotFound)
	}
	return r, nil
}

// List returns a page of reservations. Administrators read the global list
// with search and status filters; everyone else reads their own list, which
// is paginated only.
func (s *Service) List(ctx context.Context, caller Caller, q cache.ListQuery) (cache.Page[Reservation], error) {
	const op = "booking.List"

	q = q.Normalize()
	ttl := s.ttl.For(cache.ViewList)

	var (
		page cache.Page[Reservation]
		err  error
	)
	if caller.IsAdmin() {
		page, err = cache.GetOrLoad(ctx, s.cache, cache.AllListKey(cache.EntityReservation, q), ttl,
			func(ctx context.Context) (cache.Page[Reservation], error) {
				records, total, err := s.store.List(ctx, q)
				return newPage(records, total, q), err
			})
	} else {
		own := cache.ListQuery{Page: q.Page, Limit: q.Limit}
		page, err = cache.GetOrLoad(ctx, s.cache, cache.UserListKey(caller.ID, cache.EntityReservation, q.Page, q.Limit), ttl,
			func(ctx context.Context) (cache.Page[Reservation], error) {
				records, total, err := s.store.ListByOwner(ctx, caller.ID, own)
				return newPage(records, total, own), err
			})
	}
	if err != nil {
		return cache.Page[Reservation]{}, newError(op, KindStorage, err)
	}
	return page, nil
}

func newPage(records []Reservation, total int, q cache.ListQuery) cache.Page[Reservation] {
	if records == nil {
		records = []Reservation{}
	}
	return cache.Page[Reservation]{Records: records, Total: total, Page: q.Page, Limit: q.Limit}
}

// Stats returns reservation counts. Administrators only.
func (s *Service) Stats(ctx context.Context, caller Caller) (Stats, error) {
	const op = "booking.Stats"

	if !caller.IsAdmin() {
		return Stats{}, newError(op, KindForbidden, errors.New("stats require the admin role"))
	}
	stats, err := cache.GetOrLoad(ctx, s.cache, cache.StatsKey(cache.EntityReservation), s.ttl.For(cache.ViewStats), s.loadStats)
	if err != nil {
		return Stats{}, newError(op, KindStorage, err)
	}
	return stats, nil
}

func (s *Service) loadStats(ctx context.Context) (Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	upcoming, err := s.store.CountUpcoming(ctx, s.today())
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Pending:   counts[StatusPending],
		Confirmed: counts[StatusConfirmed],
		Cancelled: counts[StatusCancelled],
		Completed: counts[StatusCompleted],
		Upcoming:  upcoming,
	}
	stats.Total = stats.Pending + stats.Confirmed + stats.Cancelled + stats.Completed
	return stats, nil
}

// Dashboard returns the admin dashboard aggregate.
func (s *Service) Dashboard(ctx context.Context, caller Caller) (Dashboard, error) {
	const op = "booking.Dashboard"

	if !caller.IsAdmin() {
		return Dashboard{}, newError(op, KindForbidden, errors.New("dashboard requires the admin role"))
	}

	d, err := cache.GetOrLoad(ctx, s.cache, cache.DashboardStatsKey(), s.ttl.For(cache.ViewDashboard),
		func(ctx context.Context) (Dashboard, error) {
			stats, err := s.loadStats(ctx)
			if err != nil {
				return Dashboard{}, err
			}
			today := s.today()
			slots, err := s.slots.Compute(ctx, today)
			if err != nil {
				return Dashboard{}, err
			}

			d := Dashboard{Reservations: stats, Today: today, GeneratedAt: s.now().UTC()}
			for _, slot := range slots {
				if slot.Available {
					d.TodayAvailable++
				} else {
					d.TodayBooked++
				}
			}
			return d, nil
		})
	if err != nil {
		return Dashboard{}, newError(op, KindStorage, err)
	}
	return d, nil
}

// AvailableSlots returns the slot map of date.
func (s *Service) AvailableSlots(ctx context.Context, date string) ([]Slot, error) {
	return s.slots.SlotsFor(ctx, date)
}

// HasConflict exposes the detector for callers that want to pre check a
// slot. The answer is advisory; Create re-checks under the slot lock.
func (s *Service) HasConflict(ctx context.Context, date, slotTime string) (bool, error) {
	return s.detector.HasConflict(ctx, date, NormalizeTime(slotTime))
}

func (s *Service) today() string {
	return s.now().In(s.loc).Format(DateLayout)
}
