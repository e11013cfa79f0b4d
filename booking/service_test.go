package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Caller{ID: "u-alice", Role: RoleUser}
	bob   = Caller{ID: "u-bob", Role: RoleUser}
	admin = Caller{ID: "u-admin", Role: RoleAdmin}
)

// fixed clock well before the dates booked in these tests
func testClock() time.Time {
	return time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T, store Store, opts ...Option) (*Service, *cache.ReadThrough) {
	t.Helper()

	cfg := cache.DefaultConfig()
	cfg.Driver = cache.DriverMemory
	rt, err := cache.NewReadThroughFromConfig(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Store().Close() })

	opts = append([]Option{WithClock(testClock)}, opts...)
	return NewService(store, rt, opts...), rt
}

func cached(t *testing.T, rt *cache.ReadThrough, key string) bool {
	t.Helper()
	_, ok, err := rt.Store().Get(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func slotAt(t *testing.T, slots []Slot, at string) Slot {
	t.Helper()
	for _, s := range slots {
		if s.Time == at {
			return s
		}
	}
	t.Fatalf("slot %s not in %v", at, slots)
	return Slot{}
}

func TestComputeSlots(t *testing.T) {
	t.Run("empty day is the full template", func(t *testing.T) {
		slots := ComputeSlots(nil)
		require.Len(t, slots, 8)
		for _, s := range slots {
			assert.True(t, s.Available, s.Time)
		}
		assert.Equal(t, Slot{Time: "09:00:00", DisplayTime: "9:00 AM", Available: true}, slots[0])
		assert.Equal(t, Slot{Time: "16:00:00", DisplayTime: "4:00 PM", Available: true}, slots[7])
	})

	t.Run("fully booked day has nothing available", func(t *testing.T) {
		var booked []Reservation
		for _, at := range SlotTemplate {
			booked = append(booked, Reservation{Date: "2025-06-01", Time: at, Status: StatusConfirmed})
		}
		for _, s := range ComputeSlots(booked) {
			assert.False(t, s.Available, s.Time)
		}
	})

	t.Run("cancelled reservations free their slot", func(t *testing.T) {
		slots := ComputeSlots([]Reservation{
			{Time: "10:00:00", Status: StatusCancelled},
			{Time: "11:00:00", Status: StatusPending},
			{Time: "12:00:00", Status: StatusCompleted},
		})
		assert.True(t, slotAt(t, slots, "10:00:00").Available)
		assert.False(t, slotAt(t, slots, "11:00:00").Available)
		assert.False(t, slotAt(t, slots, "12:00:00").Available)
	})
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestStatus_AdminAdvance(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPending, StatusPending, false},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusPending, Status("archived"), false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestNormalizeTime(t *testing.T) {
	assert.Equal(t, "10:00:00", NormalizeTime("10:00"))
	assert.Equal(t, "09:00:00", NormalizeTime(" 09:00:00 "))
	assert.Equal(t, "9am", NormalizeTime("9am"))
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateInput
		field string
	}{
		{"missing date", CreateInput{Time: "10:00", Purpose: "blood work"}, "date"},
		{"bad date", CreateInput{Date: "01/06/2025", Time: "10:00", Purpose: "blood work"}, "date"},
		{"missing time", CreateInput{Date: "2025-06-01", Purpose: "blood work"}, "time"},
		{"off template time", CreateInput{Date: "2025-06-01", Time: "09:30", Purpose: "blood work"}, "time"},
		{"after hours", CreateInput{Date: "2025-06-01", Time: "17:00", Purpose: "blood work"}, "time"},
		{"missing purpose", CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "  "}, "purpose"},
		{"past date", CreateInput{Date: "2025-04-30", Time: "10:00", Purpose: "blood work"}, "date"},
		{"earlier today", CreateInput{Date: "2025-05-01", Time: "07:00", Purpose: "x"}, "time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc, _ := newTestService(t, store)

			_, err := svc.Create(context.Background(), alice, tt.input)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.True(t, errors.Is(err, ErrValidation))

			var fields validation.Errors
			require.True(t, errors.As(err, &fields), "expected field errors, got %v", err)
			assert.Contains(t, fields, tt.field)

			assert.Zero(t, store.checks.Load(), "conflict check ran for invalid input")
			assert.Zero(t, store.inserts.Load(), "invalid input was written")
		})
	}
}

func TestCreate_PastSlotToday(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)

	// clock is 08:00 on 2025-05-01, so 09:00 the same day is still bookable
	r, err := svc.Create(context.Background(), alice, CreateInput{Date: "2025-05-01", Time: "09:00", Purpose: "x"})
	require.NoError(t, err)
	assert.Equal(t, "09:00:00", r.Time)
}

func TestCreate_InsertsPendingAndInvalidates(t *testing.T) {
	store := newMemStore()
	svc, rt := newTestService(t, store)
	ctx := context.Background()

	// warm every view the new reservation makes stale
	_, err := svc.AvailableSlots(ctx, "2025-06-01")
	require.NoError(t, err)
	_, err = svc.List(ctx, alice, cache.ListQuery{})
	require.NoError(t, err)
	_, err = svc.List(ctx, admin, cache.ListQuery{Status: "pending"})
	require.NoError(t, err)
	_, err = svc.Stats(ctx, admin)
	require.NoError(t, err)
	_, err = svc.AvailableSlots(ctx, "2025-06-02")
	require.NoError(t, err)

	r, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "Blood work"})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, alice.ID, r.OwnerID)
	assert.Equal(t, "10:00:00", r.Time)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, testClock(), r.CreatedAt)

	assert.False(t, cached(t, rt, cache.AvailableSlotsKey("2025-06-01")))
	assert.False(t, cached(t, rt, cache.UserListKey(alice.ID, cache.EntityReservation, 1, 10)))
	assert.False(t, cached(t, rt, cache.AllListKey(cache.EntityReservation, cache.ListQuery{Status: "pending"})))
	assert.False(t, cached(t, rt, cache.StatsKey(cache.EntityReservation)))
	assert.True(t, cached(t, rt, cache.AvailableSlotsKey("2025-06-02")), "unrelated day was invalidated")

	page, err := svc.List(ctx, alice, cache.ListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, r.ID, page.Records[0].ID)
}

func TestCreate_ConflictPerformsNoWriteAndNoInvalidation(t *testing.T) {
	store := newMemStore()
	svc, rt := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "first"})
	require.NoError(t, err)

	_, err = svc.AvailableSlots(ctx, "2025-06-01")
	require.NoError(t, err)
	invalidations := rt.Stats().Invalidations

	_, err = svc.Create(ctx, bob, CreateInput{Date: "2025-06-01", Time: "10:00:00", Purpose: "second"})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.True(t, errors.Is(err, ErrSlotTaken))

	assert.Equal(t, int64(1), store.inserts.Load())
	assert.Equal(t, invalidations, rt.Stats().Invalidations)
	assert.True(t, cached(t, rt, cache.AvailableSlotsKey("2025-06-01")))
}

func TestCreate_NoDoubleBooking(t *testing.T) {
	tests := []struct {
		name  string
		store func() *memStore
	}{
		{
			name: "detector under slot lock",
			store: func() *memStore {
				s := newMemStore()
				s.existsDelay = time.Millisecond
				return s
			},
		},
		{
			// the detector always answers "free"; the store's uniqueness
			// rule is the only thing standing between the callers
			name: "store uniqueness",
			store: func() *memStore {
				s := newMemStore()
				s.blindExists = true
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store()
			svc, _ := newTestService(t, store)

			const n = 25
			var (
				wg        sync.WaitGroup
				start     = make(chan struct{})
				succeeded atomic.Int64
				conflicts atomic.Int64
				other     = make(chan error, n)
			)

			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					caller := Caller{ID: fmt.Sprintf("u-%d", i), Role: RoleUser}
					_, err := svc.Create(context.Background(), caller, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "stress"})
					switch {
					case err == nil:
						succeeded.Add(1)
					case KindOf(err) == KindConflict:
						conflicts.Add(1)
					default:
						other <- err
					}
				}(i)
			}
			close(start)
			wg.Wait()
			close(other)

			for err := range other {
				t.Errorf("unexpected error: %v", err)
			}
			assert.Equal(t, int64(1), succeeded.Load())
			assert.Equal(t, int64(n-1), conflicts.Load())
			assert.Equal(t, 1, store.activeCount("2025-06-01", "10:00:00"))
		})
	}
}

func TestCreate_StorageFailure(t *testing.T) {
	store := newMemStore()
	store.existsErr = errors.New("connection reset")
	svc, rt := newTestService(t, store)

	_, err := svc.Create(context.Background(), alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
	require.Error(t, err)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Zero(t, store.inserts.Load())
	assert.Zero(t, rt.Stats().Invalidations)

	store.existsErr = nil
	store.insertErr = errors.New("disk full")
	_, err = svc.Create(context.Background(), alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
	require.Error(t, err)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Zero(t, rt.Stats().Invalidations)
}

func TestCreate_AnonymousCaller(t *testing.T) {
	svc, _ := newTestService(t, newMemStore())

	_, err := svc.Create(context.Background(), Caller{}, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
	assert.Equal(t, KindForbidden, KindOf(err))
}

// Create, see the slot taken, fail a second booking, cancel, see it free.
func TestReservationLifecycle_EndToEnd(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00:00", Purpose: "checkup"})
	require.NoError(t, err)

	slots, err := svc.AvailableSlots(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.False(t, slotAt(t, slots, "10:00:00").Available)
	assert.True(t, slotAt(t, slots, "11:00:00").Available)

	// served from cache now
	loads := store.loads.Load()
	_, err = svc.AvailableSlots(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, loads, store.loads.Load())

	_, err = svc.Create(ctx, bob, CreateInput{Date: "2025-06-01", Time: "10:00:00", Purpose: "checkup"})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, int64(1), store.inserts.Load())

	cancelled, err := svc.Cancel(ctx, alice, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	slots, err = svc.AvailableSlots(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.True(t, slotAt(t, slots, "10:00:00").Available, "slot still cached as taken after cancel")

	// and the freed slot can be booked again
	_, err = svc.Create(ctx, bob, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "checkup"})
	require.NoError(t, err)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Service, *memStore, *Reservation) {
		store := newMemStore()
		svc, _ := newTestService(t, store)
		r, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
		require.NoError(t, err)
		return svc, store, r
	}

	t.Run("other users see not found", func(t *testing.T) {
		svc, store, r := setup(t)
		_, err := svc.Cancel(ctx, bob, r.ID)
		assert.Equal(t, KindNotFound, KindOf(err))
		assert.Zero(t, store.updates.Load())
	})

	t.Run("unknown id", func(t *testing.T) {
		svc, _, _ := setup(t)
		_, err := svc.Cancel(ctx, alice, "missing")
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("admin may cancel any reservation", func(t *testing.T) {
		svc, _, r := setup(t)
		got, err := svc.Cancel(ctx, admin, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
	})

	t.Run("terminal states reject cancel", func(t *testing.T) {
		svc, _, r := setup(t)
		_, err := svc.Cancel(ctx, alice, r.ID)
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, alice, r.ID)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("concurrent status change wins", func(t *testing.T) {
		svc, store, r := setup(t)
		store.beforeUpdate = func() {
			store.mu.Lock()
			row := store.rows[r.ID]
			row.Status = StatusConfirmed
			store.rows[r.ID] = row
			store.mu.Unlock()
		}

		_, err := svc.Cancel(ctx, alice, r.ID)
		assert.Equal(t, KindConflict, KindOf(err))
		assert.True(t, errors.Is(err, ErrStatusChanged))
	})
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("requires admin", func(t *testing.T) {
		svc, _ := newTestService(t, newMemStore())
		r, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, alice, r.ID, StatusConfirmed)
		assert.Equal(t, KindForbidden, KindOf(err))
	})

	t.Run("forward transitions notify the owner", func(t *testing.T) {
		var notified []Status
		notifier := NotifierFunc(func(ctx context.Context, r Reservation, from Status) error {
			notified = append(notified, from, r.Status)
			return nil
		})
		svc, rt := newTestService(t, newMemStore(), WithNotifier(notifier))

		r, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
		require.NoError(t, err)

		// detail is cached as pending
		got, err := svc.Get(ctx, alice, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)

		_, err = svc.UpdateStatus(ctx, admin, r.ID, StatusConfirmed)
		require.NoError(t, err)
		assert.False(t, cached(t, rt, cache.DetailKey(cache.EntityReservation, r.ID)))

		updated, err := svc.UpdateStatus(ctx, admin, r.ID, StatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, updated.Status)

		got, err = svc.Get(ctx, alice, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)

		assert.Equal(t, []Status{StatusPending, StatusConfirmed, StatusConfirmed, StatusCompleted}, notified)
	})

	t.Run("admins may skip ahead but never go back", func(t *testing.T) {
		svc, _ := newTestService(t, newMemStore())
		r, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
		require.NoError(t, err)

		updated, err := svc.UpdateStatus(ctx, admin, r.ID, StatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, updated.Status)

		_, err = svc.UpdateStatus(ctx, admin, r.ID, StatusConfirmed)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.True(t, errors.Is(err, ErrInvalidTransition))

		_, err = svc.UpdateStatus(ctx, admin, r.ID, Status("archived"))
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("notifier failure does not fail the update", func(t *testing.T) {
		notifier := NotifierFunc(func(ctx context.Context, r Reservation, from Status) error {
			return errors.New("smtp down")
		})
		store := newMemStore()
		svc, _ := newTestService(t, store, WithNotifier(notifier))

		r, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
		require.NoError(t, err)

		updated, err := svc.UpdateStatus(ctx, admin, r.ID, StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, updated.Status)
		assert.Equal(t, int64(1), store.updates.Load())
	})
}

func TestGet_OwnershipAndCaching(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	r, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	loads := store.loads.Load()
	_, err = svc.Get(ctx, admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, loads, store.loads.Load(), "second read should be a cache hit")

	_, err = svc.Get(ctx, bob, r.ID)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = svc.Get(ctx, alice, "missing")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestList_Partitions(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	for i, at := range []string{"09:00", "10:00", "11:00"} {
		caller := alice
		if i == 2 {
			caller = bob
		}
		_, err := svc.Create(ctx, caller, CreateInput{Date: "2025-06-01", Time: at, Purpose: fmt.Sprintf("visit %d", i)})
		require.NoError(t, err)
	}

	mine, err := svc.List(ctx, alice, cache.ListQuery{Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, 2, mine.Total, "owner lists ignore filters")
	assert.Equal(t, 1, mine.Page)
	assert.Equal(t, 10, mine.Limit)

	all, err := svc.List(ctx, admin, cache.ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Len(t, all.Records, 2)

	filtered, err := svc.List(ctx, admin, cache.ListQuery{Search: "VISIT 2"})
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Total)

	none, err := svc.List(ctx, admin, cache.ListQuery{Status: "completed"})
	require.NoError(t, err)
	assert.NotNil(t, none.Records)
	assert.Empty(t, none.Records)
}

func TestStatsAndDashboard(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Stats(ctx, alice)
	assert.Equal(t, KindForbidden, KindOf(err))
	_, err = svc.Dashboard(ctx, alice)
	assert.Equal(t, KindForbidden, KindOf(err))

	r, err := svc.Create(ctx, alice, CreateInput{Date: "2025-06-01", Time: "10:00", Purpose: "x"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, CreateInput{Date: "2025-05-01", Time: "15:00", Purpose: "x"})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, alice, r.ID)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Pending: 1, Cancelled: 1, Upcoming: 1}, stats)

	d, err := svc.Dashboard(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01", d.Today)
	assert.Equal(t, 1, d.TodayBooked)
	assert.Equal(t, 7, d.TodayAvailable)
	assert.Equal(t, stats, d.Reservations)
}

func TestSlotsFor_RejectsBadDate(t *testing.T) {
	svc, _ := newTestService(t, newMemStore())

	_, err := svc.AvailableSlots(context.Background(), "June 1st")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestSlotLocker_SameSlotSameStripe(t *testing.T) {
	l := NewSlotLocker(8)
	assert.Equal(t, l.stripe("2025-06-01", "10:00:00"), l.stripe("2025-06-01", "10:00:00"))

	unlock := l.Lock("2025-06-01", "10:00:00")
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		l.Lock("2025-06-01", "10:00:00")()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same slot did not block")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
}
