package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-reservation-cache/booking"
	"github.com/goliatone/go-reservation-cache/cache"
)

func TestConcurrentBookingThroughContainer(t *testing.T) {
	c := newContainer(t, testConfig(t.TempDir(), cache.DriverMemory, ""))
	ctx := context.Background()
	date := nextWeek()

	const callers = 16
	var (
		wg        sync.WaitGroup
		created   atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			caller := booking.Caller{ID: fmt.Sprintf("user-%d", i), Role: booking.RoleUser}
			_, err := c.Reservations().Create(ctx, caller, booking.CreateInput{Date: date, Time: "12:00", Purpose: "Race"})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, booking.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if created.Load() != 1 || conflicts.Load() != callers-1 {
		t.Fatalf("Expected 1 booking and %d conflicts, got %d and %d", callers-1, created.Load(), conflicts.Load())
	}

	slots, err := c.Reservations().AvailableSlots(ctx, date)
	if err != nil {
		t.Fatalf("AvailableSlots() failed: %v", err)
	}
	for _, s := range slots {
		if s.Time == "12:00:00" && s.Available {
			t.Error("Expected 12:00 to be booked")
		}
	}
}

func TestConcurrentReadsCoalesce(t *testing.T) {
	c := newContainer(t, testConfig(t.TempDir(), cache.DriverMemory, ""))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Reservations().Stats(ctx, admin); err != nil {
				t.Errorf("Stats() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stats := c.Cache().Stats()
	if stats.Hits+stats.Misses != 32 {
		t.Errorf("Expected 32 lookups, got %+v", stats)
	}
	if stats.Loads > stats.Misses {
		t.Errorf("Loads should never exceed misses, got %+v", stats)
	}
}

func BenchmarkKeyGeneration(b *testing.B) {
	q := cache.ListQuery{Page: 3, Limit: 25, Search: "Blood", Status: "pending"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = cache.AllListKey(cache.EntityReservation, q)
		_ = cache.UserListKey("alice", cache.EntityReservation, 3, 25)
	}
}

func benchmarkCachedSlots(b *testing.B, driver string) {
	addr := ""
	if driver == cache.DriverRedis {
		mr := miniredis.RunT(b)
		addr = mr.Addr()
	}

	c, err := NewContainer(context.Background(), testConfig(b.TempDir(), driver, addr), nil)
	if err != nil {
		b.Fatalf("NewContainer() failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	date := nextWeek()
	if _, err := c.Reservations().AvailableSlots(ctx, date); err != nil {
		b.Fatalf("warm up failed: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.Reservations().AvailableSlots(ctx, date); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkCachedSlots_Memory(b *testing.B) { benchmarkCachedSlots(b, cache.DriverMemory) }
func BenchmarkCachedSlots_Redis(b *testing.B)  { benchmarkCachedSlots(b, cache.DriverRedis) }

func BenchmarkUncachedSlots(b *testing.B) {
	c, err := NewContainer(context.Background(), testConfig(b.TempDir(), cache.DriverMemory, ""), nil)
	if err != nil {
		b.Fatalf("NewContainer() failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	date := nextWeek()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Cache().Invalidate(ctx, []string{cache.AvailableSlotsKey(date)}, nil); err != nil {
			b.Fatal(err)
		}
		if _, err := c.Reservations().AvailableSlots(ctx, date); err != nil {
			b.Fatal(err)
		}
	}
}
