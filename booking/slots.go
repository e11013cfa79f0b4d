package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-reservation-cache/cache"
	"go.uber.org/zap"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	displayLayout = "3:04 PM"
)

// Working hours: one slot per hour from 09:00 through 16:00 inclusive.
const (
	firstSlotHour = 9
	lastSlotHour  = 16
)

// SlotTemplate is the fixed daily set of bookable times.
var SlotTemplate = buildTemplate()

func buildTemplate() []string {
	out := make([]string, 0, lastSlotHour-firstSlotHour+1)
	for h := firstSlotHour; h <= lastSlotHour; h++ {
		out = append(out, fmt.Sprintf("%02d:00:00", h))
	}
	return out
}

// Slot is one template time on a given day.
type Slot struct {
	Time        string `json:"time"`
	DisplayTime string `json:"display_time"`
	Available   bool   `json:"available"`
}

// IsTemplateTime reports whether t ("HH:MM:SS") is a bookable slot.
func IsTemplateTime(t string) bool {
	for _, s := range SlotTemplate {
		if s == t {
			return true
		}
	}
	return false
}

// NormalizeTime accepts "HH:MM" or "HH:MM:SS" and returns "HH:MM:SS".
// Anything else is returned trimmed and left for validation to reject.
func NormalizeTime(t string) string {
	t = strings.TrimSpace(t)
	if parsed, err := time.Parse("15:04", t); err == nil {
		return parsed.Format(TimeLayout)
	}
	if parsed, err := time.Parse(TimeLayout, t); err == nil {
		return parsed.Format(TimeLayout)
	}
	return t
}

// DisplayTime renders a slot time for people, e.g. "10:00:00" -> "10:00 AM".
func DisplayTime(t string) string {
	parsed, err := time.Parse(TimeLayout, t)
	if err != nil {
		return t
	}
	return parsed.Format(displayLayout)
}

// ComputeSlots marks every template time taken by an active reservation as
// unavailable. It runs in O(len(SlotTemplate) + len(reservations)).
func ComputeSlots(reservations []Reservation) []Slot {
	taken := make(map[string]struct{}, len(reservations))
	for _, r := range reservations {
		if r.Status.Active() {
			taken[r.Time] = struct{}{}
		}
	}

	slots := make([]Slot, 0, len(SlotTemplate))
	for _, t := range SlotTemplate {
		_, busy := taken[t]
		slots = append(slots, Slot{
			Time:        t,
			DisplayTime: DisplayTime(t),
			Available:   !busy,
		})
	}
	return slots
}

// SlotCalculator serves the per day availability map through the cache.
type SlotCalculator struct {
	store  Store
	cache  *cache.ReadThrough
	ttl    time.Duration
	logger *zap.Logger
}

// NewSlotCalculator creates a calculator caching each day for ttl.
func NewSlotCalculator(store Store, rt *cache.ReadThrough, ttl time.Duration, logger *zap.Logger) *SlotCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = cache.DefaultTTLPolicy().For(cache.ViewSlots)
	}
	return &SlotCalculator{store: store, cache: rt, ttl: ttl, logger: logger}
}

// SlotsFor returns the availability of every template slot on date.
func (c *SlotCalculator) SlotsFor(ctx context.Context, date string) ([]Slot, error) {
	const op = "booking.SlotsFor"

	day, err := parseDate(date)
	if err != nil {
		return nil, newError(op, KindValidation, err)
	}

	slots, err := cache.GetOrLoad(ctx, c.cache, cache.AvailableSlotsKey(day), c.ttl, func(ctx context.Context) ([]Slot, error) {
		return c.Compute(ctx, day)
	})
	if err != nil {
		return nil, newError(op, KindStorage, err)
	}
	return slots, nil
}

// Compute builds the availability map from the authoritative store.
func (c *SlotCalculator) Compute(ctx context.Context, date string) ([]Slot, error) {
	active, err := c.store.ActiveOnDate(ctx, date)
	if err != nil {
		c.logger.Error("load active reservations failed", zap.String("date", date), zap.Error(err))
		return nil, err
	}
	return ComputeSlots(active), nil
}

func parseDate(date string) (string, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	return parsed.Format(DateLayout), nil
}
