package cache

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goliatone/go-reservation-cache/internal/cacheinfra"
)

// View classifies a cached read for TTL purposes.
type View string

const (
	ViewDetail    View = "detail"
	ViewList      View = "list"
	ViewCounter   View = "counter"
	ViewStats     View = "stats"
	ViewDashboard View = "dashboard"
	ViewPublic    View = "public"
	ViewSlots     View = "slots"
)

// TTLPolicy maps a view class to the lifetime of its cache entries.
type TTLPolicy map[View]time.Duration

// DefaultTTLPolicy returns the standard lifetimes per view class.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		ViewDetail:    600 * time.Second,
		ViewList:      300 * time.Second,
		ViewCounter:   120 * time.Second,
		ViewStats:     600 * time.Second,
		ViewDashboard: 900 * time.Second,
		ViewPublic:    900 * time.Second,
		ViewSlots:     300 * time.Second,
	}
}

// For returns the TTL for v, falling back to the default policy for views
// the receiver does not override.
func (p TTLPolicy) For(v View) time.Duration {
	if d, ok := p[v]; ok && d > 0 {
		return d
	}
	if d, ok := DefaultTTLPolicy()[v]; ok {
		return d
	}
	return DefaultTTLPolicy()[ViewList]
}

// With returns a copy of p with v set to d.
func (p TTLPolicy) With(v View, d time.Duration) TTLPolicy {
	out := make(TTLPolicy, len(p)+1)
	for k, val := range p {
		out[k] = val
	}
	out[v] = d
	return out
}

// Merge returns the default policy overridden by p.
func (p TTLPolicy) Merge() TTLPolicy {
	out := DefaultTTLPolicy()
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Validate checks every TTL is positive and finite.
func (p TTLPolicy) Validate() error {
	views := make([]string, 0, len(p))
	for v := range p {
		views = append(views, string(v))
	}
	sort.Strings(views)

	for _, name := range views {
		d := p[View(name)]
		if d <= 0 {
			return &cacheinfra.ConfigError{Field: "TTL." + name, Message: "must be greater than 0"}
		}
		if d == time.Duration(math.MaxInt64) {
			return &cacheinfra.ConfigError{Field: "TTL." + name, Message: "must be finite"}
		}
	}
	return nil
}

// String renders the policy in a stable order, mostly for logs.
func (p TTLPolicy) String() string {
	views := make([]string, 0, len(p))
	for v := range p {
		views = append(views, string(v))
	}
	sort.Strings(views)

	out := ""
	for i, v := range views {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%s", v, p[View(v)])
	}
	return out
}
