package booking

import (
	"time"

	"github.com/uptrace/bun"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Active reports whether a reservation in state s holds its slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var progress = map[Status]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusCompleted: 2,
}

// CanAdvanceTo reports whether an administrator may move s to next: any
// forward step, skipped states included, or a cancellation of a reservation
// that is still open.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return progress[next] > progress[s]
}

// Reservation books one template slot on one day.
//
// Date is "YYYY-MM-DD" and Time is "HH:MM:SS". Both are kept as text so the
// pair compares and indexes the same way on every supported database.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations,alias:r" json:"-"`

	ID        string    `bun:"id,pk" json:"id"`
	OwnerID   string    `bun:"owner_id,notnull" json:"owner_id"`
	Date      string    `bun:"slot_date,notnull" json:"date"`
	Time      string    `bun:"slot_time,notnull" json:"time"`
	Purpose   string    `bun:"purpose,notnull" json:"purpose"`
	Status    Status    `bun:"status,notnull" json:"status"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// OwnedBy reports whether userID owns the reservation.
func (r *Reservation) OwnedBy(userID string) bool {
	return r != nil && r.OwnerID == userID
}

// Stats aggregates reservation counts.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
	Completed int `json:"completed"`
	Upcoming  int `json:"upcoming"`
}

// Dashboard is the aggregate view served to administrators.
type Dashboard struct {
	Reservations   Stats     `json:"reservations"`
	Today          string    `json:"today"`
	TodayBooked    int       `json:"today_booked"`
	TodayAvailable int       `json:"today_available"`
	GeneratedAt    time.Time `json:"generated_at"`
}
