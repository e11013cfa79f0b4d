package booking

import (
	"errors"
	"fmt"
)

// Kind classifies a booking failure so transports can map it without
// inspecting messages.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindStorage    Kind = "storage"
)

var (
	ErrValidation = errors.New("invalid input")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("reservation not found")
	ErrForbidden  = errors.New("forbidden")
	ErrStorage    = errors.New("storage failure")

	// ErrSlotTaken is returned by Store.Insert when an active reservation
	// already occupies the slot.
	ErrSlotTaken = errors.New("slot already booked")
	// ErrStatusChanged is returned by Store.UpdateStatus when the row no
	// longer has the expected status.
	ErrStatusChanged = errors.New("reservation status changed concurrently")
	// ErrInvalidTransition rejects a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

var kindSentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindConflict:   ErrConflict,
	KindNotFound:   ErrNotFound,
	KindForbidden:  ErrForbidden,
	KindStorage:    ErrStorage,
}

// Error is returned by every Service operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind, so errors.Is(err,
// ErrConflict) holds for every conflict regardless of its cause.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindStorage for errors that did not
// come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}
