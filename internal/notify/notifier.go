package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-reservation-cache/booking"
	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/internal/storage"
	"github.com/goliatone/go-reservation-cache/repositorycache"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned for notifications that do not exist or belong to
// someone else.
var ErrNotFound = errors.New("notification not found")

// Notifications stores an in-app notification for every status change made
// by an administrator. Creating the row invalidates the owner's notification
// list and unread counter.
type Notifications struct {
	resource *repositorycache.Resource[*storage.Notification]
	logger   *zap.Logger
	now      func() time.Time
}

var _ booking.Notifier = (*Notifications)(nil)

func New(resource *repositorycache.Resource[*storage.Notification], logger *zap.Logger) *Notifications {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifications{resource: resource, logger: logger, now: time.Now}
}

func (n *Notifications) StatusChanged(ctx context.Context, r booking.Reservation, from booking.Status) error {
	now := n.now().UTC()
	note := &storage.Notification{
		ID:            uuid.NewString(),
		OwnerID:       r.OwnerID,
		ReservationID: r.ID,
		Title:         "Reservation " + string(r.Status),
		Message:       Message(r, from),
		Status:        storage.NotificationUnread,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := n.resource.Create(ctx, note); err != nil {
		return fmt.Errorf("notify %s: %w", r.OwnerID, err)
	}
	n.logger.Debug("notification stored",
		zap.String("owner_id", r.OwnerID),
		zap.String("reservation_id", r.ID),
	)
	return nil
}

// Message renders the text shown to the owner.
func Message(r booking.Reservation, from booking.Status) string {
	return fmt.Sprintf("Your reservation on %s at %s changed from %s to %s.",
		r.Date, booking.DisplayTime(r.Time), from, r.Status)
}

// List returns one page of ownerID's notifications, newest first.
func (n *Notifications) List(ctx context.Context, ownerID string, q cache.ListQuery) (cache.Page[*storage.Notification], error) {
	return n.resource.ListForOwner(ctx, ownerID, q)
}

// Unread returns the cached unread counter of ownerID.
func (n *Notifications) Unread(ctx context.Context, ownerID string) (int, error) {
	return n.resource.CountForOwner(ctx, ownerID, storage.NotificationUnread)
}

// MarkRead flips one of ownerID's notifications to read.
func (n *Notifications) MarkRead(ctx context.Context, ownerID, id string) error {
	note, err := n.resource.GetOwned(ctx, ownerID, id)
	if errors.Is(err, repositorycache.ErrNotOwner) || errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if note.Status == storage.NotificationRead {
		return nil
	}
	note.Status = storage.NotificationRead
	note.UpdatedAt = n.now().UTC()
	_, err = n.resource.Update(ctx, note)
	return err
}
