package booking

import (
	"context"

	"go.uber.org/zap"
)

// Notifier tells the owner that an administrator changed their reservation.
type Notifier interface {
	StatusChanged(ctx context.Context, r Reservation, from Status) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Reservation, from Status) error

func (f NotifierFunc) StatusChanged(ctx context.Context, r Reservation, from Status) error {
	return f(ctx, r, from)
}

// LogNotifier only logs.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) StatusChanged(ctx context.Context, r Reservation, from Status) error {
	logger := n.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("reservation status changed",
		zap.String("reservation_id", r.ID),
		zap.String("owner_id", r.OwnerID),
		zap.String("from", string(from)),
		zap.String("to", string(r.Status)),
	)
	return nil
}
