package storage

import (
	"context"
	"fmt"

	"github.com/goliatone/go-reservation-cache/booking"
	"github.com/uptrace/bun"
)

// ActiveSlotIndex is the partial unique index that allows at most one
// non-cancelled reservation per (date, time).
const ActiveSlotIndex = "reservations_active_slot_uniq"

var models = []any{
	(*booking.Reservation)(nil),
	(*Sample)(nil),
	(*Report)(nil),
	(*Notification)(nil),
	(*Profile)(nil),
}

// CreateSchema creates every table and index if missing.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range models {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("create table %T: %w", model, err)
			}
		}

		indexes := []*bun.CreateIndexQuery{
			tx.NewCreateIndex().
				Model((*booking.Reservation)(nil)).
				Index(ActiveSlotIndex).
				Unique().
				IfNotExists().
				Column("slot_date", "slot_time").
				Where("status <> ?", string(booking.StatusCancelled)),
			tx.NewCreateIndex().
				Model((*booking.Reservation)(nil)).
				Index("reservations_date_idx").
				IfNotExists().
				Column("slot_date"),
			tx.NewCreateIndex().
				Model((*booking.Reservation)(nil)).
				Index("reservations_owner_idx").
				IfNotExists().
				Column("owner_id", "slot_date"),
			tx.NewCreateIndex().
				Model((*Sample)(nil)).
				Index("samples_owner_idx").
				IfNotExists().
				Column("owner_id"),
			tx.NewCreateIndex().
				Model((*Report)(nil)).
				Index("reports_owner_idx").
				IfNotExists().
				Column("owner_id"),
			tx.NewCreateIndex().
				Model((*Notification)(nil)).
				Index("notifications_owner_idx").
				IfNotExists().
				Column("owner_id", "status"),
		}
		for _, idx := range indexes {
			if _, err := idx.Exec(ctx); err != nil {
				return fmt.Errorf("create index: %w", err)
			}
		}
		return nil
	})
}

// DropSchema drops every table. Used by tests and the reset command.
func DropSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range models {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table %T: %w", model, err)
		}
	}
	return nil
}
