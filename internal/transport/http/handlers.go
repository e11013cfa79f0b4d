package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-reservation-cache/booking"
	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/internal/notify"
	"github.com/goliatone/go-reservation-cache/internal/storage"
	"github.com/goliatone/go-reservation-cache/repositorycache"
	"go.uber.org/zap"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handlers serves the reservation API.
type Handlers struct {
	reservations  *booking.Service
	notifications *notify.Notifications
	samples       *repositorycache.Resource[*storage.Sample]
	reports       *repositorycache.Resource[*storage.Report]
	profiles      *repositorycache.Resource[*storage.Profile]
	cache         *cache.ReadThrough
	checks        map[string]HealthCheck
	logger        *zap.Logger
}

func (h *Handlers) Health(c *fiber.Ctx) error {
	status := fiber.StatusOK
	report := make(fiber.Map, len(h.checks))
	for name, check := range h.checks {
		if err := check(c.UserContext()); err != nil {
			h.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			report[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	return c.Status(status).JSON(fiber.Map{"checks": report})
}

func (h *Handlers) Slots(c *fiber.Ctx) error {
	date := c.Query("date")
	if date == "" {
		return fiber.NewError(fiber.StatusBadRequest, "date is required")
	}
	slots, err := h.reservations.AvailableSlots(c.UserContext(), date)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"date": date, "slots": slots})
}

func (h *Handlers) CreateReservation(c *fiber.Ctx) error {
	var req CreateReservationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	r, err := h.reservations.Create(c.UserContext(), CallerFrom(c), booking.CreateInput{
		Date:    req.Date,
		Time:    req.Time,
		Purpose: req.Purpose,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (h *Handlers) ListReservations(c *fiber.Ctx) error {
	q, err := bindQuery(c)
	if err != nil {
		return err
	}
	page, err := h.reservations.List(c.UserContext(), CallerFrom(c), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *Handlers) GetReservation(c *fiber.Ctx) error {
	r, err := h.reservations.Get(c.UserContext(), CallerFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (h *Handlers) CancelReservation(c *fiber.Ctx) error {
	r, err := h.reservations.Cancel(c.UserContext(), CallerFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (h *Handlers) UpdateReservationStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	r, err := h.reservations.UpdateStatus(c.UserContext(), CallerFrom(c), c.Params("id"), booking.Status(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (h *Handlers) ReservationStats(c *fiber.Ctx) error {
	stats, err := h.reservations.Stats(c.UserContext(), CallerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *Handlers) Dashboard(c *fiber.Ctx) error {
	d, err := h.reservations.Dashboard(c.UserContext(), CallerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(d)
}

func (h *Handlers) CacheStats(c *fiber.Ctx) error {
	if !CallerFrom(c).IsAdmin() {
		return fiber.NewError(fiber.StatusForbidden, "cache stats require the admin role")
	}
	return c.JSON(h.cache.Stats())
}

func (h *Handlers) ListNotifications(c *fiber.Ctx) error {
	q, err := bindQuery(c)
	if err != nil {
		return err
	}
	page, err := h.notifications.List(c.UserContext(), CallerFrom(c).ID, q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *Handlers) UnreadNotifications(c *fiber.Ctx) error {
	n, err := h.notifications.Unread(c.UserContext(), CallerFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"unread": n})
}

func (h *Handlers) MarkNotificationRead(c *fiber.Ctx) error {
	err := h.notifications.MarkRead(c.UserContext(), CallerFrom(c).ID, c.Params("id"))
	if errors.Is(err, notify.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "notification not found")
	}
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
