// Package http exposes the reservation service over fiber. Callers are
// identified by HS256 bearer tokens; their role selects which cache
// partition a read touches.
package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-reservation-cache/booking"
	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/internal/notify"
	"github.com/goliatone/go-reservation-cache/internal/storage"
	"github.com/goliatone/go-reservation-cache/repositorycache"
	"go.uber.org/zap"
)

// Options configure NewApp. Notifications and the entity resources may be
// nil, which leaves their routes out.
type Options struct {
	Reservations  *booking.Service
	Notifications *notify.Notifications
	Samples       *repositorycache.Resource[*storage.Sample]
	Reports       *repositorycache.Resource[*storage.Report]
	Profiles      *repositorycache.Resource[*storage.Profile]
	Cache         *cache.ReadThrough
	Auth          *Auth
	Checks        map[string]HealthCheck
	Logger        *zap.Logger

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	AllowedOrigins  string
	RateLimitMax    int // 0 disables the limiter
	RateLimitWindow time.Duration
}

// NewApp builds the fiber app with every route registered.
func NewApp(opts Options) *fiber.App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "reservations",
		ErrorHandler:          ErrorHandler(logger),
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestLogger(logger))

	origins := opts.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: false,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	if opts.RateLimitMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimitMax,
			Expiration: opts.RateLimitWindow,
		}))
	}

	h := &Handlers{
		reservations:  opts.Reservations,
		notifications: opts.Notifications,
		samples:       opts.Samples,
		reports:       opts.Reports,
		profiles:      opts.Profiles,
		cache:         opts.Cache,
		checks:        opts.Checks,
		logger:        logger,
	}
	Register(app, h, opts.Auth)
	return app
}

// Register wires all routes onto app.
func Register(app *fiber.App, h *Handlers, auth *Auth) {
	app.Get("/healthz", h.Health)

	api := app.Group("/api/v1")

	// public
	api.Get("/slots", h.Slots)

	protected := api.Group("")
	protected.Use(auth.Middleware())

	protected.Post("/reservations", h.CreateReservation)
	protected.Get("/reservations", h.ListReservations)
	protected.Get("/reservations/stats", h.ReservationStats)
	protected.Get("/reservations/:id", h.GetReservation)
	protected.Post("/reservations/:id/cancel", h.CancelReservation)
	protected.Patch("/reservations/:id/status", h.UpdateReservationStatus)

	protected.Get("/admin/dashboard", h.Dashboard)
	protected.Get("/admin/cache", h.CacheStats)

	if h.notifications != nil {
		protected.Get("/notifications", h.ListNotifications)
		protected.Get("/notifications/unread", h.UnreadNotifications)
		protected.Post("/notifications/:id/read", h.MarkNotificationRead)
	}
	if h.samples != nil {
		protected.Get("/samples", listResource(h.samples))
		protected.Get("/samples/:id", getResource(h.samples))
	}
	if h.reports != nil {
		protected.Get("/reports", listResource(h.reports))
		protected.Get("/reports/:id", getResource(h.reports))
	}
	if h.profiles != nil {
		protected.Get("/me", me(h.profiles))
	}
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Debug("request", append(fields, zap.Error(err))...)
			return err
		}
		logger.Debug("request", append(fields, zap.Int("status", c.Response().StatusCode()))...)
		return err
	}
}
