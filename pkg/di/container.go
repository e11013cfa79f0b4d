package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-reservation-cache/booking"
	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/internal/config"
	"github.com/goliatone/go-reservation-cache/internal/notify"
	"github.com/goliatone/go-reservation-cache/internal/storage"
	transport "github.com/goliatone/go-reservation-cache/internal/transport/http"
	"github.com/goliatone/go-reservation-cache/invalidation"
	"github.com/goliatone/go-reservation-cache/repositorycache"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Container owns the database handle and the cache store and wires every
// component over them. Close releases both.
type Container struct {
	config     *config.Config
	logger     *zap.Logger
	db         *bun.DB
	cache      *cache.ReadThrough
	dispatcher *invalidation.Dispatcher

	reservations  *booking.Service
	notifications *notify.Notifications
	samples       *repositorycache.Resource[*storage.Sample]
	reports       *repositorycache.Resource[*storage.Report]
	profiles      *repositorycache.Resource[*storage.Profile]
}

// NewContainer connects to the database and the cache store described by
// cfg. An unreachable cache is logged and tolerated: reads fall through to
// the database until it comes back.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("di: nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := storage.Open(ctx, cfg.StorageConfig(), logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := storage.CreateSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	rt, err := cache.NewReadThroughFromConfig(cfg.CacheConfig(), logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	if err := rt.Store().Ping(ctx); err != nil {
		logger.Warn("cache store unreachable, serving from the database", zap.Error(err))
	}

	c := &Container{
		config:     cfg,
		logger:     logger,
		db:         db,
		cache:      rt,
		dispatcher: invalidation.NewDispatcher(rt, logger),
	}

	c.notifications = notify.New(NewResource[*storage.Notification](c, storage.NewNotificationRepository(db), repositorycache.Options{
		Entity: cache.EntityNotification,
	}), logger)
	c.samples = NewResource[*storage.Sample](c, storage.NewSampleRepository(db), repositorycache.Options{
		Entity:        cache.EntitySample,
		SearchColumns: []string{"name", "description"},
	})
	c.reports = NewResource[*storage.Report](c, storage.NewReportRepository(db), repositorycache.Options{
		Entity:        cache.EntityReport,
		SearchColumns: []string{"title"},
	})
	c.profiles = NewResource[*storage.Profile](c, storage.NewProfileRepository(db), repositorycache.Options{
		Entity:        cache.EntityProfile,
		OwnerColumn:   "id",
		SearchColumns: []string{"display_name", "email"},
	})

	c.reservations = booking.NewService(storage.NewReservationStore(db, cfg.Database.OpTimeout), rt,
		booking.WithLocation(cfg.Location()),
		booking.WithTTL(cfg.Cache.TTL),
		booking.WithLockStripes(cfg.Booking.LockStripes),
		booking.WithNotifier(c.notifications),
		booking.WithLogger(logger),
	)

	return c, nil
}

// NewResource builds a cached resource over source sharing the container's
// cache, dispatcher, TTL policy and logger.
//
// Since Go methods cannot have type parameters, this is a package-level function.
func NewResource[T repositorycache.Model](c *Container, source repositorycache.Source[T], opts repositorycache.Options) *repositorycache.Resource[T] {
	if opts.TTL == nil {
		opts.TTL = c.config.Cache.TTL
	}
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return repositorycache.New(source, c.cache, c.dispatcher, opts)
}

func (c *Container) Config() *config.Config {
	return c.config
}

func (c *Container) Logger() *zap.Logger {
	return c.logger
}

func (c *Container) DB() *bun.DB {
	return c.db
}

func (c *Container) Cache() *cache.ReadThrough {
	return c.cache
}

func (c *Container) Dispatcher() *invalidation.Dispatcher {
	return c.dispatcher
}

// Reservations returns the reservation write flow and its cached reads.
func (c *Container) Reservations() *booking.Service {
	return c.reservations
}

func (c *Container) Notifications() *notify.Notifications {
	return c.notifications
}

func (c *Container) Samples() *repositorycache.Resource[*storage.Sample] {
	return c.samples
}

func (c *Container) Reports() *repositorycache.Resource[*storage.Report] {
	return c.reports
}

func (c *Container) Profiles() *repositorycache.Resource[*storage.Profile] {
	return c.profiles
}

// HealthChecks pings the database and the cache store.
func (c *Container) HealthChecks() map[string]transport.HealthCheck {
	return map[string]transport.HealthCheck{
		"database": c.db.PingContext,
		"cache":    c.cache.Store().Ping,
	}
}

// HTTPApp builds the fiber app over the container's services.
func (c *Container) HTTPApp() *fiber.App {
	return transport.NewApp(transport.Options{
		Reservations:    c.reservations,
		Notifications:   c.notifications,
		Samples:         c.samples,
		Reports:         c.reports,
		Profiles:        c.profiles,
		Cache:           c.cache,
		Auth:            transport.NewAuth(c.config.Auth.JWTSecret, c.config.Auth.Issuer),
		Checks:          c.HealthChecks(),
		Logger:          c.logger,
		ReadTimeout:     c.config.Server.ReadTimeout,
		WriteTimeout:    c.config.Server.WriteTimeout,
		AllowedOrigins:  c.config.Server.AllowedOrigins,
		RateLimitMax:    c.config.Server.RateLimitMax,
		RateLimitWindow: c.config.Server.RateLimitWindow,
	})
}

// Close releases the cache store and the database.
func (c *Container) Close() error {
	var errs []error
	if err := c.cache.Store().Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
