package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
)

// Open connects to the database selected by cfg and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *bun.DB
	switch cfg.Driver {
	case DriverPostgres:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
		sqldb.SetConnMaxLifetime(0)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if cfg.Debug {
		db.AddQueryHook(queryLogger{logger: logger})
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	logger.Info("database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

type queryLogger struct {
	logger *zap.Logger
}

func (h queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h queryLogger) AfterQuery(_ context.Context, e *bun.QueryEvent) {
	fields := []zap.Field{
		zap.String("query", e.Query),
		zap.Duration("took", time.Since(e.StartTime)),
	}
	if e.Err != nil && e.Err != sql.ErrNoRows {
		h.logger.Debug("query failed", append(fields, zap.Error(e.Err))...)
		return
	}
	h.logger.Debug("query", fields...)
}
