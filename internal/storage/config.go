package storage

import (
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the settings of the authoritative store.
type Config struct {
	// Driver is "postgres" (lib/pq) or "sqlite" (go-sqlite3).
	Driver string

	// DSN is passed to the driver unchanged.
	DSN string

	// MaxOpenConns caps the pool. The sqlite driver always uses a single
	// connection so writes never see SQLITE_BUSY.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// OpTimeout bounds every store call. Default: 2s
	OpTimeout time.Duration

	// Debug logs every query through bun's query hook.
	Debug bool
}

func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "file:reservations.db?cache=shared&_foreign_keys=on",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		OpTimeout:       2 * time.Second,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return &ConfigError{Field: "Driver", Message: "must be one of postgres, sqlite"}
	}
	if c.DSN == "" {
		return &ConfigError{Field: "DSN", Message: "is required"}
	}
	if c.MaxOpenConns < 0 {
		return &ConfigError{Field: "MaxOpenConns", Message: "must be non-negative"}
	}
	if c.OpTimeout <= 0 {
		return &ConfigError{Field: "OpTimeout", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "storage config error in field " + e.Field + ": " + e.Message
}
