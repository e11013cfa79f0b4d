package cacheinfra

import (
	"errors"
	"time"
)

// ErrUnavailable marks a store that could not be reached or an operation
// that exceeded its deadline.
var ErrUnavailable = errors.New("cache store unavailable")

const (
	DriverRedis   = "redis"
	DriverMemory  = "memory"
	DriverSharded = "sharded"
)

// Config holds the configuration for the cache store drivers.
type Config struct {
	// Driver selects the backing store: "redis" (shared, networked),
	// "memory" (process local, for development and tests) or "sharded"
	// (process local, sharded with capacity bound eviction).
	Driver string

	Redis RedisConfig

	// OpTimeout bounds each individual store command.
	// Must be greater than 0. Default: 250ms
	OpTimeout time.Duration

	// ScanCount is the COUNT hint passed to each SCAN step of a prefix
	// delete. Larger values mean fewer round trips but longer server slices.
	// Must be greater than 0. Default: 500
	ScanCount int64

	// MemoryCapacity caps the number of entries of the memory driver.
	// Zero means unbounded.
	MemoryCapacity uint64

	Sharded ShardedConfig
}

// ShardedConfig sizes the sharded driver. Every TTL class gets its own set
// of shards of this size.
type ShardedConfig struct {
	// Capacity defines the maximum number of entries per TTL class.
	// Must be greater than 0. Default: 10000
	Capacity int

	// NumShards determines the number of shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// EvictionPercentage specifies what percentage of entries to evict
	// when a class reaches its capacity. Must be between 1-100.
	// Default: 10
	EvictionPercentage int
}

// RedisConfig holds connection settings for the redis driver.
type RedisConfig struct {
	Addr         string
	DB           int
	Password     string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Driver: DriverRedis,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			DialTimeout:  time.Second,
			ReadTimeout:  250 * time.Millisecond,
			WriteTimeout: 250 * time.Millisecond,
		},
		OpTimeout: 250 * time.Millisecond,
		ScanCount: 500,
		Sharded: ShardedConfig{
			Capacity:           10000,
			NumShards:          256,
			EvictionPercentage: 10,
		},
	}
}

// Validate checks if the configuration values are valid.
// Returns an error if any configuration parameter is invalid.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverRedis:
		if c.Redis.Addr == "" {
			return &ConfigError{Field: "Redis.Addr", Message: "is required for the redis driver"}
		}
		if c.Redis.DB < 0 {
			return &ConfigError{Field: "Redis.DB", Message: "must be non-negative"}
		}
		if c.Redis.PoolSize < 0 {
			return &ConfigError{Field: "Redis.PoolSize", Message: "must be non-negative"}
		}
	case DriverMemory:
	case DriverSharded:
		if c.Sharded.Capacity <= 0 {
			return &ConfigError{Field: "Sharded.Capacity", Message: "must be greater than 0"}
		}
		if c.Sharded.NumShards <= 0 {
			return &ConfigError{Field: "Sharded.NumShards", Message: "must be greater than 0"}
		}
		if c.Sharded.EvictionPercentage < 1 || c.Sharded.EvictionPercentage > 100 {
			return &ConfigError{Field: "Sharded.EvictionPercentage", Message: "must be between 1 and 100"}
		}
	default:
		return &ConfigError{Field: "Driver", Message: "must be one of redis, memory, sharded"}
	}

	if c.OpTimeout <= 0 {
		return &ConfigError{Field: "OpTimeout", Message: "must be greater than 0"}
	}

	if c.ScanCount <= 0 {
		return &ConfigError{Field: "ScanCount", Message: "must be greater than 0"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
