// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/internal/storage"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Booking  BookingConfig
}

type ServerConfig struct {
	Host            string
	HTTPPort        string
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.HTTPPort
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	OpTimeout    time.Duration
	AutoMigrate  bool
}

type CacheConfig struct {
	Driver        string
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	RedisPoolSize int
	OpTimeout     time.Duration
	ScanCount     int64
	Codec         string
	TTL           cache.TTLPolicy
	// ShardedCapacity bounds each TTL class of the sharded driver.
	ShardedCapacity int
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type BookingConfig struct {
	Timezone    string
	LockStripes int
}

// Load reads the environment, optionally seeded from a .env file.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var errs []string
	durationEnv := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return d
	}
	intEnv := func(key, def string) int {
		n, err := strconv.Atoi(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return n
	}
	boolEnv := func(key, def string) bool {
		b, err := strconv.ParseBool(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return b
	}

	cfg := &Config{}

	cfg.Server = ServerConfig{
		Host:            getEnv("SERVER_HOST", "0.0.0.0"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		Env:             getEnv("ENVIRONMENT", "development"),
		ReadTimeout:     durationEnv("HTTP_READ_TIMEOUT", "10s"),
		WriteTimeout:    durationEnv("HTTP_WRITE_TIMEOUT", "10s"),
		ShutdownTimeout: durationEnv("HTTP_SHUTDOWN_TIMEOUT", "15s"),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "*"),
		RateLimitMax:    intEnv("RATE_LIMIT_MAX", "120"),
		RateLimitWindow: durationEnv("RATE_LIMIT_WINDOW", "1m"),
	}

	cfg.Database = DatabaseConfig{
		Driver:       getEnv("DB_DRIVER", storage.DriverSQLite),
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         getEnv("DB_PORT", "5432"),
		User:         getEnv("DB_USER", "reservations"),
		Password:     getEnv("DB_PASSWORD", ""),
		Name:         getEnv("DB_NAME", "reservations"),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		SQLitePath:   getEnv("DB_SQLITE_PATH", "reservations.db"),
		MaxOpenConns: intEnv("DB_MAX_OPEN_CONNS", "25"),
		MaxIdleConns: intEnv("DB_MAX_IDLE_CONNS", "5"),
		OpTimeout:    durationEnv("DB_OP_TIMEOUT", "2s"),
		AutoMigrate:  boolEnv("DB_AUTO_MIGRATE", "true"),
	}

	ttl := cache.DefaultTTLPolicy()
	for view := range ttl {
		key := "CACHE_TTL_" + strings.ToUpper(string(view))
		if _, ok := os.LookupEnv(key); ok {
			ttl[view] = durationEnv(key, "0s")
		}
	}

	cfg.Cache = CacheConfig{
		Driver:        getEnv("CACHE_DRIVER", cache.DriverRedis),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       intEnv("REDIS_DB", "0"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisPoolSize: intEnv("REDIS_POOL_SIZE", "20"),
		OpTimeout:     durationEnv("CACHE_OP_TIMEOUT", "250ms"),
		ScanCount:     int64(intEnv("CACHE_SCAN_COUNT", "500")),
		Codec:         getEnv("CACHE_CODEC", cache.CodecJSON),
		TTL:           ttl,

		ShardedCapacity: intEnv("CACHE_SHARDED_CAPACITY", "10000"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret: getEnv("JWT_SECRET", ""),
		Issuer:    getEnv("JWT_ISSUER", ""),
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	cfg.Booking = BookingConfig{
		Timezone:    getEnv("BOOKING_TIMEZONE", "UTC"),
		LockStripes: intEnv("BOOKING_LOCK_STRIPES", "64"),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT is required")
	}

	if c.Server.RateLimitMax < 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must not be negative")
	}

	if err := c.StorageConfig().Validate(); err != nil {
		return err
	}
	if c.Database.Driver == storage.DriverPostgres && c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if err := c.CacheConfig().Validate(); err != nil {
		return err
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("BOOKING_TIMEZONE: %w", err)
	}
	if c.Booking.LockStripes <= 0 {
		return fmt.Errorf("BOOKING_LOCK_STRIPES must be positive")
	}

	return nil
}

// GetDSN returns the connection string of the selected driver.
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == storage.DriverSQLite {
		return fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", c.SQLitePath)
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// StorageConfig maps the database section onto storage.Config.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver:          c.Database.Driver,
		DSN:             c.Database.GetDSN(),
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
		OpTimeout:       c.Database.OpTimeout,
		Debug:           c.Logging.Level == "debug",
	}
}

// CacheConfig maps the cache section onto cache.Config.
func (c *Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Driver = c.Cache.Driver
	cfg.RedisAddr = c.Cache.RedisAddr
	cfg.RedisDB = c.Cache.RedisDB
	cfg.RedisPassword = c.Cache.RedisPassword
	cfg.RedisPoolSize = c.Cache.RedisPoolSize
	cfg.OpTimeout = c.Cache.OpTimeout
	cfg.ScanCount = c.Cache.ScanCount
	cfg.Codec = c.Cache.Codec
	cfg.TTL = c.Cache.TTL
	if c.Cache.ShardedCapacity > 0 {
		cfg.ShardedCapacity = c.Cache.ShardedCapacity
	}
	return cfg
}

// Location is the zone slot dates and times are interpreted in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
