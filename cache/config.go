package cache

import (
	"time"

	"github.com/goliatone/go-reservation-cache/internal/cacheinfra"
	"go.uber.org/zap"
)

// Driver names accepted by Config.Driver.
const (
	DriverRedis   = cacheinfra.DriverRedis
	DriverMemory  = cacheinfra.DriverMemory
	DriverSharded = cacheinfra.DriverSharded
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Driver         string
	RedisAddr      string
	RedisDB        int
	RedisPassword  string
	RedisPoolSize  int
	OpTimeout      time.Duration
	ScanCount      int64
	MemoryCapacity uint64
	Codec          string
	TTL            TTLPolicy

	// Sizing of the sharded driver, per TTL class.
	ShardedCapacity           int
	ShardedShards             int
	ShardedEvictionPercentage int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.Codec = CodecJSON
	cfg.TTL = DefaultTTLPolicy()
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.toInternal().Validate(); err != nil {
		return err
	}
	if _, err := CodecByName(c.Codec); err != nil {
		return &cacheinfra.ConfigError{Field: "Codec", Message: "must be one of json, msgpack"}
	}
	return c.TTL.Validate()
}

// NewStore constructs the store driver selected by cfg.
func NewStore(cfg Config, logger *zap.Logger) (Store, error) {
	return cacheinfra.NewStore(cfg.toInternal(), logger)
}

// NewReadThroughFromConfig builds the store and a ReadThrough over it.
func NewReadThroughFromConfig(cfg Config, logger *zap.Logger) (*ReadThrough, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	codec, _ := CodecByName(cfg.Codec)
	return NewReadThrough(store,
		WithCodec(codec),
		WithLogger(logger),
		WithOpTimeout(cfg.OpTimeout),
	), nil
}

func (c Config) toInternal() cacheinfra.Config {
	base := cacheinfra.DefaultConfig()
	return cacheinfra.Config{
		Driver: c.Driver,
		Redis: cacheinfra.RedisConfig{
			Addr:         c.RedisAddr,
			DB:           c.RedisDB,
			Password:     c.RedisPassword,
			PoolSize:     c.RedisPoolSize,
			DialTimeout:  base.Redis.DialTimeout,
			ReadTimeout:  c.OpTimeout,
			WriteTimeout: c.OpTimeout,
		},
		OpTimeout:      c.OpTimeout,
		ScanCount:      c.ScanCount,
		MemoryCapacity: c.MemoryCapacity,
		Sharded: cacheinfra.ShardedConfig{
			Capacity:           c.ShardedCapacity,
			NumShards:          c.ShardedShards,
			EvictionPercentage: c.ShardedEvictionPercentage,
		},
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Driver:         cfg.Driver,
		RedisAddr:      cfg.Redis.Addr,
		RedisDB:        cfg.Redis.DB,
		RedisPassword:  cfg.Redis.Password,
		RedisPoolSize:  cfg.Redis.PoolSize,
		OpTimeout:      cfg.OpTimeout,
		ScanCount:      cfg.ScanCount,
		MemoryCapacity: cfg.MemoryCapacity,

		ShardedCapacity:           cfg.Sharded.Capacity,
		ShardedShards:             cfg.Sharded.NumShards,
		ShardedEvictionPercentage: cfg.Sharded.EvictionPercentage,
	}
}
