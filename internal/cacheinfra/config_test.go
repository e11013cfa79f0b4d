package cacheinfra

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Driver != DriverRedis {
		t.Errorf("expected Driver to be redis, got %q", cfg.Driver)
	}

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected Redis.Addr to be localhost:6379, got %q", cfg.Redis.Addr)
	}

	if cfg.OpTimeout != 250*time.Millisecond {
		t.Errorf("expected OpTimeout to be 250ms, got %v", cfg.OpTimeout)
	}

	if cfg.ScanCount != 500 {
		t.Errorf("expected ScanCount to be 500, got %d", cfg.ScanCount)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:   "valid default config",
			mutate: func(c *Config) {},
		},
		{
			name:   "memory driver",
			mutate: func(c *Config) { c.Driver = DriverMemory; c.Redis = RedisConfig{} },
		},
		{
			name:   "sharded driver",
			mutate: func(c *Config) { c.Driver = DriverSharded },
		},
		{
			name:      "sharded zero capacity",
			mutate:    func(c *Config) { c.Driver = DriverSharded; c.Sharded.Capacity = 0 },
			wantError: true,
			errorMsg:  "must be greater than 0",
		},
		{
			name:      "sharded eviction out of range",
			mutate:    func(c *Config) { c.Driver = DriverSharded; c.Sharded.EvictionPercentage = 101 },
			wantError: true,
			errorMsg:  "must be between 1 and 100",
		},
		{
			name:      "unknown driver",
			mutate:    func(c *Config) { c.Driver = "etcd" },
			wantError: true,
			errorMsg:  "must be one of redis, memory",
		},
		{
			name:      "missing redis address",
			mutate:    func(c *Config) { c.Redis.Addr = "" },
			wantError: true,
			errorMsg:  "is required",
		},
		{
			name:      "negative db",
			mutate:    func(c *Config) { c.Redis.DB = -1 },
			wantError: true,
			errorMsg:  "must be non-negative",
		},
		{
			name:      "zero op timeout",
			mutate:    func(c *Config) { c.OpTimeout = 0 },
			wantError: true,
			errorMsg:  "must be greater than 0",
		},
		{
			name:      "zero scan count",
			mutate:    func(c *Config) { c.ScanCount = 0 },
			wantError: true,
			errorMsg:  "must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantError {
				if err == nil {
					t.Error("expected validation error but got none")
					return
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error message to contain %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no validation error but got: %v", err)
			}
		})
	}
}

func TestNewStore_SelectsDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = DriverMemory

	store, err := NewStore(cfg, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("NewStore() = %T, want *MemoryStore", store)
	}

	cfg.Driver = "bogus"
	if _, err := NewStore(cfg, nil); err == nil {
		t.Error("NewStore() with unknown driver should fail")
	}
}
