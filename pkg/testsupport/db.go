package testsupport

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/internal/storage"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SQLiteConfig returns a storage config for a private in-memory database.
func SQLiteConfig(t testing.TB) storage.Config {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := storage.DefaultConfig()
	cfg.Driver = storage.DriverSQLite
	cfg.DSN = fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	cfg.OpTimeout = 5 * time.Second
	return cfg
}

// OpenSQLite opens a fresh in-memory database with the schema applied.
// It is closed when the test ends.
func OpenSQLite(t testing.TB) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := storage.Open(ctx, SQLiteConfig(t), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := storage.CreateSchema(ctx, db); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

// Miniredis starts an in-process redis server and returns it with a cache
// config pointing at it.
func Miniredis(t testing.TB) (*miniredis.Miniredis, cache.Config) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Driver = cache.DriverRedis
	cfg.RedisAddr = mr.Addr()
	cfg.ScanCount = 10
	return mr, cfg
}

// MemoryReadThrough builds a ReadThrough on the in-process store.
func MemoryReadThrough(t testing.TB) *cache.ReadThrough {
	t.Helper()

	cfg := cache.DefaultConfig()
	cfg.Driver = cache.DriverMemory
	rt, err := cache.NewReadThroughFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("memory read-through: %v", err)
	}
	t.Cleanup(func() { _ = rt.Store().Close() })
	return rt
}
