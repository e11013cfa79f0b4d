package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-reservation-cache/booking"
	"github.com/uptrace/bun"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
// The path is relative to the test package directory.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// SeedReservations inserts the reservations of a JSON fixture as they are,
// bypassing the write flow, and returns them in fixture order. Missing
// timestamps are set to now.
func SeedReservations(t testing.TB, db *bun.DB, path string) []booking.Reservation {
	t.Helper()

	var rows []booking.Reservation
	LoadFixtureJSON(t, path, &rows)
	if len(rows) == 0 {
		return rows
	}

	now := time.Now().UTC()
	for i := range rows {
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
		if rows[i].UpdatedAt.IsZero() {
			rows[i].UpdatedAt = rows[i].CreatedAt
		}
	}

	if _, err := db.NewInsert().Model(&rows).Exec(context.Background()); err != nil {
		t.Fatalf("failed to seed reservations from %s: %v", path, err)
	}
	return rows
}
