package storage

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint failure on
// either supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
