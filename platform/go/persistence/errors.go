package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors shared by the stores. Domain repos translate these into
// service-level errors so handlers never see raw storage failures.
var (
	// ErrNotFound indicates the requested row does not exist (or is filtered
	// out by tenant scoping / soft deletion).
	ErrNotFound = errors.New("record not found")
	// ErrUniqueViolation indicates an insert or update hit a unique constraint.
	ErrUniqueViolation = errors.New("unique constraint violation")
)

const pgUniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a postgres unique violation,
// optionally restricted to a specific constraint name.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != pgUniqueViolationCode {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
