package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes the booking path reacts to
const (
	SQLStateSerializationFailure = "40001"
	SQLStateDeadlockDetected     = "40P01"
	SQLStateLockNotAvailable     = "55P03"
	SQLStateUniqueViolation      = "23505"
	SQLStateCheckViolation       = "23514"
)

// pgError is the driver-neutral view of a server error
type pgError struct {
	Code       string
	Constraint string
	Detail     string
}

// asPgError extracts the server error from either supported driver
func asPgError(err error) (pgError, bool) {
	if err == nil {
		return pgError{}, false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgError{Code: string(pqErr.Code), Constraint: pqErr.Constraint, Detail: pqErr.Detail}, true
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgError{Code: pgxErr.Code, Constraint: pgxErr.ConstraintName, Detail: pgxErr.Detail}, true
	}

	return pgError{}, false
}

// SQLState returns the SQLSTATE of err, or "" when err is not a server error
func SQLState(err error) string {
	pgErr, ok := asPgError(err)
	if !ok {
		return ""
	}
	return pgErr.Code
}

// IsRetryable reports whether err is a transient concurrency failure:
// serialization failure, deadlock, or lock timeout
func IsRetryable(err error) bool {
	switch SQLState(err) {
	case SQLStateSerializationFailure, SQLStateDeadlockDetected, SQLStateLockNotAvailable:
		return true
	}
	return false
}

// IsUniqueViolation reports whether err violated a unique constraint
func IsUniqueViolation(err error) bool {
	return SQLState(err) == SQLStateUniqueViolation
}

// conflictingSeat pulls the seat identifier out of a seat ledger unique violation.
// Detail looks like: Key (schedule_id, seat_identifier)=(SCH-1, A1) already exists.
func conflictingSeat(err error) (string, bool) {
	pgErr, ok := asPgError(err)
	if !ok || pgErr.Code != SQLStateUniqueViolation {
		return "", false
	}

	start := strings.Index(pgErr.Detail, ")=(")
	end := strings.LastIndex(pgErr.Detail, ")")
	if start < 0 || end <= start+3 {
		return "", false
	}

	values := pgErr.Detail[start+3 : end]
	sep := strings.LastIndex(values, ", ")
	if sep < 0 {
		return "", false
	}
	return values[sep+2:], true
}
