package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
)

// Op constants map to Valkey/Redis command names for error context.
const (
	OpHGetAll = "HGETALL"
	OpHGet    = "HGET"
	OpHSet    = "HSET"
	OpScan    = "SCAN"
	OpGet     = "GET"
	OpSet     = "SET"
)

// Error wraps an underlying error with the operation name for diagnostics.
// Transient is set by the driver when a retry may succeed.
type Error struct {
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a driver error marked as retryable.
func IsTransient(err error) bool {
	var dbErr *Error
	return errors.As(err, &dbErr) && dbErr.Transient
}
