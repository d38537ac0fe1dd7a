package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned for CHECK/NOT NULL failures and
	// records missing required identifiers.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrLimitReached is returned when a vote would exceed the per-user cap.
	ErrLimitReached = errors.New("persistence: vote limit reached")
	// ErrBlocked is returned when a vote targets a blocked nomination.
	ErrBlocked = errors.New("persistence: nomination is blocked")
)
