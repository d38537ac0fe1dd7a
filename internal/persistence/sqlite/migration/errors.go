package migration

import (
	"errors"
	"fmt"
)

var (
	ErrMigrationFailed      = errors.New("migration execution failed")
	ErrInvalidMigrationFile = errors.New("invalid migration file format")
	ErrVersionConflict      = errors.New("migration version conflict")
	ErrInvalidVersion       = errors.New("invalid migration version")
	ErrDuplicateVersion     = errors.New("duplicate migration version")
	// ErrChecksumMismatch means an applied file was edited after it ran.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

// MigrationError ties a failure to one migration file.
type MigrationError struct {
	Version   string
	FilePath  string
	Operation string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("migration %s: %s: %v", e.FilePath, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration %s (%s): %s: %v", e.Version, e.FilePath, e.Operation, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

func NewMigrationError(version, filePath, operation string, err error) *MigrationError {
	return &MigrationError{Version: version, FilePath: filePath, Operation: operation, Err: err}
}

// StepError reports a failed filesystem read or database statement while
// scanning or applying migrations. Source is "filesystem" or "database".
type StepError struct {
	Source    string
	Subject   string
	Version   string
	Operation string
	Err       error
}

func (e *StepError) Error() string {
	switch {
	case e.Version != "":
		return fmt.Sprintf("%s error in migration %s during %s: %v", e.Source, e.Version, e.Operation, e.Err)
	case e.Source == "filesystem":
		return fmt.Sprintf("filesystem error during %s of %s: %v", e.Operation, e.Subject, e.Err)
	default:
		return fmt.Sprintf("%s error during %s: %v", e.Source, e.Operation, e.Err)
	}
}

func (e *StepError) Unwrap() error { return e.Err }

func NewFileSystemError(path, operation string, err error) *StepError {
	return &StepError{Source: "filesystem", Subject: path, Operation: operation, Err: err}
}

// NewDatabaseError records the query as Subject so callers can log it.
func NewDatabaseError(version, query, operation string, err error) *StepError {
	return &StepError{Source: "database", Subject: query, Version: version, Operation: operation, Err: err}
}
