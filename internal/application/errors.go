package application

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthenticated is returned when no valid session accompanies a request.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique resource is created twice.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrGone is returned for resources that existed but have expired.
	ErrGone = errors.New("application: gone")
	// ErrInvalidCredentials is returned when a login attempt does not match a user.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrSessionExpired is returned when a session token is past its expiry.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned when a session token was revoked.
	ErrSessionRevoked = errors.New("application: session revoked")
	// ErrIncorrectPIN is returned when an invite PIN does not match.
	ErrIncorrectPIN = fmt.Errorf("%w: incorrect PIN", ErrUnauthorized)
)

// StateError reports an operation that is valid input but not allowed in the
// resource's current state, such as voting on a decided night.
type StateError struct {
	Message string
}

func (e *StateError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func stateError(message string) *StateError {
	return &StateError{Message: message}
}

// Messages surfaced for StateError.
const (
	msgVotingClosed      = "voting is closed"
	msgNightLocked       = "movie night is locked"
	msgNominationBlocked = "nomination is blocked"
	msgVotesUsed         = "used all your votes"
	msgNoVoteToRemove    = "no vote to remove"
	msgMustHaveWatched   = "you can only block movies you have watched"
	msgNothingToDecide   = "no nominations to decide"
	msgAlreadyNominated  = "already nominated"
	msgAlreadyDecided    = "movie night is already decided"
	msgSharingDisabled   = "sharing is disabled for this group"
)

// RateLimitError is returned once a caller exceeds an attempt budget.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter)
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below one.
func (e *RateLimitError) RetryAfterSeconds() int {
	if e == nil || e.RetryAfter <= 0 {
		return 1
	}
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func fieldError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
