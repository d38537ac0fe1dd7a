// Package breaker guards calls to flaky external services.
//
// A Breaker is CLOSED until a failure is recorded, then OPEN for a fixed
// cooldown. It closes again lazily once the cooldown has elapsed, or
// immediately on Reset. The state machine is driven by gobreaker; this package
// adds the failure memory and status reporting operators see.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrOpen is returned by Execute while the breaker is cooling down.
var ErrOpen = errors.New("breaker: circuit open")

// recentFailureWindow is how long a failure keeps Status.Failed set.
const recentFailureWindow = 60 * time.Second

// Status is the operator-facing view of a breaker.
type Status struct {
	Configured       bool   `json:"configured"`
	Failed           bool   `json:"failed"`
	Error            string `json:"error,omitempty"`
	CircuitOpen      bool   `json:"circuitOpen"`
	RemainingMinutes int    `json:"remainingMinutes"`
}

// StateListener observes open/close transitions.
type StateListener func(name string, open bool)

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithStateListener registers a callback for state transitions.
func WithStateListener(listener StateListener) Option {
	return func(b *Breaker) {
		b.listener = listener
	}
}

// WithClock overrides the time source used for failure memory.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	name     string
	cooldown time.Duration
	logger   *slog.Logger
	listener StateListener
	now      func() time.Time

	mu            sync.Mutex
	cb            *gobreaker.TwoStepCircuitBreaker[struct{}]
	openedAt      time.Time
	lastFailureAt time.Time
	lastErr       error
	quiet         bool
}

// New constructs a closed breaker with the given cooldown.
func New(name string, cooldown time.Duration, opts ...Option) *Breaker {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	b := &Breaker{
		name:     name,
		cooldown: cooldown,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.cb = b.newCircuit()
	return b
}

func (b *Breaker) newCircuit() *gobreaker.TwoStepCircuitBreaker[struct{}] {
	return gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: 1,
		Timeout:     b.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.quiet {
				return
			}
			b.logger.Info("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if b.listener != nil {
				b.listener(name, to == gobreaker.StateOpen)
			}
		},
	})
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// RecordFailure opens the circuit and remembers reason. A failure while the
// circuit is already open or probing restarts the cooldown from now.
func (b *Breaker) RecordFailure(reason error) {
	if reason == nil {
		reason = errors.New("unknown failure")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.lastFailureAt = now
	b.lastErr = reason

	done, err := b.cb.Allow()
	if err != nil {
		b.retrip(reason, b.cb.State() == gobreaker.StateOpen)
		b.openedAt = now
		return
	}
	done(reason)
	if b.cb.State() == gobreaker.StateOpen {
		b.openedAt = now
	}
}

// retrip replaces the circuit with a freshly opened one. When the circuit
// was already open the listener has seen it, so the rebuild is not reported.
func (b *Breaker) retrip(reason error, wasOpen bool) {
	b.quiet = wasOpen
	defer func() { b.quiet = false }()

	b.cb = b.newCircuit()
	if done, err := b.cb.Allow(); err == nil {
		done(reason)
	}
}

// RecordSuccess clears the failure memory. An open circuit stays open until
// its cooldown passes.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = time.Time{}
	b.lastErr = nil

	if done, err := b.cb.Allow(); err == nil {
		done(nil)
	}
}

// IsOpen reports whether calls should be skipped. After the cooldown the
// circuit reports closed without any further call.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cb.State() == gobreaker.StateOpen
}

// Reset forces the breaker closed and forgets every failure.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasOpen := b.cb.State() == gobreaker.StateOpen
	b.cb = b.newCircuit()
	b.openedAt = time.Time{}
	b.lastFailureAt = time.Time{}
	b.lastErr = nil

	if wasOpen {
		b.logger.Info("circuit breaker reset", "breaker", b.name)
		if b.listener != nil {
			b.listener(b.name, false)
		}
	}
}

// Status summarises the breaker for display.
func (b *Breaker) Status(configured bool) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	status := Status{Configured: configured}

	if !b.lastFailureAt.IsZero() && now.Sub(b.lastFailureAt) < recentFailureWindow {
		status.Failed = true
	}
	if b.lastErr != nil {
		status.Error = b.lastErr.Error()
	}

	if b.cb.State() == gobreaker.StateOpen {
		status.CircuitOpen = true
		remaining := b.openedAt.Add(b.cooldown).Sub(now)
		if remaining > 0 {
			status.RemainingMinutes = int(math.Ceil(remaining.Minutes()))
		}
	}
	return status
}

// Execute runs fn unless the circuit is open. Errors from fn open the
// circuit, except cancellation by the caller.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if b == nil {
		return fn(ctx)
	}
	if b.IsOpen() {
		return ErrOpen
	}

	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess()
	case errors.Is(err, context.Canceled):
	default:
		b.RecordFailure(err)
	}
	return err
}

// Do is Execute for functions that return a value.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
