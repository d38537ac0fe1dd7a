package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestBreaker_OpensOnFailureAndClosesAfterCooldown(t *testing.T) {
	b := New("plex", 50*time.Millisecond)

	if b.IsOpen() {
		t.Fatalf("expected new breaker to be closed")
	}

	b.RecordFailure(errors.New("connection refused"))
	if !b.IsOpen() {
		t.Fatalf("expected breaker to open immediately after a failure")
	}

	time.Sleep(80 * time.Millisecond)
	if b.IsOpen() {
		t.Fatalf("expected breaker to close lazily after the cooldown")
	}
}

func TestBreaker_RecordSuccessDoesNotForceClose(t *testing.T) {
	b := New("overseerr", time.Minute)
	b.RecordFailure(errors.New("timeout"))

	b.RecordSuccess()

	if !b.IsOpen() {
		t.Fatalf("expected breaker to stay open until the cooldown passes")
	}
	status := b.Status(true)
	if status.Failed || status.Error != "" {
		t.Fatalf("expected failure memory to be cleared, got %+v", status)
	}
}

func TestBreaker_Reset(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []bool
	)
	b := New("tautulli", time.Hour, WithStateListener(func(name string, open bool) {
		mu.Lock()
		transitions = append(transitions, open)
		mu.Unlock()
	}))

	b.RecordFailure(errors.New("500"))
	b.Reset()

	if b.IsOpen() {
		t.Fatalf("expected reset breaker to be closed")
	}
	status := b.Status(true)
	if status.Failed || status.CircuitOpen || status.Error != "" {
		t.Fatalf("expected reset to clear failure memory, got %+v", status)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Fatalf("expected open then closed transitions, got %v", transitions)
	}
}

func TestBreaker_Status(t *testing.T) {
	current := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	b := New("plex", 5*time.Minute, WithClock(clock))

	if got := b.Status(false); got != (Status{}) {
		t.Fatalf("expected zero status for unconfigured healthy breaker, got %+v", got)
	}

	b.RecordFailure(errors.New("dial tcp: refused"))
	status := b.Status(true)
	if !status.Configured || !status.Failed || !status.CircuitOpen {
		t.Fatalf("expected configured, failed and open, got %+v", status)
	}
	if status.RemainingMinutes != 5 {
		t.Fatalf("expected 5 remaining minutes, got %d", status.RemainingMinutes)
	}
	if status.Error != "dial tcp: refused" {
		t.Fatalf("unexpected error text %q", status.Error)
	}

	current = current.Add(61 * time.Second)
	status = b.Status(true)
	if status.Failed {
		t.Fatalf("expected failure older than 60s to stop counting as failed")
	}
	if status.RemainingMinutes != 4 {
		t.Fatalf("expected 4 remaining minutes, got %d", status.RemainingMinutes)
	}
}

func TestBreaker_Execute(t *testing.T) {
	t.Run("skips calls while open", func(t *testing.T) {
		b := New("tmdb", time.Hour)
		b.RecordFailure(errors.New("boom"))

		called := false
		err := b.Execute(context.Background(), func(context.Context) error {
			called = true
			return nil
		})
		if !errors.Is(err, ErrOpen) {
			t.Fatalf("expected ErrOpen, got %v", err)
		}
		if called {
			t.Fatalf("expected fn not to be called while open")
		}
	})

	t.Run("opens on error but not on caller cancellation", func(t *testing.T) {
		b := New("tmdb", time.Hour)

		_ = b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
		if b.IsOpen() {
			t.Fatalf("expected cancellation not to trip the breaker")
		}

		_ = b.Execute(context.Background(), func(context.Context) error { return context.DeadlineExceeded })
		if !b.IsOpen() {
			t.Fatalf("expected timeout to trip the breaker")
		}
	})

	t.Run("Do returns the value", func(t *testing.T) {
		b := New("plex", time.Hour)
		got, err := Do(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
		if err != nil || got != 42 {
			t.Fatalf("expected 42, got %d (%v)", got, err)
		}
	})
}

func TestBreaker_FailureWhileOpenRestartsCooldown(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []bool
	)
	b := New("plex", 200*time.Millisecond, WithStateListener(func(name string, open bool) {
		mu.Lock()
		transitions = append(transitions, open)
		mu.Unlock()
	}))

	b.RecordFailure(errors.New("first"))
	time.Sleep(120 * time.Millisecond)
	b.RecordFailure(errors.New("second"))

	// Past the first deadline, before the second.
	time.Sleep(120 * time.Millisecond)
	if !b.IsOpen() {
		t.Fatalf("expected the second failure to extend the cooldown")
	}
	if got := b.Status(true).Error; got != "second" {
		t.Fatalf("expected latest failure to be reported, got %q", got)
	}

	time.Sleep(150 * time.Millisecond)
	if b.IsOpen() {
		t.Fatalf("expected breaker to close after the extended cooldown")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) == 0 || !transitions[0] {
		t.Fatalf("expected an open transition first, got %v", transitions)
	}
	for i := 1; i < len(transitions); i++ {
		if transitions[i] {
			t.Fatalf("expected the extension not to be reported as a new opening, got %v", transitions)
		}
	}
}

func TestBreaker_ExecuteThroughHalfOpen(t *testing.T) {
	b := New("overseerr", 50*time.Millisecond)
	failing := func(context.Context) error { return errors.New("503") }
	healthy := func(context.Context) error { return nil }

	if err := b.Execute(context.Background(), failing); err == nil || errors.Is(err, ErrOpen) {
		t.Fatalf("expected the upstream error, got %v", err)
	}
	if !b.IsOpen() {
		t.Fatalf("expected breaker to open after the failure")
	}

	time.Sleep(80 * time.Millisecond)
	if b.IsOpen() {
		t.Fatalf("expected breaker to allow a trial call after the cooldown")
	}
	if state := b.cb.State(); state != gobreaker.StateHalfOpen {
		t.Fatalf("expected half-open, got %s", state)
	}

	t.Run("failed trial reopens", func(t *testing.T) {
		if err := b.Execute(context.Background(), failing); err == nil {
			t.Fatalf("expected the trial to fail")
		}
		if !b.IsOpen() {
			t.Fatalf("expected a failed trial to reopen the breaker")
		}
	})

	time.Sleep(80 * time.Millisecond)

	t.Run("successful trial closes", func(t *testing.T) {
		if err := b.Execute(context.Background(), healthy); err != nil {
			t.Fatalf("expected the trial to succeed, got %v", err)
		}
		if state := b.cb.State(); state != gobreaker.StateClosed {
			t.Fatalf("expected closed after a successful trial, got %s", state)
		}
		if status := b.Status(true); status.Failed || status.CircuitOpen {
			t.Fatalf("expected a healthy status, got %+v", status)
		}
	})
}
