package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/movienight/internal/application"
)

type fakeServer struct {
	listenErr error
	stop      chan struct{}
	once      sync.Once
	shutdowns atomic.Int32
}

func newFakeServer(listenErr error) *fakeServer {
	return &fakeServer{listenErr: listenErr, stop: make(chan struct{})}
}

func (s *fakeServer) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stop
	return nil
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.shutdowns.Add(1)
	s.once.Do(func() { close(s.stop) })
	return nil
}

func TestHTTPService_GracefulShutdown(t *testing.T) {
	server := newFakeServer(nil)
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
	if server.shutdowns.Load() != 1 {
		t.Fatalf("expected one shutdown, got %d", server.shutdowns.Load())
	}
}

func TestHTTPService_ListenFailure(t *testing.T) {
	svc := NewHTTPService(newFakeServer(errors.New("address in use")), 0)
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatalf("expected listen failure to be returned")
	}
}

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) RunOnce(context.Context) (application.MaintenanceReport, error) {
	r.calls.Add(1)
	return application.MaintenanceReport{}, r.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestMaintenanceJob_RunsAtStartAndOnTicks(t *testing.T) {
	runner := &countingRunner{err: errors.New("overseerr down")}
	job := NewMaintenanceJob(runner, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Serve(ctx) }()

	waitFor(t, func() bool { return runner.calls.Load() >= 3 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTree_RunsJobs(t *testing.T) {
	runner := &countingRunner{}
	tree := NewTree(nil, TreeConfig{ShutdownTimeout: time.Second})
	tree.AddJob(NewMaintenanceJob(runner, time.Hour, nil))
	server := newFakeServer(nil)
	tree.AddAPIService(NewHTTPService(server, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	waitFor(t, func() bool { return runner.calls.Load() == 1 })
	cancel()

	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatalf("tree did not stop")
	}
	if server.shutdowns.Load() != 1 {
		t.Fatalf("expected the http service to shut down, got %d", server.shutdowns.Load())
	}
}
