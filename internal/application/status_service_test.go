package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/movienight/internal/breaker"
	"github.com/example/movienight/internal/integrations"
)

type monitorStub struct {
	statuses map[integrations.Service]breaker.Status
	retried  []integrations.Service
}

func (m *monitorStub) Status() map[integrations.Service]breaker.Status {
	return m.statuses
}

func (m *monitorStub) Retry(svc integrations.Service) error {
	for _, known := range integrations.Services {
		if known == svc {
			m.retried = append(m.retried, svc)
			return nil
		}
	}
	return integrations.ErrUnknownService
}

func TestStatusService(t *testing.T) {
	ctx := context.Background()
	root := Principal{UserID: "root", IsAppAdmin: true}
	monitor := &monitorStub{statuses: map[integrations.Service]breaker.Status{
		integrations.ServicePlex: {Configured: true, Failed: true, CircuitOpen: true, RemainingMinutes: 4},
	}}
	svc := NewStatusService(monitor, nil)

	statuses, err := svc.ListStatus(ctx, root)
	if err != nil {
		t.Fatalf("list status: %v", err)
	}
	if len(statuses) != len(integrations.Services) {
		t.Fatalf("expected every service, got %+v", statuses)
	}
	if statuses[0].Service != string(integrations.ServicePlex) || !statuses[0].CircuitOpen || statuses[0].RemainingMinutes != 4 {
		t.Fatalf("unexpected plex status %+v", statuses[0])
	}
	if statuses[1].Configured {
		t.Fatalf("expected unreported service to read as unconfigured, got %+v", statuses[1])
	}

	if err := svc.Retry(ctx, root, "plex"); err != nil || len(monitor.retried) != 1 {
		t.Fatalf("expected retry, got %v", err)
	}
	if err := svc.Retry(ctx, root, "netflix"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ListStatus(ctx, Principal{UserID: "bob"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.Retry(ctx, Principal{UserID: "bob"}, "plex"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
