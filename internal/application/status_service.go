package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/movienight/internal/breaker"
	"github.com/example/movienight/internal/integrations"
)

// IntegrationMonitor exposes breaker state for the external services.
type IntegrationMonitor interface {
	Status() map[integrations.Service]breaker.Status
	Retry(svc integrations.Service) error
}

// ServiceStatus is one integration's breaker status.
type ServiceStatus struct {
	Service string
	breaker.Status
}

// StatusService reports and resets integration breakers.
type StatusService struct {
	monitor IntegrationMonitor
	logger  *slog.Logger
}

// NewStatusService constructs a status service.
func NewStatusService(monitor IntegrationMonitor, logger *slog.Logger) *StatusService {
	return &StatusService{monitor: monitor, logger: defaultLogger(logger)}
}

// ListStatus returns every integration in display order. Requires canAccessSettings.
func (s *StatusService) ListStatus(ctx context.Context, principal Principal) ([]ServiceStatus, error) {
	if s == nil {
		return nil, fmt.Errorf("StatusService is nil")
	}
	if err := requireApp(principal, canAccessSettings); err != nil {
		return nil, err
	}
	statuses := s.monitor.Status()
	out := make([]ServiceStatus, 0, len(integrations.Services))
	for _, svc := range integrations.Services {
		out = append(out, ServiceStatus{Service: string(svc), Status: statuses[svc]})
	}
	return out, nil
}

// Retry closes a service's breaker so the next call goes through.
func (s *StatusService) Retry(ctx context.Context, principal Principal, service string) (err error) {
	if s == nil {
		return fmt.Errorf("StatusService is nil")
	}

	logger := serviceLogger(ctx, s.logger, "StatusService", "Retry", "principal_id", principal.UserID, "integration", service)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to reset breaker", "")
			return
		}
		logger.InfoContext(ctx, "breaker reset")
	}()

	if err = requireApp(principal, canAccessSettings); err != nil {
		return
	}
	err = s.monitor.Retry(integrations.Service(service))
	if errors.Is(err, integrations.ErrUnknownService) {
		err = ErrNotFound
	}
	return
}
