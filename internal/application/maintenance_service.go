package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/movienight/internal/metrics"
)

// The maintenance pass is assembled from these narrow collaborators.
type (
	ScheduleTopper interface {
		TopUp(ctx context.Context) (int, error)
	}
	SessionPruner interface {
		PruneSessions(ctx context.Context) (int, error)
	}
	AttemptPruner interface {
		PrunePINAttempts(ctx context.Context) (int, error)
	}
	GarbageCollector interface {
		CollectGarbage() error
	}
	IntegrationProber interface {
		Probe(ctx context.Context)
	}
)

// MaintenanceReport summarises one pass.
type MaintenanceReport struct {
	NightsGenerated int
	SessionsPruned  int
	AttemptsPruned  int
}

// MaintenanceService runs the periodic housekeeping tasks. Nil collaborators
// are skipped.
type MaintenanceService struct {
	Schedules ScheduleTopper
	Sessions  SessionPruner
	Attempts  AttemptPruner
	Images    GarbageCollector
	Prober    IntegrationProber
	Logger    *slog.Logger
}

// RunOnce performs a full pass. Every task runs even when an earlier one
// fails; the failures are joined.
func (m *MaintenanceService) RunOnce(ctx context.Context) (report MaintenanceReport, err error) {
	if m == nil {
		err = fmt.Errorf("MaintenanceService is nil")
		return
	}

	logger := serviceLogger(ctx, defaultLogger(m.Logger), "MaintenanceService", "RunOnce")
	defer func() {
		metrics.RecordMaintenance(report.NightsGenerated, err)
		if err != nil {
			logger.ErrorContext(ctx, "maintenance pass failed", "error", err)
			return
		}
		logger.InfoContext(ctx, "maintenance pass complete",
			"nights_generated", report.NightsGenerated,
			"sessions_pruned", report.SessionsPruned,
			"attempts_pruned", report.AttemptsPruned,
		)
	}()

	var errs []error
	if m.Schedules != nil {
		n, tErr := m.Schedules.TopUp(ctx)
		report.NightsGenerated = n
		if tErr != nil {
			errs = append(errs, fmt.Errorf("top up schedules: %w", tErr))
		}
	}
	if m.Sessions != nil {
		n, sErr := m.Sessions.PruneSessions(ctx)
		report.SessionsPruned = n
		if sErr != nil {
			errs = append(errs, fmt.Errorf("prune sessions: %w", sErr))
		}
	}
	if m.Attempts != nil {
		n, aErr := m.Attempts.PrunePINAttempts(ctx)
		report.AttemptsPruned = n
		if aErr != nil {
			errs = append(errs, fmt.Errorf("prune pin attempts: %w", aErr))
		}
	}
	if m.Images != nil {
		if gErr := m.Images.CollectGarbage(); gErr != nil {
			errs = append(errs, fmt.Errorf("image cache gc: %w", gErr))
		}
	}
	if m.Prober != nil {
		m.Prober.Probe(ctx)
	}
	err = errors.Join(errs...)
	return
}
