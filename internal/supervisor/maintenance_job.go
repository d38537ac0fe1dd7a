package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/movienight/internal/application"
)

// MaintenanceRunner performs one housekeeping pass.
type MaintenanceRunner interface {
	RunOnce(ctx context.Context) (application.MaintenanceReport, error)
}

// MaintenanceJob runs a pass at startup and then on every tick. A failed
// pass is logged and retried on the next tick rather than restarting the
// service.
type MaintenanceJob struct {
	runner   MaintenanceRunner
	interval time.Duration
	logger   *slog.Logger
}

func NewMaintenanceJob(runner MaintenanceRunner, interval time.Duration, logger *slog.Logger) *MaintenanceJob {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceJob{runner: runner, interval: interval, logger: logger}
}

func (j *MaintenanceJob) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *MaintenanceJob) run(ctx context.Context) {
	if _, err := j.runner.RunOnce(ctx); err != nil && ctx.Err() == nil {
		j.logger.WarnContext(ctx, "maintenance pass incomplete", "error", err, "next_run_in", j.interval)
	}
}

func (j *MaintenanceJob) String() string {
	return "maintenance"
}
