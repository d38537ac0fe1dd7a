package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/movienight/internal/supervisor"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); cerr != nil {
					logger.Error("failed to release resources", "error", cerr)
				}
			}()

			server := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           a.handler,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       cfg.Server.ReadTimeout,
				WriteTimeout:      cfg.Server.WriteTimeout,
				IdleTimeout:       cfg.Server.IdleTimeout,
			}

			tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
			tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
			tree.AddJob(supervisor.NewMaintenanceJob(a.maintenance, cfg.Schedule.MaintenanceInterval, logger))

			logger.Info("movie night API listening", "addr", server.Addr, "database", cfg.Database.Path)
			if err := tree.Serve(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}
