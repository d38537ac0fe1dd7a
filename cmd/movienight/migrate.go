package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/movienight/internal/persistence/sqlite"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateCmd.AddCommand(newMigrateUpCommand(ctx), newMigrateStatusCommand(ctx))
	return migrateCmd
}

func newMigrateUpCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := acquireLock(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			logger := ctx.logger()
			pool, err := sqlite.NewConnectionPool(sqliteConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pool.Migrate(cmd.Context(), logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.Database.Path)
			return nil
		},
	}
}

func newMigrateStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pool, err := sqlite.NewConnectionPool(sqliteConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			status, err := pool.MigrationManager(ctx.logger()).GetMigrationStatus(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(status.AppliedMigrations)+len(status.PendingMigrations))
			for _, m := range status.AppliedMigrations {
				rows = append(rows, []string{m.Version, "applied", m.AppliedAt.UTC().Format(time.RFC3339), m.ExecutionTime.String()})
			}
			for _, m := range status.PendingMigrations {
				rows = append(rows, []string{m.Version, "pending", "", ""})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Version", "State", "Applied At", "Took"}, rows))
			return nil
		},
	}
}
