package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/example/movienight/internal/config"
	"github.com/example/movienight/internal/logging"
)

// commandContext loads configuration once per invocation and shares it
// between subcommands.
type commandContext struct {
	configFlag *string

	once   sync.Once
	config config.Config
	err    error
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.err = config.Load(path)
	})
	return c.config, c.err
}

func (c *commandContext) logger() *slog.Logger {
	cfg, _ := c.ensureConfig()
	return logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "movienight",
		Short:         "Group movie night scheduling and voting server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (defaults to $"+config.ConfigPathEnv+")")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	return rootCmd
}
