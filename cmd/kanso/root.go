package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/config"
)

type rootOptions struct {
	EnvFile string
	Debug   bool
	Memory  bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "kanso",
		Short:         "Habit streak and overdue accounting engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.EnvFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			if opts.logger == nil {
				logger, err := newLogger(opts.Debug)
				if err != nil {
					return fmt.Errorf("build logger: %w", err)
				}
				opts.logger = logger
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "human-readable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.Memory, "memory", false, "use the in-memory store instead of Postgres")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
