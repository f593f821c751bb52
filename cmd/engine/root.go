package main

import (
	"fmt"
	"log/slog"
	"os"

	"marketplace-engine/config"
	"marketplace-engine/logging"

	"github.com/spf13/cobra"
)

// rootOptions são as flags globais de todos os comandos.
type rootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "engine",
		Short:         "Marketplace engagement engine",
		Long:          "Browsing cursor, per-user action limits, rating aggregates and the favorite/contact ledger of the provider marketplace.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("ENGINE_CONFIG"), "YAML config file (env overrides it)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))

	return cmd
}

func (o *rootOptions) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
