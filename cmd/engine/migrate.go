package main

import (
	"encoding/json"
	"fmt"

	"marketplace-engine/engagement/infra"
	"marketplace-engine/logging"

	"github.com/spf13/cobra"
)

type migrateResult struct {
	Database string `json:"database"`
	Applied  int    `json:"applied"`
	Version  int    `json:"version"`
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the provider store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			db, err := infra.OpenSQLite(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			runner := infra.NewMigrationRunner(db)
			applied, err := runner.Run()
			if err != nil {
				return err
			}
			version, err := runner.Version()
			if err != nil {
				return err
			}
			logging.Channel(logger, logging.ChannelStore).Info("migrations applied", "database", cfg.DatabasePath, "applied", applied, "version", version)

			res := migrateResult{Database: cfg.DatabasePath, Applied: applied, Version: version}
			if opts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: applied %d migration(s), schema version %d\n", res.Database, res.Applied, res.Version)
			return err
		},
	}
}
