package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/stocktake/internal/server"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg.Database.MigrateOnStart = false
		db, err := server.ConnectDB(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Check that the configured database answers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg.Database.MigrateOnStart = false
		db, err := server.ConnectDB(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := server.PingDB(cmd.Context(), db, logger, time.Second); err != nil {
			return fmt.Errorf("DB health: FAIL (%w)", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "DB health: OK (%s)\n", db.Dialect())
		return nil
	},
}
