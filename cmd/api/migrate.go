package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig(nil)
		if err != nil {
			return err
		}
		if cfg.Store.Driver == "memory" {
			fmt.Fprintln(cmd.OutOrStdout(), "memory store has no schema, nothing to migrate")
			return nil
		}
		// Opening a persistent store applies its migrations.
		_, closeRepo, err := openRepository(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		if err := closeRepo(); err != nil {
			return err
		}
		log.Info().Str("store", cfg.Store.Driver).Msg("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
