package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartsubstation/fieldsync/internal/api"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Refresh the local cache from the server",
	Long: `Pull tasks, devices, stations, templates, and defects from the server
into the local database so field browsing keeps working offline.

Each entity type refreshes independently; a failure on one does not stop
the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := newLogger("[pull] ")
		a, err := openApp(cfg, nil, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		refresher := api.NewRefresher(a.api, a.store, logger)

		start := time.Now()
		if err := refresher.RefreshAll(cmd.Context()); err != nil {
			return fmt.Errorf("cache refresh incomplete: %w", err)
		}

		fmt.Printf("Cache refreshed in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Database: %s\n", cfg.DatabasePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
