package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartsubstation/fieldsync/internal/store"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Prune old sync logs and replayed requests",
	Long: `Delete sync logs and pending-request entries older than the retention
window. Offline records and pending files are never pruned; they stay until
the server confirms them.

Example usage:
  fieldsync clean              # Use configured retention (default 7 days)
  fieldsync clean --days 30    # Keep a month of history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			days = cfg.RetentionDays
		}

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()
		if err := st.InitSchema(); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		if err := st.CleanOldData(cmd.Context(), days); err != nil {
			return fmt.Errorf("failed to prune old data: %w", err)
		}

		fmt.Printf("Pruned sync history older than %d days\n", days)
		return nil
	},
}

func init() {
	cleanCmd.Flags().Int("days", 0, "Retention window in days (0 = configured value)")
	rootCmd.AddCommand(cleanCmd)
}
