package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartsubstation/fieldsync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending queues and recent sync runs",
	Long: `Display the local sync state.

Shows:
  - Database location and size
  - Pending requests, records, and files awaiting sync
  - The most recent sync run outcomes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		info, err := os.Stat(cfg.DatabasePath)
		if os.IsNotExist(err) {
			fmt.Println("Local database not initialized")
			fmt.Println("   Run 'fieldsync pull' or 'fieldsync daemon' to create it")
			return nil
		}

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()
		if err := st.InitSchema(); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		ctx := cmd.Context()
		requests, records, files, err := st.PendingCounts(ctx)
		if err != nil {
			return fmt.Errorf("failed to count pending items: %w", err)
		}

		fmt.Printf("Database: %s (%.1f KB)\n", cfg.DatabasePath, float64(info.Size())/1024)
		fmt.Println()
		fmt.Printf("Pending requests: %d\n", requests)
		fmt.Printf("Pending records:  %d\n", records)
		fmt.Printf("Pending files:    %d\n", files)
		fmt.Printf("Total pending:    %d\n", requests+records+files)

		limit, _ := cmd.Flags().GetInt("logs")
		logs, err := st.RecentSyncLogs(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to load sync logs: %w", err)
		}

		if len(logs) > 0 {
			fmt.Println()
			fmt.Println("Recent sync runs:")
			for _, entry := range logs {
				line := fmt.Sprintf("   %s  %-7s  %d items", fmtMillis(entry.Timestamp), entry.Status, entry.DataCount)
				if entry.Error != "" {
					line += "  " + entry.Error
				}
				fmt.Println(line)
			}
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().Int("logs", 10, "Number of recent sync runs to show")
	rootCmd.AddCommand(statusCmd)
}
