package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartsubstation/fieldsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass against the server",
	Long: `Drain the pending queues against the server once.

Performs the three drain phases in order:
  1. Replay queued requests captured while offline
  2. Submit offline inspection records
  3. Upload pending evidence files

Then prunes old sync logs and replayed requests, and recomputes the
pending-item count. Items that fail stay queued for the next pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := newLogger("[sync] ")
		a, err := openApp(cfg, nil, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		reporter := syncer.NewReporter(a.store, cfg.PendingInterval, nil, logger)
		orch, err := syncer.New(a.store, a.api, a.session, reporter, &syncer.Config{
			RetentionDays: cfg.RetentionDays,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		result, err := orch.Sync(ctx)
		if err != nil {
			if errors.Is(err, syncer.ErrSyncInProgress) {
				fmt.Println("A sync run is already in progress")
				return nil
			}
			fmt.Fprintf(os.Stderr, "Sync finished with errors: %v\n", err)
			if result != nil {
				printResult(result, reporter.Count())
			}
			return err
		}

		printResult(result, reporter.Count())
		return nil
	},
}

func printResult(result *syncer.Result, pending int) {
	fmt.Printf("Sync complete in %v\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("   Requests replayed: %d\n", result.Requests)
	fmt.Printf("   Records submitted: %d\n", result.Records)
	fmt.Printf("   Files uploaded:    %d\n", result.Files)
	fmt.Printf("   Still pending:     %d\n", pending)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
