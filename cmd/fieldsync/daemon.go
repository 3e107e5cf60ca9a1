package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/smartsubstation/fieldsync/internal/config"
	"github.com/smartsubstation/fieldsync/internal/dashboard"
	"github.com/smartsubstation/fieldsync/internal/netmon"
	"github.com/smartsubstation/fieldsync/internal/syncer"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon until interrupted.

The daemon:
  1. Probes the server to track connectivity
  2. Starts a sync run on every offline-to-online transition
  3. Watches the capture directory for evidence files to upload
  4. Recomputes the pending-item count periodically
  5. Optionally serves a WebSocket status dashboard

Example usage:
  fieldsync daemon                         # Use config file / environment
  fieldsync daemon --dashboard :8090       # Also serve the dashboard`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("dashboard"); addr != "" {
			cfg.DashboardAddr = addr
		}

		logWriter := io.Writer(os.Stderr)
		if cfg.LogFile != "" {
			logWriter = &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}
		}

		return runDaemon(cfg, logWriter)
	},
}

func init() {
	daemonCmd.Flags().String("dashboard", "", "Serve the WebSocket dashboard on this address")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cfg *config.Config, logWriter io.Writer) error {
	logger := log.New(logWriter, "[daemon] ", log.LstdFlags)

	monitor := netmon.New(log.New(logWriter, "[netmon] ", log.LstdFlags))

	a, err := openApp(cfg, monitor.Online, log.New(logWriter, "[gateway] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer a.Close()

	// Optional dashboard
	var dash *dashboard.Server
	if cfg.DashboardAddr != "" {
		dash = dashboard.NewServer(&dashboard.Config{
			Addr:   cfg.DashboardAddr,
			Logger: log.New(logWriter, "[dashboard] ", log.LstdFlags),
		})
		if err := dash.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := dash.Stop(); err != nil {
				logger.Printf("Dashboard shutdown error: %v", err)
			}
		}()
	}

	var countEvents syncer.CountBroadcaster
	var syncEvents syncer.Broadcaster
	if dash != nil {
		countEvents = dash
		syncEvents = dash
	}

	reporter := syncer.NewReporter(a.store, cfg.PendingInterval, countEvents,
		log.New(logWriter, "[reporter] ", log.LstdFlags))

	orch, err := syncer.New(a.store, a.api, a.session, reporter, &syncer.Config{
		RetentionDays: cfg.RetentionDays,
		Events:        syncEvents,
		Logger:        log.New(logWriter, "[syncer] ", log.LstdFlags),
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	watcher, err := syncer.NewWatcher(cfg.CaptureDir, a.store, reporter, 0,
		log.New(logWriter, "[watcher] ", log.LstdFlags))
	if err != nil {
		return fmt.Errorf("failed to create capture watcher: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx, probeSource(cfg))
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		orch.Run(ctx, monitor.Subscribe())
	}()

	if dash != nil {
		events := monitor.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					dash.Connectivity(ev.Online)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx); err != nil {
			logger.Printf("Capture watcher stopped: %v", err)
		}
	}()

	logger.Printf("Daemon started (server=%s db=%s)", cfg.ServerBaseURL, cfg.DatabasePath)

	<-ctx.Done()
	logger.Println("Shutting down")
	wg.Wait()

	return nil
}
