// Command fieldsync is the offline-first sync agent for substation field
// inspections. It keeps a local SQLite cache of server data, queues work
// performed while offline, and drains the queues when connectivity returns.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartsubstation/fieldsync/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first sync agent for substation field inspections",
	Long: `fieldsync keeps field inspection work flowing when the network does not.

It maintains a local SQLite database of tasks, devices, and templates,
queues records, files, and requests captured while offline, and replays
everything to the inspection server when connectivity returns.

Configuration comes from fieldsync.yaml, FIELDSYNC_* environment
variables, or flags. The server base URL is required:

  export FIELDSYNC_SERVER_BASE_URL=https://inspection.example.com/api`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: fieldsync.yaml in data dir or cwd)")
}

// loadConfig loads and validates configuration for a command invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger returns a prefixed stderr logger for CLI commands.
func newLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
