package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/samargunners/par-delta-dashboard/internal/config"
	"github.com/samargunners/par-delta-dashboard/internal/pkg/logging"
	"github.com/samargunners/par-delta-dashboard/internal/platform/database"
)

var (
	// configFile overrides CONFIG_FILE
	configFile string
	// outputFormat is text or json
	outputFormat string
	// logLevel applies to the stderr logger
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Inspect and query the Par Delta dashboard assistant",
	Long: `ragctl runs the dashboard's question-answering pipeline from a terminal.

Examples:
  # Ask a question against live data
  ragctl ask "What was the labor cost for store 357993 on 2024-01-05?"

  # Show the documents built from one table
  ragctl documents --table labor_daily

  # Build the index and print the session status
  ragctl status

  # Queue a rebuild for the running server
  ragctl refresh --reason "nightly load"`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (defaults to $CONFIG_FILE or configs/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level for stderr: debug, info, warn, error")
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(os.Stderr, logLevel, "ragctl", cfg.App.Env)
}

func openDB(ctx context.Context, cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := database.New(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, closeFn, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
