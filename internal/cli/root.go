// Package cli implements the batchforge command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/batchforge/batchforge/internal/config"
	"github.com/batchforge/batchforge/internal/db"
	"github.com/batchforge/batchforge/internal/logging"
)

var (
	configPath  string
	jsonOutput  bool
	jsonlOutput bool
	noProgress  bool
	assumeYes   bool
	logLevel    string
	logFormat   string

	loadedConfig   *config.Config
	loadedConfigMu sync.RWMutex
)

var rootCmd = &cobra.Command{
	Use:   "batchforge",
	Short: "Render, submit and supervise SLURM job scripts",
	Long: `Batchforge renders job scripts from reusable skeletons, submits them to
SLURM (locally or over SSH) and tracks them until they finish.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		format := cfg.Log.Format
		if logFormat != "" {
			format = logFormat
		}
		logging.Setup(level, format)

		loadedConfigMu.Lock()
		loadedConfig = cfg
		loadedConfigMu.Unlock()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: search standard locations)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&jsonlOutput, "jsonl", false, "output as JSON lines")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress output")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "skip confirmation prompts")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig returns the configuration loaded for this invocation.
func GetConfig() *config.Config {
	loadedConfigMu.RLock()
	defer loadedConfigMu.RUnlock()
	return loadedConfig
}

// SkipConfirmation reports whether prompts should be skipped.
func SkipConfirmation() bool {
	return assumeYes || !hasTTY()
}

func openDatabase() (*db.DB, error) {
	cfg := GetConfig()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	database, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(context.Background()); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
