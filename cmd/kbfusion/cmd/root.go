// Package cmd provides the CLI commands for kbfusion.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kortix-ai/kb-fusion/internal/config"
	"github.com/kortix-ai/kb-fusion/internal/logging"
	"github.com/kortix-ai/kb-fusion/pkg/kb"
	"github.com/kortix-ai/kb-fusion/pkg/version"
)

var (
	debugMode      bool
	offlineMode    bool
	cacheDirFlag   string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the kbfusion CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbfusion",
		Short: "Durable semantic search cache for documents",
		Long: `kbfusion maintains a per-document cache of text chunks and embeddings,
re-embedding only content that actually changed, and answers semantic
queries with cosine similarity over the cached vectors.

Indexing is idempotent: run 'kbfusion search' as often as you like, the
embedding provider is only called for new or edited content.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("kbfusion version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and ~/.kbfusion/logs/")
	cmd.PersistentFlags().BoolVar(&offlineMode, "offline", false, "Use static embeddings (no network, reduced quality)")
	cmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "Override the cache directory")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRun = stopLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// startLogging configures slog for the process lifetime.
func startLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if cfg, err := loadConfig(); err == nil && cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging failure must not block the actual work
		fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
		return nil
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// loadConfig loads configuration from the working directory and applies
// CLI flag overrides.
func loadConfig() (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return nil, err
	}

	if offlineMode {
		cfg.Embeddings.Provider = "static"
		cfg.Embeddings.Model = "static"
	}
	if cacheDirFlag != "" {
		cfg.Cache.Dir = cacheDirFlag
	}
	return cfg, nil
}

// openClient builds a kb.Client from the effective configuration.
func openClient() (*kb.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return kb.Open(cfg, slog.Default())
}
