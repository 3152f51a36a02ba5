package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/dirstore/internal/config"
	"github.com/KilimcininKorOglu/dirstore/internal/logging"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/store"
)

// globalFlags holds the flags shared by every command.
type globalFlags struct {
	configFile string
	dataDir    string
	logDir     string
	backend    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "dirstore",
		Short:         "Operator tooling for the directory store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configFile, "config", "", "Path to configuration file")
	flags.StringVar(&g.dataDir, "data-dir", "", "Data directory path (overrides config)")
	flags.StringVar(&g.logDir, "log-dir", "", "Transaction log directory (overrides config)")
	flags.StringVar(&g.backend, "backend", "", "Index backend: memory, pebble (overrides config)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		newRecoverCmd(g),
		newVerifyCmd(g),
		newCheckpointCmd(g),
		newStatsCmd(g),
		newLogCmd(g),
		newIndexCmd(g),
		newExportCmd(g),
		newImportCmd(g),
		newServeCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the configuration file, then applies flag and
// environment overrides and validates the result.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if g.configFile != "" {
		loaded, err := config.LoadConfig(g.configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	// Command-line overrides take precedence over the file.
	if g.dataDir != "" {
		cfg.Storage.DataDir = g.dataDir
	}
	if g.logDir != "" {
		cfg.Storage.LogDir = g.logDir
	}
	if g.backend != "" {
		cfg.Storage.IndexBackend = g.backend
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}

	// Environment overrides take precedence over everything.
	applyEnvOverrides(cfg)

	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// applyEnvOverrides applies DIRSTORE_* environment variables.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("DIRSTORE_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("DIRSTORE_STORAGE_LOG_DIR"); v != "" {
		cfg.Storage.LogDir = v
	}
	if v := os.Getenv("DIRSTORE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// openStore loads the configuration and opens the store. Recovery runs
// before it returns.
func (g *globalFlags) openStore() (*store.Store, *config.Config, logging.Logger, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := newLogger(cfg)
	s, err := store.Open(cfg, store.Options{Logger: logger})
	if err != nil {
		logger.Sync()
		return nil, nil, nil, err
	}
	return s, cfg, logger, nil
}
