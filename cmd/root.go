package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/logging"
)

const (
	AppName = "toolbridge"
	Version = "0.1.0"
)

var (
	logger  *slog.Logger
	baseDir string
	cfgMgr  *config.Manager
)

var rootCmd = &cobra.Command{
	Use:   AppName,
	Short: "toolbridge - tool calling for text-only LLM backends",
	Long: `An OpenAI-compatible chat completions server that adds tool calling on top of
backends which only produce text, by describing tools in the prompt and
parsing the model's reply back into structured tool calls.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if logger == nil {
			logger = logging.New(os.Stderr, slog.LevelInfo)
		}
		logger.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ~/.toolbridge/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(configCmd)
}

// setup resolves the base directory and config manager, and installs a
// logger from the flags. runStart replaces the logger once the config
// level is known.
func setup(cmd *cobra.Command, _ []string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	baseDir = filepath.Join(homeDir, "."+AppName)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfgMgr = config.NewManagerWithPath(path)
	} else {
		cfgMgr = config.NewManager(baseDir)
	}

	level, err := flagLevel(cmd, "info")
	if err != nil {
		return err
	}
	logger = logging.New(os.Stderr, level)
	return nil
}

// flagLevel picks the log level from --verbose, then --log-level, then
// fallback.
func flagLevel(cmd *cobra.Command, fallback string) (slog.Level, error) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return slog.LevelDebug, nil
	}
	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		return logging.ParseLevel(s)
	}
	return logging.ParseLevel(fallback)
}

// loadConfig loads and validates the configuration. A missing file only
// warns, since providers may come from the environment.
func loadConfig() (*config.Config, error) {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration file at %s, using defaults and environment", cfgMgr.GetPath())
		color.Yellow("Run '%s config init' to create one", AppName)
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
