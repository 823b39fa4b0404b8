// Package cmd implements the CLI commands for clipd.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/clipd/internal/config"
	"github.com/jmylchreest/clipd/internal/observability"
	"github.com/jmylchreest/clipd/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "clipd",
	Short:   "Declarative media editing job service",
	Version: version.Short(),
	Long: `clipd turns declarative edit recipes into FFmpeg jobs: clients post
operation lists (trim, speed, text, karaoke, watermark, audio mixing,
compression) or stored workflows, a worker pool compiles them into
filter graphs and runs the engine, and finished artifacts land in an
S3-compatible object store. Progress streams to clients over SSE.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// PersistentPreRunE is set here rather than in the struct literal
	// to avoid an initialization cycle with the flag set.
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// These flags are not bound to viper: Changed() decides whether
	// they override config/env, keeping the priority
	// flag > env > config > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/clipd, $HOME/.clipd)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// loadConfig reads the full configuration for commands that need it.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// initLogging configures the default slog logger before any command
// runs.
func initLogging() error {
	v := viper.New()
	config.SetDefaults(v)
	v.SetEnvPrefix("CLIPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	level := v.GetString("logging.level")
	format := v.GetString("logging.format")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	logger := observability.NewLogger(config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	})
	slog.SetDefault(logger)
	return nil
}
