// Package cli implements the cdabench command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/cdabench/internal/config"
	"github.com/ppiankov/cdabench/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to cdabench YAML config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console|json), overrides config")
}

var rootCmd = &cobra.Command{
	Use:   "cdabench",
	Short: "Benchmark Copernicus data access endpoints",
	Long: "Runs catalogue search, download and latency scenarios against configured\n" +
		"data access endpoints and writes a JUnit XML report.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code without printing anything.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ee exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// loadConfig reads --config.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger builds the run logger from cfg, letting the persistent flags win.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	opts := logging.Options{Level: "info", Format: "console"}
	if cfg != nil {
		opts = cfg.Log
	}
	if logLevel != "" {
		opts.Level = logLevel
	}
	if logFormat != "" {
		opts.Format = logFormat
	}
	return logging.New(opts)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
