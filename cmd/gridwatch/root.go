package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/gridwatch/internal/config"
	"github.com/ShayCichocki/gridwatch/internal/logging"
	"github.com/ShayCichocki/gridwatch/pkg/progress"
)

var (
	configPath string
	logPath    string
	debugLog   bool
)

var rootCmd = &cobra.Command{
	Use:   "gridwatch",
	Short: "Live progress dashboard for distributed workers",
	Long: `gridwatch collects status messages and progress from many worker
processes and renders them as a grid of panels on the coordinator's terminal.

Rank 0 is the coordinator. It listens for reports and redraws only the panels
that changed. Every other rank is a worker that reports to it.

Commands:
- serve: run the coordinator dashboard
- work:  run a simulated worker against a coordinator
- demo:  run a coordinator and workers in one process`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/gridwatch/config.yaml and .gridwatch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-file", "", "Write logs to this file (overrides log.path)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration, applies the global flags and validates it.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if logPath != "" {
		cfg.Log.Path = logPath
	}
	if debugLog {
		cfg.Log.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// watchedConfigPath returns the file whose changes should relayout a running
// dashboard, or "" when no config file is in use.
func watchedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := config.GetProjectConfigPath(); p != "" {
		return p
	}
	if p := config.GetUserConfigPath(); fileExists(p) {
		return p
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// newLogger opens the log file for the coordinator or a worker rank.
// Workers log to a per-rank file next to the configured path.
func newLogger(cfg *config.Config, rank int) (*zap.Logger, error) {
	if cfg.Log.Path == "" {
		return logging.Nop(), nil
	}
	if rank == 0 {
		return logging.New(cfg.Log.Path, cfg.Log.Debug)
	}
	return logging.ForRank(filepath.Dir(cfg.Log.Path), rank, cfg.Log.Debug)
}

// timingFrom converts the configured timing for the progress manager.
func timingFrom(cfg *config.Config) progress.Timing {
	t := cfg.Timing
	return progress.Timing{
		Debounce:           t.Debounce,
		CycleInterval:      t.CycleInterval,
		PollInterval:       t.PollInterval,
		PollAttempts:       t.PollAttempts,
		MaxReportsPerCycle: t.MaxReportsPerCycle,
		DrainAttempts:      drainAttempts(t.CycleInterval, t.PollInterval),
	}
}

// drainAttempts lets a worker's shutdown drain span three coordinator cycles,
// since an in-process send only completes when the coordinator receives it.
func drainAttempts(cycle, poll time.Duration) int {
	if poll <= 0 {
		return 1
	}
	n := int(3 * (cycle + poll) / poll)
	if n < 1 {
		n = 1
	}
	return n
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
