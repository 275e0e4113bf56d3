// Package config handles configuration loading and management for gridwatch.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/gridwatch/internal/tui"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all configuration for gridwatch.
type Config struct {
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Timing    TimingConfig    `mapstructure:"timing"`
	Transport TransportConfig `mapstructure:"transport"`
	Log       LogConfig       `mapstructure:"log"`
}

// DashboardConfig holds grid geometry. Zero rows or columns are detected
// from the terminal.
type DashboardConfig struct {
	PanelWidth int `mapstructure:"panel_width"`
	Rows       int `mapstructure:"rows"`
	Columns    int `mapstructure:"columns"`
}

// TimingConfig holds reporter and coordinator timing.
type TimingConfig struct {
	Debounce           time.Duration `mapstructure:"debounce"`
	CycleInterval      time.Duration `mapstructure:"cycle_interval"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	PollAttempts       int           `mapstructure:"poll_attempts"`
	MaxReportsPerCycle int           `mapstructure:"max_reports_per_cycle"`
}

// TransportConfig holds the RPC endpoint used by serve and work.
type TransportConfig struct {
	Network      string        `mapstructure:"network"`
	Address      string        `mapstructure:"address"`
	DialAttempts uint          `mapstructure:"dial_attempts"`
	DialDelay    time.Duration `mapstructure:"dial_delay"`
}

// LogConfig holds log file settings. An empty path disables logging.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Debug bool   `mapstructure:"debug"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (GRIDWATCH_TIMING_DEBOUNCE, ...)
// 2. Project config (.gridwatch.yaml in current directory or parent)
// 3. User config (~/.config/gridwatch/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific file over the defaults.
// Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return decode(v)
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for section, values := range cfg.Settings() {
		for key, value := range values {
			v.Set(section+"."+key, value)
		}
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Settings returns the configuration as nested maps keyed like the config
// file, with durations rendered as strings.
func (c *Config) Settings() map[string]map[string]any {
	return map[string]map[string]any{
		"dashboard": {
			"panel_width": c.Dashboard.PanelWidth,
			"rows":        c.Dashboard.Rows,
			"columns":     c.Dashboard.Columns,
		},
		"timing": {
			"debounce":              c.Timing.Debounce.String(),
			"cycle_interval":        c.Timing.CycleInterval.String(),
			"poll_interval":         c.Timing.PollInterval.String(),
			"poll_attempts":         c.Timing.PollAttempts,
			"max_reports_per_cycle": c.Timing.MaxReportsPerCycle,
		},
		"transport": {
			"network":       c.Transport.Network,
			"address":       c.Transport.Address,
			"dial_attempts": c.Transport.DialAttempts,
			"dial_delay":    c.Transport.DialDelay.String(),
		},
		"log": {
			"path":  c.Log.Path,
			"debug": c.Log.Debug,
		},
	}
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	d := c.Dashboard
	if d.PanelWidth < tui.MinPanelWidth {
		return fmt.Errorf("%w: dashboard.panel_width %d is below %d", ErrInvalid, d.PanelWidth, tui.MinPanelWidth)
	}
	if d.Rows < 0 || d.Columns < 0 {
		return fmt.Errorf("%w: dashboard rows and columns must not be negative", ErrInvalid)
	}

	t := c.Timing
	if t.Debounce < 0 {
		return fmt.Errorf("%w: timing.debounce must not be negative", ErrInvalid)
	}
	if t.CycleInterval <= 0 || t.PollInterval <= 0 {
		return fmt.Errorf("%w: timing intervals must be positive", ErrInvalid)
	}
	if t.PollAttempts < 1 {
		return fmt.Errorf("%w: timing.poll_attempts must be at least 1", ErrInvalid)
	}
	if t.MaxReportsPerCycle < 0 {
		return fmt.Errorf("%w: timing.max_reports_per_cycle must not be negative", ErrInvalid)
	}

	tr := c.Transport
	switch tr.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return fmt.Errorf("%w: transport.network %q is not tcp or unix", ErrInvalid, tr.Network)
	}
	if tr.Address == "" {
		return fmt.Errorf("%w: transport.address is empty", ErrInvalid)
	}
	if tr.DialAttempts < 1 {
		return fmt.Errorf("%w: transport.dial_attempts must be at least 1", ErrInvalid)
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GRIDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Log.Path = os.ExpandEnv(cfg.Log.Path)
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()
	for section, values := range d.Settings() {
		for key, value := range values {
			v.SetDefault(section+"."+key, value)
		}
	}
}

// getUserConfigDir returns the XDG config directory for gridwatch.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gridwatch")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "gridwatch")
	}
	return filepath.Join(home, ".config", "gridwatch")
}

// findProjectConfig searches for .gridwatch.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".gridwatch.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Dashboard: DashboardConfig{
			PanelWidth: tui.DefaultPanelWidth,
		},
		Timing: TimingConfig{
			Debounce:           2 * time.Second,
			CycleInterval:      2 * time.Second,
			PollInterval:       50 * time.Millisecond,
			PollAttempts:       3,
			MaxReportsPerCycle: 1024,
		},
		Transport: TransportConfig{
			Network:      "tcp",
			Address:      "127.0.0.1:7411",
			DialAttempts: 10,
			DialDelay:    200 * time.Millisecond,
		},
		Log: LogConfig{},
	}
}
