package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/gridwatch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify gridwatch configuration.

Without arguments, prints the effective configuration as YAML.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/gridwatch/config.yaml
Project-specific overrides can be placed in .gridwatch.yaml
Environment variables such as GRIDWATCH_TIMING_DEBOUNCE override both.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		switch len(args) {
		case 0:
			return displayAllConfig(cmd.OutOrStdout(), cfg)
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		default:
			return setConfigKey(cmd.OutOrStdout(), cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values as YAML.
func displayAllConfig(w io.Writer, cfg *config.Config) error {
	out, err := yaml.Marshal(cfg.Settings())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(w io.Writer, cfg *config.Config, key, value string) error {
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	path := configPath
	if path == "" {
		path = config.GetUserConfigPath()
	}
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %s\n", key, value)
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	section, name, ok := strings.Cut(strings.ToLower(key), ".")
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	value, ok := cfg.Settings()[section][name]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return fmt.Sprint(value), nil
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	key = strings.ToLower(key)
	switch key {
	case "dashboard.panel_width":
		return setInt(&cfg.Dashboard.PanelWidth, key, value)
	case "dashboard.rows":
		return setInt(&cfg.Dashboard.Rows, key, value)
	case "dashboard.columns":
		return setInt(&cfg.Dashboard.Columns, key, value)
	case "timing.debounce":
		return setDuration(&cfg.Timing.Debounce, key, value)
	case "timing.cycle_interval":
		return setDuration(&cfg.Timing.CycleInterval, key, value)
	case "timing.poll_interval":
		return setDuration(&cfg.Timing.PollInterval, key, value)
	case "timing.poll_attempts":
		return setInt(&cfg.Timing.PollAttempts, key, value)
	case "timing.max_reports_per_cycle":
		return setInt(&cfg.Timing.MaxReportsPerCycle, key, value)
	case "transport.network":
		cfg.Transport.Network = value
	case "transport.address":
		cfg.Transport.Address = value
	case "transport.dial_attempts":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		cfg.Transport.DialAttempts = uint(n)
	case "transport.dial_delay":
		return setDuration(&cfg.Transport.DialDelay, key, value)
	case "log.path":
		cfg.Log.Path = value
	case "log.debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		cfg.Log.Debug = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	*dst = d
	return nil
}
