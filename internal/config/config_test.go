package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Dashboard.PanelWidth != 50 {
		t.Errorf("expected default panel width 50, got %d", cfg.Dashboard.PanelWidth)
	}

	if cfg.Dashboard.Rows != 0 || cfg.Dashboard.Columns != 0 {
		t.Errorf("expected auto-detected geometry, got %dx%d", cfg.Dashboard.Columns, cfg.Dashboard.Rows)
	}

	if cfg.Timing.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %v", cfg.Timing.Debounce)
	}

	if cfg.Timing.CycleInterval != 2*time.Second {
		t.Errorf("expected cycle interval 2s, got %v", cfg.Timing.CycleInterval)
	}

	if cfg.Timing.PollInterval != 50*time.Millisecond {
		t.Errorf("expected poll interval 50ms, got %v", cfg.Timing.PollInterval)
	}

	if cfg.Timing.PollAttempts != 3 {
		t.Errorf("expected 3 poll attempts, got %d", cfg.Timing.PollAttempts)
	}

	if cfg.Transport.Network != "tcp" {
		t.Errorf("expected network tcp, got %q", cfg.Transport.Network)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	writeConfig(t, configPath, `
dashboard:
  panel_width: 40
  rows: 30
  columns: 120
timing:
  debounce: 500ms
  cycle_interval: 1s
  poll_attempts: 5
transport:
  address: /tmp/gridwatch.sock
  network: unix
log:
  path: ${GRIDWATCH_TEST_DIR}/gridwatch.log
`)
	t.Setenv("GRIDWATCH_TEST_DIR", "/var/tmp")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Dashboard.PanelWidth != 40 {
		t.Errorf("expected panel width 40, got %d", cfg.Dashboard.PanelWidth)
	}

	if cfg.Dashboard.Rows != 30 || cfg.Dashboard.Columns != 120 {
		t.Errorf("expected 120x30, got %dx%d", cfg.Dashboard.Columns, cfg.Dashboard.Rows)
	}

	if cfg.Timing.Debounce != 500*time.Millisecond {
		t.Errorf("expected debounce 500ms, got %v", cfg.Timing.Debounce)
	}

	if cfg.Timing.CycleInterval != time.Second {
		t.Errorf("expected cycle interval 1s, got %v", cfg.Timing.CycleInterval)
	}

	if cfg.Timing.PollAttempts != 5 {
		t.Errorf("expected 5 poll attempts, got %d", cfg.Timing.PollAttempts)
	}

	// Unset keys keep their defaults.
	if cfg.Timing.PollInterval != 50*time.Millisecond {
		t.Errorf("expected default poll interval, got %v", cfg.Timing.PollInterval)
	}

	if cfg.Transport.Network != "unix" || cfg.Transport.Address != "/tmp/gridwatch.sock" {
		t.Errorf("unexpected transport %+v", cfg.Transport)
	}

	if cfg.Log.Path != "/var/tmp/gridwatch.log" {
		t.Errorf("expected expanded log path, got %q", cfg.Log.Path)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "timing:\n  poll_attempts: 5\n")

	t.Setenv("GRIDWATCH_TIMING_POLL_ATTEMPTS", "9")
	t.Setenv("GRIDWATCH_TRANSPORT_ADDRESS", "10.0.0.1:9000")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Timing.PollAttempts != 9 {
		t.Errorf("expected env poll attempts 9, got %d", cfg.Timing.PollAttempts)
	}
	if cfg.Transport.Address != "10.0.0.1:9000" {
		t.Errorf("expected env address, got %q", cfg.Transport.Address)
	}
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	userDir := filepath.Join(xdg, "gridwatch")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, filepath.Join(userDir, "config.yaml"), `
dashboard:
  panel_width: 60
timing:
  poll_attempts: 4
`)

	project := t.TempDir()
	nested := filepath.Join(project, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, filepath.Join(project, ".gridwatch.yaml"), "dashboard:\n  panel_width: 30\n")
	chdir(t, nested)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dashboard.PanelWidth != 30 {
		t.Errorf("expected project panel width 30, got %d", cfg.Dashboard.PanelWidth)
	}
	if cfg.Timing.PollAttempts != 4 {
		t.Errorf("expected user poll attempts 4, got %d", cfg.Timing.PollAttempts)
	}
}

func TestLoad_NoFiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Dashboard.PanelWidth != Default().Dashboard.PanelWidth {
		t.Errorf("expected default panel width, got %d", cfg.Dashboard.PanelWidth)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := "/custom/config/gridwatch"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"narrow panel", func(c *Config) { c.Dashboard.PanelWidth = 20 }, false},
		{"negative rows", func(c *Config) { c.Dashboard.Rows = -1 }, false},
		{"negative debounce", func(c *Config) { c.Timing.Debounce = -time.Second }, false},
		{"zero debounce", func(c *Config) { c.Timing.Debounce = 0 }, true},
		{"zero cycle", func(c *Config) { c.Timing.CycleInterval = 0 }, false},
		{"zero poll attempts", func(c *Config) { c.Timing.PollAttempts = 0 }, false},
		{"uncapped", func(c *Config) { c.Timing.MaxReportsPerCycle = 0 }, true},
		{"udp", func(c *Config) { c.Transport.Network = "udp" }, false},
		{"empty address", func(c *Config) { c.Transport.Address = "" }, false},
		{"no dial attempts", func(c *Config) { c.Transport.DialAttempts = 0 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Dashboard.PanelWidth = 44
	cfg.Timing.CycleInterval = 3 * time.Second
	cfg.Transport.DialAttempts = 2

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("loaded %+v, want %+v", loaded, cfg)
	}
}

func TestDashboardLayout(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "not-a-tty")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	fd := int(f.Fd())

	t.Run("explicit geometry", func(t *testing.T) {
		d := DashboardConfig{PanelWidth: 40, Rows: 24, Columns: 80}
		l, err := d.Layout(fd)
		if err != nil {
			t.Fatalf("Layout: %v", err)
		}
		if l.Columns != 80 || l.Rows != 24 || l.PanelWidth != 40 {
			t.Errorf("Layout() = %+v", l)
		}
	})

	t.Run("falls back when not a terminal", func(t *testing.T) {
		d := DashboardConfig{PanelWidth: 50}
		l, err := d.Layout(fd)
		if err != nil {
			t.Fatalf("Layout: %v", err)
		}
		if l.Columns != FallbackColumns || l.Rows != FallbackRows {
			t.Errorf("Layout() = %dx%d, want %dx%d", l.Columns, l.Rows, FallbackColumns, FallbackRows)
		}
	})

	t.Run("panel wider than screen", func(t *testing.T) {
		d := DashboardConfig{PanelWidth: 100, Rows: 24, Columns: 80}
		if _, err := d.Layout(fd); err == nil {
			t.Error("expected layout error")
		}
	})
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "dashboard:\n  panel_width: 40\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 16)
	errs := make(chan error, 16)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, path, nil, func(cfg *Config, err error) {
			if err != nil {
				select {
				case errs <- err:
				default:
				}
				return
			}
			select {
			case changes <- cfg:
			default:
			}
		})
	}()

	// The watcher registers asynchronously; keep rewriting until it notices.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	var got *Config
	for got == nil {
		select {
		case cfg := <-changes:
			if cfg.Dashboard.PanelWidth == 33 {
				got = cfg
			}
		case <-tick.C:
			writeConfig(t, path, "dashboard:\n  panel_width: 33\n")
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	// An invalid file is reported instead of applied.
	writeConfig(t, path, "dashboard:\n  panel_width: 5\n")
	// Partial writes may surface as parse errors first; wait for the
	// validation failure.
	timeout := time.After(5 * time.Second)
	for invalid := false; !invalid; {
		select {
		case err := <-errs:
			invalid = errors.Is(err, ErrInvalid)
		case <-timeout:
			t.Fatal("no error reported for invalid config")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing", "config.yaml"), nil, func(*Config, error) {})
	if err == nil {
		t.Error("expected error watching a missing directory")
	}
}

func TestWatch_ReloadKeepsUserLayer(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	userDir := filepath.Join(xdg, "gridwatch")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, filepath.Join(userDir, "config.yaml"), "transport:\n  dial_attempts: 42\n")

	project := t.TempDir()
	chdir(t, project)
	projectPath := filepath.Join(project, ".gridwatch.yaml")
	writeConfig(t, projectPath, "dashboard:\n  panel_width: 40\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 16)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, projectPath, Load, func(cfg *Config, err error) {
			if err != nil {
				return
			}
			select {
			case changes <- cfg:
			default:
			}
		})
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	var got *Config
	for got == nil {
		select {
		case cfg := <-changes:
			if cfg.Dashboard.PanelWidth == 33 {
				got = cfg
			}
		case <-tick.C:
			writeConfig(t, projectPath, "dashboard:\n  panel_width: 33\n")
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	if got.Transport.DialAttempts != 42 {
		t.Errorf("DialAttempts = %d after project reload, want user setting 42", got.Transport.DialAttempts)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
