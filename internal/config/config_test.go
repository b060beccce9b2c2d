package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "garmin.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GARMIN_DATA_DIR", "GARMIN_JOURNAL_PATH", "GARMIN_EMAIL", "GARMIN_PASSWORD",
		"GARMIN_BASE_URL", "GARMIN_AUTH_URL", "GARMIN_DISPLAY_NAME", "LOG_LEVEL",
		"GARMIN_MAX_AUTH_FAILURES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/garmin/data"
  journal_path: "/tmp/garmin/journal.db"
garmin:
  email: "runner@example.com"
  password: "hunter2"
  base_url: "https://connect.example.com"
  display_name: "runner"
  timeout: 15s
logging:
  level: "debug"
  format: "json"
fetch:
  rate_limit_per_min: 20
  rate_limit_window: 90s
  retry_delay: 2m
  batch_delay: 30s
  window_days: 5
  discovery_days: 180
  max_auth_failures: 0
report:
  format: "json"
  out_dir: "reports"
schedule:
  at: "05:45"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/garmin/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/garmin/data")
	}
	if cfg.Storage.JournalPath != "/tmp/garmin/journal.db" {
		t.Errorf("Storage.JournalPath = %q, want %q", cfg.Storage.JournalPath, "/tmp/garmin/journal.db")
	}

	// -- Garmin --
	if cfg.Garmin.Email != "runner@example.com" {
		t.Errorf("Garmin.Email = %q", cfg.Garmin.Email)
	}
	if cfg.Garmin.BaseURL != "https://connect.example.com" {
		t.Errorf("Garmin.BaseURL = %q", cfg.Garmin.BaseURL)
	}
	if cfg.Garmin.Timeout != 15*time.Second {
		t.Errorf("Garmin.Timeout = %v, want 15s", cfg.Garmin.Timeout)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}

	// -- Fetch --
	if cfg.Fetch.RateLimitPerMin != 20 {
		t.Errorf("Fetch.RateLimitPerMin = %d, want 20", cfg.Fetch.RateLimitPerMin)
	}
	if cfg.Fetch.RateLimitWindow != 90*time.Second {
		t.Errorf("Fetch.RateLimitWindow = %v, want 90s", cfg.Fetch.RateLimitWindow)
	}
	if cfg.Fetch.RetryDelay != 2*time.Minute {
		t.Errorf("Fetch.RetryDelay = %v, want 2m", cfg.Fetch.RetryDelay)
	}
	if cfg.Fetch.WindowDays != 5 || cfg.Fetch.DiscoveryDays != 180 {
		t.Errorf("Fetch window/discovery = %d/%d, want 5/180", cfg.Fetch.WindowDays, cfg.Fetch.DiscoveryDays)
	}
	if cfg.Fetch.MaxAuthFailures != 0 {
		t.Errorf("Fetch.MaxAuthFailures = %d, want 0", cfg.Fetch.MaxAuthFailures)
	}

	// -- Report / Schedule --
	if cfg.Report.Format != "json" || cfg.Report.OutDir != "reports" {
		t.Errorf("Report = %+v", cfg.Report)
	}
	if cfg.Schedule.At != "05:45" {
		t.Errorf("Schedule.At = %q, want 05:45", cfg.Schedule.At)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "garmin_data" {
		t.Errorf("Storage.DataDir = %q, want garmin_data", cfg.Storage.DataDir)
	}
	if cfg.Storage.JournalPath != filepath.Join("garmin_data", "journal.db") {
		t.Errorf("Storage.JournalPath = %q", cfg.Storage.JournalPath)
	}
	if cfg.Fetch.RateLimitPerMin != 30 || cfg.Fetch.RateLimitWindow != time.Minute {
		t.Errorf("rate limit defaults = %d per %v, want 30 per 1m", cfg.Fetch.RateLimitPerMin, cfg.Fetch.RateLimitWindow)
	}
	if cfg.Fetch.RetryDelay != time.Minute || cfg.Fetch.BatchDelay != time.Minute {
		t.Errorf("delay defaults = %v/%v, want 1m/1m", cfg.Fetch.RetryDelay, cfg.Fetch.BatchDelay)
	}
	if cfg.Fetch.WindowDays != 7 || cfg.Fetch.DiscoveryDays != 365 {
		t.Errorf("window defaults = %d/%d, want 7/365", cfg.Fetch.WindowDays, cfg.Fetch.DiscoveryDays)
	}
	if cfg.Fetch.MaxAuthFailures != 3 {
		t.Errorf("Fetch.MaxAuthFailures = %d, want 3", cfg.Fetch.MaxAuthFailures)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
garmin:
  email: "yaml@example.com"
  password: "yaml-secret"
storage:
  data_dir: "/from-file/data"
`)

	t.Setenv("GARMIN_EMAIL", "env@example.com")
	t.Setenv("GARMIN_DATA_DIR", "/env/data")
	t.Setenv("GARMIN_MAX_AUTH_FAILURES", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Garmin.Email != "env@example.com" {
		t.Errorf("Garmin.Email = %q, want %q (env override)", cfg.Garmin.Email, "env@example.com")
	}
	// password should remain from YAML since no env override was set.
	if cfg.Garmin.Password != "yaml-secret" {
		t.Errorf("Garmin.Password = %q, want %q (from YAML)", cfg.Garmin.Password, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Fetch.MaxAuthFailures != 5 {
		t.Errorf("Fetch.MaxAuthFailures = %d, want 5 (env override)", cfg.Fetch.MaxAuthFailures)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)

	cases := map[string]string{
		"zero quota":   "fetch:\n  rate_limit_per_min: 0\n",
		"bad level":    "logging:\n  level: loud\n",
		"bad schedule": "schedule:\n  at: \"25:99\"\n",
		"bad base url": "garmin:\n  base_url: \"not a url\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Error("Load() should reject the configuration")
			}
		})
	}
}

func TestCredentialsValidation(t *testing.T) {
	if err := Validate(Garmin{}.Credentials()); err == nil {
		t.Error("empty credentials should fail validation")
	}
	good := Garmin{Email: "runner@example.com", Password: "pw"}.Credentials()
	if err := Validate(good); err != nil {
		t.Errorf("valid credentials rejected: %v", err)
	}
}
