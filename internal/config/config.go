package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the garmin fetcher and reporter.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Garmin   Garmin         `yaml:"garmin"`
	Logging  Logging        `yaml:"logging"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Report   ReportConfig   `yaml:"report"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir     string `yaml:"data_dir" validate:"required"`
	JournalPath string `yaml:"journal_path"`
}

// Garmin holds credentials and endpoints for the Garmin Connect API.
type Garmin struct {
	Email       string        `yaml:"email"`
	Password    string        `yaml:"password"`
	BaseURL     string        `yaml:"base_url" validate:"required,url"`
	AuthURL     string        `yaml:"auth_url" validate:"omitempty,url"`
	DisplayName string        `yaml:"display_name"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Credentials is the subset of Garmin needed to log in; it is validated only
// by commands that talk to the vendor.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Credentials returns the login credentials.
func (g Garmin) Credentials() Credentials {
	return Credentials{Email: g.Email, Password: g.Password}
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	File   string `yaml:"file"`
}

// FetchConfig controls the incremental fetch loop.
type FetchConfig struct {
	RateLimitPerMin     int           `yaml:"rate_limit_per_min" validate:"gte=1"`
	RateLimitWindow     time.Duration `yaml:"rate_limit_window" validate:"gt=0"`
	RetryDelay          time.Duration `yaml:"retry_delay" validate:"gte=0"`
	BatchDelay          time.Duration `yaml:"batch_delay" validate:"gte=0"`
	WindowDays          int           `yaml:"window_days" validate:"gte=1"`
	DiscoveryDays       int           `yaml:"discovery_days" validate:"gte=1"`
	MaxRateLimitRetries int           `yaml:"max_rate_limit_retries" validate:"gte=0"`
	MaxAuthFailures     int           `yaml:"max_auth_failures" validate:"gte=0"`
	Timezone            string        `yaml:"timezone"`
}

// ReportConfig controls the weekday report.
type ReportConfig struct {
	Format string `yaml:"format" validate:"omitempty,oneof=table json"`
	OutDir string `yaml:"out_dir"`
}

// ScheduleConfig controls daemon mode.
type ScheduleConfig struct {
	At string `yaml:"at" validate:"omitempty,datetime=15:04"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir: "garmin_data",
		},
		Garmin: Garmin{
			BaseURL: "https://connectapi.garmin.com",
			Timeout: 30 * time.Second,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Fetch: FetchConfig{
			RateLimitPerMin: 30,
			RateLimitWindow: time.Minute,
			RetryDelay:      time.Minute,
			BatchDelay:      time.Minute,
			WindowDays:      7,
			DiscoveryDays:   365,
			MaxAuthFailures: 3,
		},
		Report: ReportConfig{
			Format: "table",
		},
		Schedule: ScheduleConfig{
			At: "06:00",
		},
	}
}

// Load reads the YAML configuration file at the given path over the defaults,
// loads a .env file from the working directory if one exists, applies
// environment variable overrides and validates the result. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.JournalPath == "" {
		cfg.Storage.JournalPath = filepath.Join(cfg.Storage.DataDir, "journal.db")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct-tag constraints on any configuration value.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GARMIN_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("GARMIN_JOURNAL_PATH"); v != "" {
		cfg.Storage.JournalPath = v
	}

	if v := os.Getenv("GARMIN_EMAIL"); v != "" {
		cfg.Garmin.Email = v
	}
	if v := os.Getenv("GARMIN_PASSWORD"); v != "" {
		cfg.Garmin.Password = v
	}
	if v := os.Getenv("GARMIN_BASE_URL"); v != "" {
		cfg.Garmin.BaseURL = v
	}
	if v := os.Getenv("GARMIN_AUTH_URL"); v != "" {
		cfg.Garmin.AuthURL = v
	}
	if v := os.Getenv("GARMIN_DISPLAY_NAME"); v != "" {
		cfg.Garmin.DisplayName = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("GARMIN_MAX_AUTH_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid GARMIN_MAX_AUTH_FAILURES: %w", err)
		}
		cfg.Fetch.MaxAuthFailures = n
	}
	return nil
}
