// Package cli implements the garmin command-line interface.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tuckwoor/garmin-analysis/internal/config"
	"github.com/tuckwoor/garmin-analysis/internal/util"
)

// DefaultConfigPath is used when neither --config nor GARMIN_CONFIG is set.
const DefaultConfigPath = "config/garmin.yaml"

// Version is printed by the version command. It is set by main.
var Version = "dev"

// app carries state shared by all subcommands of one invocation.
type app struct {
	cfgFile  string
	logLevel string

	cfg     *config.Config
	log     *slog.Logger
	logFile *os.File
}

// Execute builds the command tree and runs it with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd returns the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "garmin",
		Short: "Fetch Garmin wellness metrics and find the best day for hard training",
		Long: `garmin incrementally mirrors daily Garmin Connect wellness data
(sleep, stress, heart rate, HRV, training readiness, body battery) into a
local JSON cache and reports weekday averages from it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default $GARMIN_CONFIG or "+DefaultConfigPath+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newFetchCmd(a),
		newReportCmd(a),
		newScheduleCmd(a),
		newStatusCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return nil
			},
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "garmin %s\n", Version)
			},
		},
	)
	return root
}

// init loads configuration and installs the default logger.
func (a *app) init(cmd *cobra.Command) error {
	path := a.cfgFile
	if path == "" {
		path = os.Getenv("GARMIN_CONFIG")
	}
	if path == "" {
		path = DefaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	var w io.Writer = cmd.ErrOrStderr()
	if cfg.Logging.File != "" {
		name := logFileName(cfg.Logging.File, time.Now())
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		a.logFile = f
		w = io.MultiWriter(w, f)
	}

	a.log = util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, w)
	util.SetDefault(a.log)
	a.log.Debug("config loaded", "path", path, "data_dir", cfg.Storage.DataDir)
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

// logFileName expands a "{date}" placeholder to the current date.
func logFileName(pattern string, now time.Time) string {
	return strings.ReplaceAll(pattern, "{date}", now.Format("2006-01-02"))
}

// location resolves the configured time zone, defaulting to the host's.
func (a *app) location() (*time.Location, error) {
	if a.cfg.Fetch.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.cfg.Fetch.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", a.cfg.Fetch.Timezone, err)
	}
	return loc, nil
}
