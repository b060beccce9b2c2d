package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tuckwoor/garmin-analysis/internal/config"
	"github.com/tuckwoor/garmin-analysis/internal/garmin"
	"github.com/tuckwoor/garmin-analysis/internal/gather"
	"github.com/tuckwoor/garmin-analysis/internal/store"
	"github.com/tuckwoor/garmin-analysis/internal/util"
)

const (
	loginAttempts = 3
	loginDelay    = 5 * time.Second
)

func newFetchCmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch new daily metrics into the local cache",
		Long: `Fetch resumes after the newest cached heart-rate day, or discovers the
earliest day with data when the cache is empty, and fetches week-sized
windows up to today. With --date it fetches exactly one window starting on
that date.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				if _, err := util.ParseDate(date); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runFetch(ctx, date)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "fetch a single window starting on this date (YYYY-MM-DD)")
	return cmd
}

// runFetch logs in and runs one incremental fetch.
func (a *app) runFetch(ctx context.Context, startDate string) error {
	cfg := a.cfg
	if err := config.Validate(cfg.Garmin.Credentials()); err != nil {
		return fmt.Errorf("garmin credentials: %w", err)
	}

	loc, err := a.location()
	if err != nil {
		return err
	}

	client := garmin.NewHTTPClient(garmin.ClientOpts{
		BaseURL:     cfg.Garmin.BaseURL,
		AuthURL:     cfg.Garmin.AuthURL,
		DisplayName: cfg.Garmin.DisplayName,
		Timeout:     cfg.Garmin.Timeout,
	})
	// Rejected credentials are final; anything else is retried.
	var authErr error
	err = util.Retry(ctx, loginAttempts, loginDelay, func() error {
		err := client.Login(ctx, cfg.Garmin.Email, cfg.Garmin.Password)
		if garmin.IsAuth(err) {
			authErr = err
			return nil
		}
		if err != nil {
			a.log.Warn("login failed", "error", err)
		}
		return err
	})
	if err == nil {
		err = authErr
	}
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	journal, err := store.NewSQLiteJournal(cfg.Storage.JournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	limiter := util.NewSlidingWindowLimiter(cfg.Fetch.RateLimitPerMin, cfg.Fetch.RateLimitWindow)
	g := gather.NewMetricGatherer(
		client,
		store.NewJSONCache(cfg.Storage.DataDir),
		limiter,
		util.NewCalendar(loc, nil),
		gather.Options{
			StartDate:           startDate,
			WindowDays:          cfg.Fetch.WindowDays,
			DiscoveryDays:       cfg.Fetch.DiscoveryDays,
			RetryDelay:          cfg.Fetch.RetryDelay,
			BatchDelay:          cfg.Fetch.BatchDelay,
			MaxRateLimitRetries: cfg.Fetch.MaxRateLimitRetries,
			MaxAuthFailures:     cfg.Fetch.MaxAuthFailures,
			Journal:             journal,
		},
	)
	return g.Run(ctx)
}
