package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tuckwoor/garmin-analysis/internal/config"
	"github.com/tuckwoor/garmin-analysis/internal/scheduler"
)

func newScheduleCmd(a *app) *cobra.Command {
	var (
		at  string
		now bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the incremental fetch once a day until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("at") {
				at = a.cfg.Schedule.At
			}
			if err := config.Validate(config.ScheduleConfig{At: at}); err != nil {
				return err
			}
			if err := config.Validate(a.cfg.Garmin.Credentials()); err != nil {
				return err
			}
			loc, err := a.location()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := scheduler.New(loc, at, func(ctx context.Context) error {
				return a.runFetch(ctx, "")
			})
			if now {
				s.RunOnce(ctx)
			}
			return s.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&at, "at", "06:00", "local time of the daily run (HH:MM)")
	cmd.Flags().BoolVar(&now, "now", false, "also run once immediately")
	return cmd
}
