package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tuckwoor/garmin-analysis/internal/report"
	"github.com/tuckwoor/garmin-analysis/internal/store"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		format  string
		outDir  string
		parquet bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise cached metrics by weekday and pick the best training day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("format") {
				format = a.cfg.Report.Format
			}
			if !cmd.Flags().Changed("out-dir") {
				outDir = a.cfg.Report.OutDir
			}

			f, err := report.NewFormatter(format)
			if err != nil {
				return err
			}

			ds, err := report.Load(store.NewJSONCache(a.cfg.Storage.DataDir))
			if err != nil {
				return err
			}
			r := report.Analyze(ds)

			out, err := f.Format(r)
			if err != nil {
				return fmt.Errorf("formatting report: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), out)

			if outDir == "" {
				if parquet {
					return fmt.Errorf("--parquet requires --out-dir")
				}
				return nil
			}

			path, err := report.SaveFile(filepath.Join(outDir, "report"+f.Ext()), []byte(out))
			if err != nil {
				return fmt.Errorf("saving report: %w", err)
			}
			a.log.Info("report saved", "path", path)

			if parquet {
				path, err := report.SaveDailyParquet(filepath.Join(outDir, "daily_metrics.parquet"), r.Daily)
				if err != nil {
					return fmt.Errorf("exporting daily metrics: %w", err)
				}
				a.log.Info("daily metrics exported", "path", path, "rows", len(r.Daily))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "also save the report (and parquet export) here")
	cmd.Flags().BoolVar(&parquet, "parquet", false, "export the per-day table as parquet into --out-dir")
	return cmd
}
