package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
	"github.com/tuckwoor/garmin-analysis/internal/store"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		limit  int
		failed bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent fetch runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := store.NewSQLiteJournal(a.cfg.Storage.JournalPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			runs, err := journal.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			renderRuns(w, runs)

			if !failed {
				return nil
			}
			fetches, err := journal.ListFetches(cmd.Context(), store.FetchQuery{
				Status: domain.FetchFailed,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(w)
			renderFailures(w, fetches)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of rows to show")
	cmd.Flags().BoolVar(&failed, "failed", false, "also list recent failed fetches")
	return cmd
}

func renderRuns(w io.Writer, runs []domain.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No fetch runs recorded.")
		return
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Fetch runs")
	t.AppendHeader(table.Row{"Run", "Mode", "Start Date", "Started", "Duration", "Status"})
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			shortID(r.ID),
			r.Mode,
			r.StartDate,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			r.Status,
		})
	}
	fmt.Fprintln(w, t.Render())
}

func renderFailures(w io.Writer, recs []domain.FetchRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No failed fetches.")
		return
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Failed fetches")
	t.AppendHeader(table.Row{"Run", "Type", "Key", "Kind", "Attempts", "Message"})
	for _, r := range recs {
		t.AppendRow(table.Row{
			shortID(r.RunID),
			r.DataType,
			r.Key,
			r.ErrorKind,
			r.Attempts,
			truncate(r.Message, 60),
		})
	}
	fmt.Fprintln(w, t.Render())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
