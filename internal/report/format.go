package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
)

// Formatter renders a Report.
type Formatter interface {
	Format(r *Report) (string, error)
	// Ext is the file extension used when the output is saved.
	Ext() string
}

// NewFormatter returns the formatter for "table" or "json".
func NewFormatter(name string) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "table":
		return &TableFormatter{}, nil
	case "json":
		return &JSONFormatter{Indent: true}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", name)
	}
}

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

// TableFormatter renders the weekday summary as an ASCII table.
type TableFormatter struct{}

// Ext returns ".txt".
func (f *TableFormatter) Ext() string { return ".txt" }

// Format renders r as a table followed by the best-day verdict.
func (f *TableFormatter) Format(r *Report) (string, error) {
	if r == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Weekday averages, %s", dateRange(r))
	t.AppendHeader(table.Row{"Day", "Avg Stress", "Deep Sleep (s)", "Sleep Change (s)", "Body Battery", "Score"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	for _, w := range r.Weekdays {
		day := w.Weekday.String()
		if r.HasBestDay && w.Weekday == r.BestDay {
			day += " *"
		}
		t.AppendRow(table.Row{
			day,
			cell(w.AvgStress, 1),
			cell(w.AvgDeepSleep, 0),
			cell(w.AvgSleepChange, 0),
			cell(w.AvgBodyBattery, 1),
			cell(w.Score, 3),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "lower is better"})

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteString("\n")
	if !r.AnalysisStart.IsZero() {
		fmt.Fprintf(&b, "Analysis start date: %s\n", r.AnalysisStart.Format(domain.DateLayout))
	}
	b.WriteString(verdict(r))
	b.WriteString("\n")
	return b.String(), nil
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

// JSONFormatter renders the report as JSON.
type JSONFormatter struct {
	Indent bool
}

// Ext returns ".json".
func (f *JSONFormatter) Ext() string { return ".json" }

type jsonWeekday struct {
	Day            string   `json:"day"`
	AvgStress      *float64 `json:"avg_stress"`
	AvgDeepSleep   *float64 `json:"avg_deep_sleep_seconds"`
	AvgSleepChange *float64 `json:"avg_sleep_change_seconds"`
	AvgBodyBattery *float64 `json:"avg_body_battery"`
	Score          *float64 `json:"score"`
}

type jsonReport struct {
	AnalysisStart string        `json:"analysis_start,omitempty"`
	RangeStart    string        `json:"range_start,omitempty"`
	RangeEnd      string        `json:"range_end,omitempty"`
	Weekdays      []jsonWeekday `json:"weekdays"`
	BestDay       string        `json:"best_day,omitempty"`
	Days          int           `json:"days"`
}

// Format renders r as JSON.
func (f *JSONFormatter) Format(r *Report) (string, error) {
	if r == nil {
		return "", nil
	}

	out := jsonReport{
		AnalysisStart: formatDate(r.AnalysisStart),
		RangeStart:    formatDate(r.RangeStart),
		RangeEnd:      formatDate(r.RangeEnd),
		Weekdays:      make([]jsonWeekday, 0, len(r.Weekdays)),
		Days:          len(r.Daily),
	}
	for _, w := range r.Weekdays {
		out.Weekdays = append(out.Weekdays, jsonWeekday{
			Day:            w.Weekday.String(),
			AvgStress:      w.AvgStress,
			AvgDeepSleep:   w.AvgDeepSleep,
			AvgSleepChange: w.AvgSleepChange,
			AvgBodyBattery: w.AvgBodyBattery,
			Score:          w.Score,
		})
	}
	if r.HasBestDay {
		out.BestDay = r.BestDay.String()
	}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func verdict(r *Report) string {
	if !r.HasBestDay {
		return "Not enough data to calculate the combined score."
	}
	return fmt.Sprintf("The best day for heavy exercise is: %s", r.BestDay)
}

func dateRange(r *Report) string {
	if r.RangeStart.IsZero() {
		return "no data"
	}
	return fmt.Sprintf("%s to %s", formatDate(r.RangeStart), formatDate(r.RangeEnd))
}

func cell(v *float64, decimals int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", decimals, *v)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
