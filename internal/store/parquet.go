package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
)

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// DailyMetricRecord is the Parquet schema for the per-day metric table.
// Optional columns are nil when the metric was unavailable.
type DailyMetricRecord struct {
	Date             int64    `parquet:"date,timestamp(millisecond)"` // Unix ms, midnight UTC
	Weekday          string   `parquet:"weekday"`
	AvgStress        *float64 `parquet:"avg_stress,optional"`
	DeepSleepSeconds *float64 `parquet:"deep_sleep_seconds,optional"`
	DeepSleepChange  *float64 `parquet:"deep_sleep_change,optional"`
	BodyBatteryMin   *float64 `parquet:"body_battery_min,optional"`
	BodyBatteryMax   *float64 `parquet:"body_battery_max,optional"`
	BodyBatteryAvg   *float64 `parquet:"body_battery_avg,optional"`
}

// ---------------------------------------------------------------------------
// Daily table export
// ---------------------------------------------------------------------------

// WriteDailyMetrics writes rows to a Parquet file at path, sorted by date.
func WriteDailyMetrics(path string, rows []domain.DailyMetrics) error {
	records := make([]DailyMetricRecord, 0, len(rows))
	for _, m := range rows {
		records = append(records, DailyMetricRecord{
			Date:             m.Date.UnixMilli(),
			Weekday:          m.Date.Weekday().String(),
			AvgStress:        m.AvgStress,
			DeepSleepSeconds: m.DeepSleepSeconds,
			DeepSleepChange:  m.DeepSleepChange,
			BodyBatteryMin:   m.BodyBatteryMin,
			BodyBatteryMax:   m.BodyBatteryMax,
			BodyBatteryAvg:   m.BodyBatteryAvg,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})

	if err := writeParquetFile(path, records); err != nil {
		return fmt.Errorf("writing daily metrics to %s: %w", path, err)
	}
	return nil
}

// ReadDailyMetrics reads a table written by WriteDailyMetrics.
func ReadDailyMetrics(path string) ([]domain.DailyMetrics, error) {
	records, err := readParquetFile[DailyMetricRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading daily metrics from %s: %w", path, err)
	}

	rows := make([]domain.DailyMetrics, 0, len(records))
	for _, r := range records {
		rows = append(rows, domain.DailyMetrics{
			Date:             time.UnixMilli(r.Date).UTC(),
			AvgStress:        r.AvgStress,
			DeepSleepSeconds: r.DeepSleepSeconds,
			DeepSleepChange:  r.DeepSleepChange,
			BodyBatteryMin:   r.BodyBatteryMin,
			BodyBatteryMax:   r.BodyBatteryMax,
			BodyBatteryAvg:   r.BodyBatteryAvg,
		})
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
