// Package domain defines the core types shared across the fetcher, the local
// cache and the reporter.
package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for cache keys, flags and logs.
const DateLayout = "2006-01-02"

// DataType identifies one vendor metric and doubles as its cache directory.
type DataType string

const (
	DataTypeSleep             DataType = "sleep"
	DataTypeStress            DataType = "stress"
	DataTypeHeartRate         DataType = "heart_rate"
	DataTypeHRV               DataType = "hrv"
	DataTypeTrainingReadiness DataType = "training_readiness"
	DataTypeRestingHeartRate  DataType = "resting_heart_rate"
	DataTypeBodyBattery       DataType = "body_battery"
)

// DailyTypes lists the per-day metrics in the order they are fetched.
var DailyTypes = []DataType{
	DataTypeSleep,
	DataTypeStress,
	DataTypeHeartRate,
	DataTypeHRV,
	DataTypeTrainingReadiness,
	DataTypeRestingHeartRate,
}

// ReferenceType is the metric whose cache determines where a resumed run
// starts.
const ReferenceType = DataTypeHeartRate

// FetchWindow is an inclusive range of calendar dates fetched as one batch.
type FetchWindow struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered by the window.
func (w FetchWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Key returns the cache key used for range metrics: "<start>_<end>".
func (w FetchWindow) Key() string {
	return w.Start.Format(DateLayout) + "_" + w.End.Format(DateLayout)
}

func (w FetchWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format(DateLayout), w.End.Format(DateLayout))
}

// FetchStatus is the outcome of a single fetch attempt.
type FetchStatus string

const (
	FetchStored  FetchStatus = "stored"
	FetchSkipped FetchStatus = "skipped"
	FetchFailed  FetchStatus = "failed"
)

// RunMode describes how a fetch run picked its start date.
type RunMode string

const (
	RunModeSingleWindow RunMode = "single-window"
	RunModeIncremental  RunMode = "incremental"
)

// RunRecord is one fetch run as recorded in the journal.
type RunRecord struct {
	ID         string
	Mode       RunMode
	StartDate  string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
}

// FetchRecord is one fetch outcome as recorded in the journal.
type FetchRecord struct {
	RunID     string
	DataType  DataType
	Key       string
	Status    FetchStatus
	ErrorKind string
	Message   string
	Attempts  int
	FetchedAt time.Time
}

// DailyMetrics is one row of the per-day table built by the reporter. A nil
// field means the metric was not available for that date.
type DailyMetrics struct {
	Date             time.Time
	AvgStress        *float64
	DeepSleepSeconds *float64
	DeepSleepChange  *float64
	BodyBatteryMin   *float64
	BodyBatteryMax   *float64
	BodyBatteryAvg   *float64
}

// Weekday returns the weekday of the row's date.
func (m DailyMetrics) Weekday() time.Weekday {
	return m.Date.Weekday()
}
