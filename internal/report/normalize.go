// Package report turns cached payloads into a weekday summary of stress,
// deep sleep and body battery, and picks the best day for heavy exercise.
package report

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
)

// StressRecord is one day's average stress level.
type StressRecord struct {
	Date      time.Time
	AvgStress float64
}

// SleepRecord is one night's deep sleep, keyed by calendar date.
type SleepRecord struct {
	Date             time.Time
	DeepSleepSeconds float64
}

// BodyBatteryDay summarises one day of body battery readings.
type BodyBatteryDay struct {
	Date time.Time
	Min  float64
	Max  float64
	Avg  float64
}

// ---------------------------------------------------------------------------
// Normalisers
// ---------------------------------------------------------------------------

// NormalizeStress extracts stress records from a payload. It accepts a single
// object, a list of objects, or nested lists; entries without a calendar date
// or a numeric average are dropped.
func NormalizeStress(raw json.RawMessage) []StressRecord {
	var out []StressRecord
	for _, obj := range objects(raw) {
		date, ok := dateField(obj, "calendarDate")
		if !ok {
			continue
		}
		level, ok := number(obj["avgStressLevel"])
		if !ok {
			continue
		}
		out = append(out, StressRecord{Date: date, AvgStress: level})
	}
	return out
}

// NormalizeSleep extracts the deep sleep duration from a sleep payload's
// dailySleepDTO.
func NormalizeSleep(raw json.RawMessage) []SleepRecord {
	var out []SleepRecord
	for _, obj := range objects(raw) {
		dto, ok := obj["dailySleepDTO"].(map[string]any)
		if !ok {
			continue
		}
		date, ok := dateField(dto, "calendarDate")
		if !ok {
			continue
		}
		deep, ok := number(dto["deepSleepSeconds"])
		if !ok {
			continue
		}
		out = append(out, SleepRecord{Date: date, DeepSleepSeconds: deep})
	}
	return out
}

// NormalizeBodyBattery reduces each day's [timestamp, value] readings to the
// min, max and mean of its non-null values. Days without readings are
// dropped.
func NormalizeBodyBattery(raw json.RawMessage) []BodyBatteryDay {
	var out []BodyBatteryDay
	for _, obj := range objects(raw) {
		date, ok := dateField(obj, "date")
		if !ok {
			continue
		}
		values := bodyBatteryValues(obj)
		if len(values) == 0 {
			continue
		}

		day := BodyBatteryDay{Date: date, Min: values[0], Max: values[0]}
		var sum float64
		for _, v := range values {
			day.Min = min(day.Min, v)
			day.Max = max(day.Max, v)
			sum += v
		}
		day.Avg = sum / float64(len(values))
		out = append(out, day)
	}
	return out
}

// ---------------------------------------------------------------------------
// Presence checks
// ---------------------------------------------------------------------------

var sleepDurationFields = []string{"sleepTimeSeconds", "deepSleepSeconds", "lightSleepSeconds", "remSleepSeconds"}

// HasMeaningfulData reports whether a cached payload of the given type holds
// real measurements rather than placeholders.
func HasMeaningfulData(dataType domain.DataType, raw json.RawMessage) bool {
	switch dataType {
	case domain.DataTypeSleep:
		for _, obj := range objects(raw) {
			dto, ok := obj["dailySleepDTO"].(map[string]any)
			if !ok {
				continue
			}
			for _, f := range sleepDurationFields {
				if v, ok := number(dto[f]); ok && v != 0 {
					return true
				}
			}
		}
	case domain.DataTypeStress:
		for _, obj := range objects(raw) {
			if v, ok := number(obj["avgStressLevel"]); ok && v != 0 {
				return true
			}
		}
	case domain.DataTypeBodyBattery:
		for _, obj := range objects(raw) {
			if len(bodyBatteryValues(obj)) > 0 {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Decoding helpers
// ---------------------------------------------------------------------------

// objects decodes raw and returns every JSON object found at the top level
// or inside (possibly nested) top-level lists.
func objects(raw json.RawMessage) []map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var out []map[string]any
	collectObjects(v, &out)
	return out
}

func collectObjects(v any, out *[]map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		*out = append(*out, t)
	case []any:
		for _, item := range t {
			collectObjects(item, out)
		}
	}
}

func bodyBatteryValues(obj map[string]any) []float64 {
	readings, ok := obj["bodyBatteryValuesArray"].([]any)
	if !ok {
		return nil
	}
	var values []float64
	for _, r := range readings {
		pair, ok := r.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		if v, ok := number(pair[1]); ok {
			values = append(values, v)
		}
	}
	return values
}

// number coerces a decoded JSON value to float64. Numeric strings are
// accepted; null and anything else are not.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// dateField parses a YYYY-MM-DD field, ignoring any time-of-day suffix.
func dateField(obj map[string]any, key string) (time.Time, bool) {
	s, ok := obj[key].(string)
	if !ok || len(s) < len(domain.DateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(domain.DateLayout, s[:len(domain.DateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
