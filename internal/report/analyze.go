package report

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
	"github.com/tuckwoor/garmin-analysis/internal/store"
)

// Week lists weekdays in report order, Monday first.
var Week = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// reportTypes are the cached metrics the report reads.
var reportTypes = []domain.DataType{
	domain.DataTypeStress,
	domain.DataTypeSleep,
	domain.DataTypeBodyBattery,
}

// Dataset holds the normalised records loaded from the cache.
type Dataset struct {
	Stress      []StressRecord
	Sleep       []SleepRecord
	BodyBattery []BodyBatteryDay

	// Earliest is the first cache key per type whose payload carries real
	// measurements.
	Earliest map[domain.DataType]time.Time

	// AnalysisStart is the latest of the Earliest dates; records before it
	// have been dropped. Zero when no type has data.
	AnalysisStart time.Time
}

// Load reads and normalises every cached stress, sleep and body battery
// payload. Unreadable entries are logged and skipped.
func Load(cache store.Cache) (*Dataset, error) {
	log := slog.Default().With("component", "report")
	ds := &Dataset{Earliest: make(map[domain.DataType]time.Time)}

	for _, dt := range reportTypes {
		keys, err := cache.Keys(dt)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dt, err)
		}

		for _, key := range keys {
			raw, err := cache.Read(dt, key)
			if err != nil {
				log.Warn("skipping unreadable cache entry", "type", dt, "key", key, "error", err)
				continue
			}

			if _, seen := ds.Earliest[dt]; !seen && HasMeaningfulData(dt, raw) {
				if d, ok := keyDate(key); ok {
					ds.Earliest[dt] = d
				}
			}

			switch dt {
			case domain.DataTypeStress:
				ds.Stress = append(ds.Stress, NormalizeStress(raw)...)
			case domain.DataTypeSleep:
				ds.Sleep = append(ds.Sleep, NormalizeSleep(raw)...)
			case domain.DataTypeBodyBattery:
				ds.BodyBattery = append(ds.BodyBattery, NormalizeBodyBattery(raw)...)
			}
		}
		log.Debug("loaded cache entries", "type", dt, "files", len(keys))
	}

	for _, d := range ds.Earliest {
		if d.After(ds.AnalysisStart) {
			ds.AnalysisStart = d
		}
	}
	if !ds.AnalysisStart.IsZero() {
		ds.trim(ds.AnalysisStart)
	}
	return ds, nil
}

// trim drops records dated before start.
func (ds *Dataset) trim(start time.Time) {
	ds.Stress = filter(ds.Stress, func(r StressRecord) bool { return !r.Date.Before(start) })
	ds.Sleep = filter(ds.Sleep, func(r SleepRecord) bool { return !r.Date.Before(start) })
	ds.BodyBattery = filter(ds.BodyBattery, func(r BodyBatteryDay) bool { return !r.Date.Before(start) })
}

// keyDate parses the leading date of a cache key ("2024-01-01" or
// "2024-01-01_2024-01-07").
func keyDate(key string) (time.Time, bool) {
	head, _, _ := strings.Cut(key, "_")
	t, err := time.Parse(domain.DateLayout, head)
	return t, err == nil
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

// WeekdayStats aggregates one weekday. Nil fields had no input.
type WeekdayStats struct {
	Weekday        time.Weekday
	AvgStress      *float64
	AvgDeepSleep   *float64
	AvgSleepChange *float64
	AvgBodyBattery *float64
	Score          *float64
}

// Report is the outcome of an analysis. BestDay is meaningful only when
// HasBestDay is true.
type Report struct {
	AnalysisStart time.Time
	RangeStart    time.Time
	RangeEnd      time.Time
	Weekdays      []WeekdayStats
	BestDay       time.Weekday
	HasBestDay    bool
	Daily         []domain.DailyMetrics
}

// Analyze computes weekday means, the next-day deep sleep change, the
// composite score and the per-day table.
func Analyze(ds *Dataset) *Report {
	r := &Report{AnalysisStart: ds.AnalysisStart}

	stress := newBuckets()
	for _, s := range ds.Stress {
		stress.add(s.Date, s.AvgStress)
		r.extend(s.Date)
	}

	deepByDate := make(map[time.Time]float64, len(ds.Sleep))
	deep := newBuckets()
	for _, s := range ds.Sleep {
		deepByDate[s.Date] = s.DeepSleepSeconds
		deep.add(s.Date, s.DeepSleepSeconds)
		r.extend(s.Date)
	}

	change := newBuckets()
	for d, v := range deepByDate {
		if next, ok := deepByDate[d.AddDate(0, 0, 1)]; ok {
			change.add(d, next-v)
		}
	}

	battery := newBuckets()
	for _, b := range ds.BodyBattery {
		battery.add(b.Date, b.Avg)
		r.extend(b.Date)
	}

	stressMeans := stress.means()
	changeMeans := change.means()
	scores := compositeScores(stressMeans, changeMeans)
	deepMeans := deep.means()
	batteryMeans := battery.means()

	for _, wd := range Week {
		r.Weekdays = append(r.Weekdays, WeekdayStats{
			Weekday:        wd,
			AvgStress:      stressMeans[wd],
			AvgDeepSleep:   deepMeans[wd],
			AvgSleepChange: changeMeans[wd],
			AvgBodyBattery: batteryMeans[wd],
			Score:          scores[wd],
		})
	}

	for _, wd := range Week {
		s := scores[wd]
		if s == nil {
			continue
		}
		if !r.HasBestDay || *s < *scores[r.BestDay] {
			r.BestDay = wd
			r.HasBestDay = true
		}
	}

	r.Daily = DailyTable(ds)
	return r
}

// compositeScores min-max normalises each series over the weekdays it covers
// and sums them. Weekdays missing either input get no score; a series with
// zero range normalises to 0.
func compositeScores(stress, change map[time.Weekday]*float64) map[time.Weekday]*float64 {
	ns := normalise(stress)
	nc := normalise(change)

	scores := make(map[time.Weekday]*float64)
	for _, wd := range Week {
		a, b := ns[wd], nc[wd]
		if a == nil || b == nil {
			continue
		}
		v := *a + *b
		scores[wd] = &v
	}
	return scores
}

func normalise(series map[time.Weekday]*float64) map[time.Weekday]*float64 {
	first := true
	var lo, hi float64
	for _, v := range series {
		if v == nil {
			continue
		}
		if first {
			lo, hi, first = *v, *v, false
			continue
		}
		lo = min(lo, *v)
		hi = max(hi, *v)
	}

	out := make(map[time.Weekday]*float64, len(series))
	for wd, v := range series {
		if v == nil {
			continue
		}
		n := 0.0
		if hi > lo {
			n = (*v - lo) / (hi - lo)
		}
		out[wd] = &n
	}
	return out
}

// DailyTable merges the dataset into one row per date, ascending.
func DailyTable(ds *Dataset) []domain.DailyMetrics {
	rows := make(map[time.Time]*domain.DailyMetrics)
	row := func(d time.Time) *domain.DailyMetrics {
		if m, ok := rows[d]; ok {
			return m
		}
		m := &domain.DailyMetrics{Date: d}
		rows[d] = m
		return m
	}

	for _, s := range ds.Stress {
		row(s.Date).AvgStress = ptr(s.AvgStress)
	}
	deepByDate := make(map[time.Time]float64, len(ds.Sleep))
	for _, s := range ds.Sleep {
		deepByDate[s.Date] = s.DeepSleepSeconds
		row(s.Date).DeepSleepSeconds = ptr(s.DeepSleepSeconds)
	}
	for d, v := range deepByDate {
		if next, ok := deepByDate[d.AddDate(0, 0, 1)]; ok {
			row(d).DeepSleepChange = ptr(next - v)
		}
	}
	for _, b := range ds.BodyBattery {
		m := row(b.Date)
		m.BodyBatteryMin = ptr(b.Min)
		m.BodyBatteryMax = ptr(b.Max)
		m.BodyBatteryAvg = ptr(b.Avg)
	}

	out := make([]domain.DailyMetrics, 0, len(rows))
	for _, m := range rows {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (r *Report) extend(d time.Time) {
	if r.RangeStart.IsZero() || d.Before(r.RangeStart) {
		r.RangeStart = d
	}
	if d.After(r.RangeEnd) {
		r.RangeEnd = d
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type buckets struct {
	sum   map[time.Weekday]float64
	count map[time.Weekday]int
}

func newBuckets() *buckets {
	return &buckets{sum: make(map[time.Weekday]float64), count: make(map[time.Weekday]int)}
}

func (b *buckets) add(d time.Time, v float64) {
	wd := d.Weekday()
	b.sum[wd] += v
	b.count[wd]++
}

func (b *buckets) means() map[time.Weekday]*float64 {
	out := make(map[time.Weekday]*float64, len(b.count))
	for wd, n := range b.count {
		m := b.sum[wd] / float64(n)
		out[wd] = &m
	}
	return out
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func ptr(v float64) *float64 { return &v }
