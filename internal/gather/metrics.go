package gather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
	"github.com/tuckwoor/garmin-analysis/internal/garmin"
	"github.com/tuckwoor/garmin-analysis/internal/store"
	"github.com/tuckwoor/garmin-analysis/internal/util"
)

var _ Gatherer = (*MetricGatherer)(nil)

// ErrAuthEscalated aborts a run after too many consecutive authentication
// failures.
var ErrAuthEscalated = errors.New("authentication keeps failing")

// Run statuses written to the journal.
const (
	RunCompleted = "completed"
	RunCancelled = "cancelled"
	RunAborted   = "aborted"
)

// Options configures a MetricGatherer.
type Options struct {
	// StartDate (YYYY-MM-DD) fetches exactly one window starting there.
	// Empty resumes from the cache or discovers the earliest date with data.
	StartDate string

	WindowDays    int
	DiscoveryDays int
	RetryDelay    time.Duration
	BatchDelay    time.Duration

	// MaxRateLimitRetries bounds retries of a throttled request; 0 retries
	// until the request succeeds.
	MaxRateLimitRetries int

	// MaxAuthFailures aborts the run after this many consecutive
	// authentication failures; 0 never aborts.
	MaxAuthFailures int

	// Journal, if set, records runs and fetch outcomes.
	Journal store.Journal

	// Sleep defaults to util.Sleep.
	Sleep util.SleepFunc
}

type runStats struct {
	calls   int
	stored  int
	cached  int
	failed  int
	retries int
}

// MetricGatherer incrementally downloads daily wellness metrics into the
// local cache, one window of days at a time, under a request quota.
type MetricGatherer struct {
	client   garmin.Client
	cache    store.Cache
	limiter  *util.SlidingWindowLimiter
	calendar *util.Calendar
	breaker  *gobreaker.CircuitBreaker
	opts     Options
	base     *slog.Logger
	log      *slog.Logger

	runID string
	stats runStats
}

// NewMetricGatherer creates a MetricGatherer. Zero-valued options fall back
// to a 7-day window and a 365-day discovery range.
func NewMetricGatherer(client garmin.Client, cache store.Cache, limiter *util.SlidingWindowLimiter, cal *util.Calendar, opts Options) *MetricGatherer {
	if opts.WindowDays < 1 {
		opts.WindowDays = 7
	}
	if opts.DiscoveryDays < 1 {
		opts.DiscoveryDays = 365
	}
	if opts.Sleep == nil {
		opts.Sleep = util.Sleep
	}
	if cal == nil {
		cal = util.NewCalendar(nil, nil)
	}
	if limiter == nil {
		limiter = util.NewSlidingWindowLimiter(30, time.Minute)
	}

	g := &MetricGatherer{
		client:   client,
		cache:    cache,
		limiter:  limiter,
		calendar: cal,
		opts:     opts,
		base:     slog.Default().With("gatherer", "garmin-metrics"),
	}
	g.log = g.base
	if opts.MaxAuthFailures > 0 {
		limit := uint32(opts.MaxAuthFailures)
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "garmin-auth",
			Timeout: time.Hour,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= limit
			},
			IsSuccessful: func(err error) bool {
				return !garmin.IsAuth(err)
			},
		})
	}
	return g
}

// Name returns the gatherer identifier.
func (g *MetricGatherer) Name() string { return "garmin-metrics" }

// Run resolves the start date, then fetches windows until the window that
// reaches today (or a single window when a start date was given). Individual
// fetch failures are logged and skipped; only cancellation and auth
// escalation end the run with an error.
func (g *MetricGatherer) Run(ctx context.Context) error {
	g.stats = runStats{}
	g.log = g.base
	today := g.calendar.Today()

	start, mode, err := g.resolveStart(ctx, today)
	if err != nil {
		return err
	}

	switch {
	case start.After(today):
		g.log.Info("already up to date", "start", util.FormatDate(start), "today", util.FormatDate(today))
		return nil
	case start.Equal(today):
		g.log.Info("nothing to fetch, today's data is incomplete", "today", util.FormatDate(today))
		return nil
	}

	g.startRun(ctx, mode, start)
	runStart := time.Now()
	err = g.fetchWindows(ctx, start, today, mode)
	g.finishRun(err)

	g.log.Info("fetch run finished",
		"mode", mode,
		"start", util.FormatDate(start),
		"calls", g.stats.calls,
		"stored", g.stats.stored,
		"cached", g.stats.cached,
		"failed", g.stats.failed,
		"retries", g.stats.retries,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return err
}

// resolveStart picks the first date to fetch and the run mode.
func (g *MetricGatherer) resolveStart(ctx context.Context, today time.Time) (time.Time, domain.RunMode, error) {
	if g.opts.StartDate != "" {
		start, err := util.ParseDate(g.opts.StartDate)
		if err != nil {
			return time.Time{}, "", err
		}
		g.log.Info("fetching single window", "start", g.opts.StartDate)
		return start, domain.RunModeSingleWindow, nil
	}

	latest, ok, err := g.cache.ScanLatest(domain.ReferenceType)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("scanning cache: %w", err)
	}
	if ok {
		start := util.AddDays(latest, 1)
		g.log.Info("resuming from cache", "latest", util.FormatDate(latest), "start", util.FormatDate(start))
		return start, domain.RunModeIncremental, nil
	}

	g.log.Info("cache empty, searching for earliest date with data", "days", g.opts.DiscoveryDays)
	start, err := g.DiscoverEarliest(ctx, today)
	if err != nil {
		return time.Time{}, "", err
	}
	return start, domain.RunModeIncremental, nil
}

// DiscoverEarliest binary-searches [today-DiscoveryDays, today] for the first
// date with heart-rate data. A failed probe counts as no data. When no date
// has data it returns today.
func (g *MetricGatherer) DiscoverEarliest(ctx context.Context, today time.Time) (time.Time, error) {
	lo := util.AddDays(today, -g.opts.DiscoveryDays)
	hi := today

	for !lo.After(hi) {
		span := int(hi.Sub(lo).Hours() / 24)
		mid := util.AddDays(lo, span/2)

		has, err := g.probe(ctx, mid)
		if err != nil {
			return time.Time{}, err
		}
		g.log.Debug("probe", "date", util.FormatDate(mid), "data", has)

		if has {
			hi = util.AddDays(mid, -1)
		} else {
			lo = util.AddDays(mid, 1)
		}
	}

	earliest := util.MinDate(lo, today)
	g.log.Info("earliest date found", "date", util.FormatDate(earliest))
	return earliest, nil
}

// probe reports whether the reference metric has data on date. Only
// cancellation and auth escalation are returned as errors.
func (g *MetricGatherer) probe(ctx context.Context, date time.Time) (bool, error) {
	raw, _, err := g.call(ctx, "probe "+util.FormatDate(date), func(ctx context.Context) (json.RawMessage, error) {
		return g.client.FetchDaily(ctx, domain.ReferenceType, date)
	})
	if err != nil {
		if fatal := g.fatal(ctx, err); fatal != nil {
			return false, fatal
		}
		g.log.Debug("probe failed, treating as no data", "date", util.FormatDate(date), "error", err)
		return false, nil
	}
	return garmin.HasData(raw), nil
}

// ---------------------------------------------------------------------------
// Window loop
// ---------------------------------------------------------------------------

func (g *MetricGatherer) fetchWindows(ctx context.Context, start, today time.Time, mode domain.RunMode) error {
	windows := PlanWindows(start, today, g.opts.WindowDays)
	if len(windows) == 0 {
		g.log.Warn("window end precedes start, stopping", "start", util.FormatDate(start), "today", util.FormatDate(today))
		return nil
	}
	if mode == domain.RunModeSingleWindow {
		windows = windows[:1]
	}

	for i, w := range windows {
		g.log.Info("fetching window",
			"window", w.String(),
			"days", w.Days(),
			"batch", fmt.Sprintf("%d/%d", i+1, len(windows)),
		)
		if err := g.fetchWindow(ctx, w); err != nil {
			return err
		}

		if i == len(windows)-1 {
			break
		}
		g.log.Info("window complete, pausing", "delay", g.opts.BatchDelay)
		if err := g.opts.Sleep(ctx, g.opts.BatchDelay); err != nil {
			return err
		}
	}
	return nil
}

// fetchWindow fetches every daily metric for each date in w, then the body
// battery range for the whole window.
func (g *MetricGatherer) fetchWindow(ctx context.Context, w domain.FetchWindow) error {
	for d := w.Start; !d.After(w.End); d = util.AddDays(d, 1) {
		for _, dt := range domain.DailyTypes {
			err := g.fetchItem(ctx, dt, store.DateKey(d), func(ctx context.Context) (json.RawMessage, error) {
				return g.client.FetchDaily(ctx, dt, d)
			})
			if err != nil {
				return err
			}
		}
	}

	return g.fetchItem(ctx, domain.DataTypeBodyBattery, w.Key(), func(ctx context.Context) (json.RawMessage, error) {
		return g.client.FetchRange(ctx, domain.DataTypeBodyBattery, w.Start, w.End)
	})
}

// fetchItem fetches and caches one payload unless it is already cached.
func (g *MetricGatherer) fetchItem(ctx context.Context, dataType domain.DataType, key string, fetch func(context.Context) (json.RawMessage, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.cache.Exists(dataType, key) {
		g.stats.cached++
		g.log.Debug("cached, skipping", "type", dataType, "key", key)
		g.record(ctx, domain.FetchRecord{DataType: dataType, Key: key, Status: domain.FetchSkipped})
		return nil
	}

	raw, attempts, err := g.call(ctx, string(dataType)+" "+key, fetch)
	if err != nil {
		if fatal := g.fatal(ctx, err); fatal != nil {
			return fatal
		}
		kind := garmin.Classify(err)
		g.stats.failed++
		g.log.Error("fetch failed, skipping",
			"type", dataType,
			"key", key,
			"kind", kind,
			"attempts", attempts,
			"error", err,
		)
		g.record(ctx, domain.FetchRecord{
			DataType:  dataType,
			Key:       key,
			Status:    domain.FetchFailed,
			ErrorKind: kind.String(),
			Message:   err.Error(),
			Attempts:  attempts,
		})
		return nil
	}

	if err := g.cache.Write(dataType, key, raw); err != nil && !errors.Is(err, store.ErrExists) {
		g.stats.failed++
		g.log.Error("cache write failed", "type", dataType, "key", key, "error", err)
		g.record(ctx, domain.FetchRecord{
			DataType: dataType,
			Key:      key,
			Status:   domain.FetchFailed,
			Message:  err.Error(),
			Attempts: attempts,
		})
		return nil
	}

	g.stats.stored++
	g.log.Info("stored", "type", dataType, "key", key, "data", garmin.HasData(raw))
	g.record(ctx, domain.FetchRecord{DataType: dataType, Key: key, Status: domain.FetchStored, Attempts: attempts})
	return nil
}

// ---------------------------------------------------------------------------
// Request path
// ---------------------------------------------------------------------------

// call performs one logical request: each attempt waits on the limiter and
// goes through the auth breaker; rate-limit failures are retried after the
// retry delay with the identical request.
func (g *MetricGatherer) call(ctx context.Context, op string, fetch func(context.Context) (json.RawMessage, error)) (json.RawMessage, int, error) {
	maxAttempts := 0
	if g.opts.MaxRateLimitRetries > 0 {
		maxAttempts = g.opts.MaxRateLimitRetries + 1
	}

	policy := util.RetryPolicy{
		BackOff:     backoff.NewConstantBackOff(g.opts.RetryDelay),
		MaxAttempts: maxAttempts,
		Retryable:   garmin.IsRateLimit,
		Sleep:       g.opts.Sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			g.stats.retries++
			g.log.Warn("rate limited, retrying", "op", op, "attempt", attempt, "delay", delay)
		},
	}

	var raw json.RawMessage
	attempts, err := policy.Do(ctx, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		g.stats.calls++
		out, err := g.guard(func() (json.RawMessage, error) {
			return fetch(ctx)
		})
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	return raw, attempts, err
}

// guard runs fetch through the auth breaker, converting a tripped breaker
// into ErrAuthEscalated.
func (g *MetricGatherer) guard(fetch func() (json.RawMessage, error)) (json.RawMessage, error) {
	if g.breaker == nil {
		return fetch()
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fetch()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || g.breaker.State() == gobreaker.StateOpen {
		return nil, fmt.Errorf("%w after %d consecutive failures: %w", ErrAuthEscalated, g.opts.MaxAuthFailures, err)
	}
	if err != nil {
		return nil, err
	}
	raw, _ := out.(json.RawMessage)
	return raw, nil
}

// fatal returns the error that must end the run, or nil if err only affects
// the current fetch.
func (g *MetricGatherer) fatal(ctx context.Context, err error) error {
	if errors.Is(err, ErrAuthEscalated) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Journal
// ---------------------------------------------------------------------------

func (g *MetricGatherer) startRun(ctx context.Context, mode domain.RunMode, start time.Time) {
	g.runID = ""
	if g.opts.Journal == nil {
		return
	}
	id, err := g.opts.Journal.StartRun(context.WithoutCancel(ctx), mode, util.FormatDate(start))
	if err != nil {
		g.log.Warn("journal start failed", "error", err)
		return
	}
	g.runID = id
	g.log = g.log.With("run", id)
}

func (g *MetricGatherer) finishRun(runErr error) {
	if g.opts.Journal == nil || g.runID == "" {
		return
	}
	status := RunCompleted
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = RunCancelled
	case runErr != nil:
		status = RunAborted
	}
	// The run context may already be cancelled.
	if err := g.opts.Journal.FinishRun(context.Background(), g.runID, status); err != nil {
		g.log.Warn("journal finish failed", "error", err)
	}
}

func (g *MetricGatherer) record(ctx context.Context, rec domain.FetchRecord) {
	if g.opts.Journal == nil || g.runID == "" {
		return
	}
	rec.RunID = g.runID
	if err := g.opts.Journal.RecordFetch(context.WithoutCancel(ctx), rec); err != nil {
		g.log.Warn("journal write failed", "type", rec.DataType, "key", rec.Key, "error", err)
	}
}
