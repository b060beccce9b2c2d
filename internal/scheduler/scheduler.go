// Package scheduler runs a job once a day at a fixed local time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a Job daily. A run never starts while the previous one is
// still in progress.
type Scheduler struct {
	scheduler *gocron.Scheduler
	at        string
	job       Job
	log       *slog.Logger
}

// New creates a Scheduler that runs job every day at at ("HH:MM") in loc.
func New(loc *time.Location, at string, job Job) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		at:        at,
		job:       job,
		log:       slog.Default().With("component", "scheduler"),
	}
}

// Start registers the daily job and starts the scheduler in the background.
// Each run receives ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(1).Day().At(s.at).Do(func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling daily run at %q: %w", s.at, err)
	}

	s.scheduler.StartAsync()
	if _, next := s.scheduler.NextRun(); !next.IsZero() {
		s.log.Info("scheduler started", "at", s.at, "next", next.Format(time.RFC3339))
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// RunOnce executes the job immediately. Errors are logged, not returned, so
// a failed day does not stop later runs.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.log.Info("scheduled run starting")
	if err := s.job(ctx); err != nil {
		s.log.Error("scheduled run failed", "error", err, "elapsed", time.Since(start).Round(time.Second))
		return
	}
	s.log.Info("scheduled run finished", "elapsed", time.Since(start).Round(time.Second))
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}
