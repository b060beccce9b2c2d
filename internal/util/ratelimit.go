package util

import (
	"context"
	"log/slog"
	"time"
)

// SleepFunc pauses the caller for d or until ctx is cancelled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SlidingWindowLimiter allows at most Limit requests in any trailing Window.
// It remembers the instants of the most recent Limit requests; when a new
// request would exceed the quota, the oldest instant is dropped and the
// caller sleeps until that instant has aged out of the window.
//
// A SlidingWindowLimiter is not safe for concurrent use.
type SlidingWindowLimiter struct {
	Limit  int
	Window time.Duration

	// Clock and Sleep default to time.Now and Sleep.
	Clock func() time.Time
	Sleep SleepFunc

	times []time.Time
	log   *slog.Logger
}

// NewSlidingWindowLimiter creates a limiter allowing limit requests per
// window.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		Limit:  limit,
		Window: window,
		times:  make([]time.Time, 0, limit+1),
		log:    slog.Default().With("component", "ratelimit"),
	}
}

// Wait records a request and blocks if the quota for the trailing window is
// exhausted. It returns early with ctx.Err() if ctx is cancelled while
// waiting.
func (rl *SlidingWindowLimiter) Wait(ctx context.Context) error {
	now := rl.now()
	rl.times = append(rl.times, now)
	if rl.Limit <= 0 || len(rl.times) <= rl.Limit {
		return nil
	}

	oldest := rl.times[0]
	rl.times = rl.times[1:]

	elapsed := now.Sub(oldest)
	if elapsed >= rl.Window {
		return nil
	}

	pause := rl.Window - elapsed
	rl.logger().Info("request quota reached, pausing",
		"limit", rl.Limit,
		"window", rl.Window,
		"pause", pause.Round(10*time.Millisecond),
	)
	return rl.sleep(ctx, pause)
}

// Len returns the number of request instants currently remembered.
func (rl *SlidingWindowLimiter) Len() int {
	return len(rl.times)
}

func (rl *SlidingWindowLimiter) now() time.Time {
	if rl.Clock != nil {
		return rl.Clock()
	}
	return time.Now()
}

func (rl *SlidingWindowLimiter) sleep(ctx context.Context, d time.Duration) error {
	if rl.Sleep != nil {
		return rl.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

func (rl *SlidingWindowLimiter) logger() *slog.Logger {
	if rl.log != nil {
		return rl.log
	}
	return slog.Default()
}
