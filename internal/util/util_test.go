package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// fakeTime is a manually advanced clock whose sleeps only advance the clock.
type fakeTime struct {
	now    time.Time
	sleeps []time.Duration
}

func (f *fakeTime) Now() time.Time { return f.now }

func (f *fakeTime) Sleep(_ context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPolicyStopsOnNonRetryable(t *testing.T) {
	ft := &fakeTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	errFatal := errors.New("fatal")
	errAgain := errors.New("again")

	calls := 0
	p := RetryPolicy{
		BackOff:   backoff.NewConstantBackOff(time.Minute),
		Retryable: func(err error) bool { return errors.Is(err, errAgain) },
		Sleep:     ft.Sleep,
	}
	attempts, err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errAgain
		}
		return errFatal
	})

	if !errors.Is(err, errFatal) {
		t.Fatalf("Do returned %v, want %v", err, errFatal)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(ft.sleeps) != 2 {
		t.Fatalf("slept %d times, want 2", len(ft.sleeps))
	}
	for i, d := range ft.sleeps {
		if d != time.Minute {
			t.Errorf("sleep[%d] = %v, want 1m", i, d)
		}
	}
}

func TestRetryPolicyUnboundedUntilSuccess(t *testing.T) {
	ft := &fakeTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	calls := 0
	retries := 0

	p := RetryPolicy{
		BackOff: backoff.NewConstantBackOff(time.Minute),
		Sleep:   ft.Sleep,
		OnRetry: func(int, time.Duration, error) { retries++ },
	}
	attempts, err := p.Do(context.Background(), func() error {
		calls++
		if calls <= 50 {
			return errors.New("rate limited")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v", err)
	}
	if attempts != 51 || retries != 50 {
		t.Errorf("attempts = %d retries = %d, want 51 and 50", attempts, retries)
	}
}

func TestRetryPolicyHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RetryPolicy{BackOff: backoff.NewConstantBackOff(time.Hour)}
	_, err := p.Do(ctx, func() error { return errors.New("boom") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do returned %v, want context.Canceled", err)
	}
}

func TestSlidingWindowLimiterBlocksThirtyFirst(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ft := &fakeTime{now: start}

	rl := NewSlidingWindowLimiter(30, time.Minute)
	rl.Clock = ft.Now
	rl.Sleep = ft.Sleep

	step := time.Second / 31
	for i := 0; i < 30; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
		ft.now = ft.now.Add(step)
	}
	if len(ft.sleeps) != 0 {
		t.Fatalf("limiter slept %d times within quota, want 0", len(ft.sleeps))
	}

	elapsed := ft.now.Sub(start)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ft.sleeps) != 1 {
		t.Fatalf("limiter slept %d times on the 31st call, want 1", len(ft.sleeps))
	}
	if want := time.Minute - elapsed; ft.sleeps[0] != want {
		t.Errorf("31st call slept %v, want %v", ft.sleeps[0], want)
	}
	if rl.Len() != 30 {
		t.Errorf("Len() = %d, want 30", rl.Len())
	}
}

func TestSlidingWindowLimiterNoWaitAfterWindow(t *testing.T) {
	ft := &fakeTime{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}

	rl := NewSlidingWindowLimiter(2, time.Minute)
	rl.Clock = ft.Now
	rl.Sleep = ft.Sleep

	for i := 0; i < 5; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
		ft.now = ft.now.Add(31 * time.Second)
	}
	if len(ft.sleeps) != 0 {
		t.Errorf("limiter slept %v, want no sleeps", ft.sleeps)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep returned %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on a cancelled context")
	}
}

func TestCalendarToday(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// 02:00 UTC on the 10th is still the 9th at UTC-5.
	now := func() time.Time { return time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC) }

	cal := NewCalendar(loc, now)
	got := cal.Today()
	want := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Today() = %s, want %s", got, want)
	}
}

func TestParseFormatDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatDate(AddDays(d, 1)); got != "2024-03-01" {
		t.Errorf("AddDays(2024-02-29, 1) = %s, want 2024-03-01", got)
	}
	if _, err := ParseDate("02/29/2024"); err == nil {
		t.Error("ParseDate should reject non-ISO dates")
	}
	a := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !MinDate(a, b).Equal(b) {
		t.Error("MinDate picked the later date")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "DEBUG",
		"WARN":  "WARN",
		"error": "ERROR",
		"bogus": "INFO",
	}
	for in, want := range cases {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
