package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

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

func TestRetryPermanent(t *testing.T) {
	attempts := 0
	notFound := errors.New("not found")

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(fmt.Errorf("lookup: %w", notFound))
	})

	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
	if !errors.Is(err, notFound) || !errors.Is(err, ErrPermanent) {
		t.Errorf("Retry error = %v, want wrapped notFound and ErrPermanent", err)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Hour, func() error { return errors.New("boom") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	// The bucket starts with one token.
	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("first Wait() = %v, want nil", err)
	}
}

func TestRateLimiterUnlimited(t *testing.T) {
	var nilRL *RateLimiter
	if err := nilRL.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait() = %v, want nil", err)
	}
	rl := NewRateLimiter(0)
	for i := 0; i < 5; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("unlimited Wait() = %v, want nil", err)
		}
	}
}

func TestRateLimiterSpacing(t *testing.T) {
	rl := NewRateLimiter(60)
	if wait := rl.take(); wait != 0 {
		t.Fatalf("first take() = %v, want 0", wait)
	}
	wait := rl.take()
	if wait < 900*time.Millisecond || wait > time.Second {
		t.Errorf("second take() = %v, want about 1s at 60/min", wait)
	}
}

func TestRateLimiterCancel(t *testing.T) {
	rl := NewRateLimiter(1)
	_ = rl.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "info", "json").Info("hello", "symbol", "AAPL")
	if !strings.Contains(buf.String(), `"symbol":"AAPL"`) {
		t.Errorf("json output = %q, want symbol attribute", buf.String())
	}

	buf.Reset()
	NewLoggerTo(&buf, "info", "text").Info("hello", "symbol", "AAPL")
	if !strings.Contains(buf.String(), "symbol=AAPL") {
		t.Errorf("text output = %q, want symbol=AAPL", buf.String())
	}

	buf.Reset()
	NewLoggerTo(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record at warn level was written: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultRange(t *testing.T) {
	start, end := DefaultRange(365)
	if !end.Equal(Today()) {
		t.Errorf("end = %v, want today", end)
	}
	if got := end.Sub(start); got < 364*24*time.Hour || got > 366*24*time.Hour {
		t.Errorf("range span = %v, want about 365 days", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-15")
	if err != nil {
		t.Fatalf("ParseDate() error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.March || d.Day() != 15 {
		t.Errorf("ParseDate() = %v, want 2024-03-15", d)
	}
	if _, err := ParseDate("15/03/2024"); err == nil {
		t.Error("ParseDate() should reject non-ISO dates")
	}
	if !IsWeekend(time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Error("2024-03-16 is a Saturday")
	}
}
