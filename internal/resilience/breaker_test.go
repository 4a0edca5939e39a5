package resilience

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Failures: 2, Reset: time.Hour}, quietLogger())
	_ = b.Do(func() error { return errBoom })
	if b.State() != StateClosed {
		t.Fatalf("expected closed after one failure, got %s", b.State())
	}
	_ = b.Do(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Fatalf("expected rejection without call, got %v called=%v", err, called)
	}
}

func TestBreakerProbeClosesOrReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(BreakerConfig{Name: "probe", Failures: 1, Reset: time.Second}, quietLogger())
	b.now = func() time.Time { return now }

	_ = b.Do(func() error { return errBoom })
	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after reset, got %s", b.State())
	}
	_ = b.Do(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("expected failed probe to reopen, got %s", b.State())
	}

	now = now.Add(2 * time.Second)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after good probe, got %s", b.State())
	}
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	errBadInput := errors.New("bad input")
	b := NewBreaker(BreakerConfig{
		Name:     "filter",
		Failures: 1,
		Counts:   func(err error) bool { return !errors.Is(err, errBadInput) },
	}, quietLogger())
	_ = b.Do(func() error { return errBadInput })
	if b.State() != StateClosed {
		t.Fatalf("uncounted error opened breaker")
	}
}

func TestFallbackRunsInOrder(t *testing.T) {
	f := NewFallback[string](BreakerConfig{Failures: 1, Reset: time.Hour}, quietLogger())
	f.Add("primary", "a")
	f.Add("secondary", "b")

	var tried []string
	out, name, err := Run(f, nil, func(name, v string) (string, error) {
		tried = append(tried, name)
		if v == "a" {
			return "", errBoom
		}
		return "ok-" + v, nil
	})
	if err != nil || out != "ok-b" || name != "secondary" {
		t.Fatalf("unexpected result %q %q %v", out, name, err)
	}
	if len(tried) != 2 {
		t.Fatalf("expected both tried, got %v", tried)
	}
	if f.States()["primary"] != StateOpen {
		t.Fatalf("expected primary breaker open")
	}

	tried = nil
	if _, name, _ = Run(f, nil, func(name, v string) (string, error) {
		tried = append(tried, name)
		return v, nil
	}); name != "secondary" || len(tried) != 1 {
		t.Fatalf("expected open primary to be skipped, tried %v", tried)
	}
}

func TestFallbackStopsOnPermanentError(t *testing.T) {
	errPermanent := errors.New("permanent")
	f := NewFallback[int](BreakerConfig{}, quietLogger())
	f.Add("one", 1)
	f.Add("two", 2)
	calls := 0
	_, _, err := Run(f, func(err error) bool { return errors.Is(err, errPermanent) }, func(string, int) (int, error) {
		calls++
		return 0, errPermanent
	})
	if !errors.Is(err, errPermanent) || calls != 1 {
		t.Fatalf("expected stop after first candidate, calls=%d err=%v", calls, err)
	}
}

func TestFallbackExhausted(t *testing.T) {
	f := NewFallback[int](BreakerConfig{}, quietLogger())
	f.Add("one", 1)
	_, _, err := Run(f, nil, func(string, int) (int, error) { return 0, errBoom })
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, errBoom) {
		t.Fatalf("expected exhausted wrapping cause, got %v", err)
	}
}
