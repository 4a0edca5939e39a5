// Package resilience guards calls to remote generators with circuit
// breakers and ordered fallback.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrOpen      = errors.New("circuit open")
	ErrExhausted = errors.New("all candidates failed")
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type BreakerConfig struct {
	Name string
	// Failures is the number of consecutive failures that opens the breaker.
	Failures int
	// Reset is how long an open breaker rejects calls before a probe.
	Reset time.Duration
	// Counts reports whether err should count against the breaker. Nil
	// counts every error.
	Counts func(err error) bool
}

// Breaker is a three-state circuit breaker. A single probe is let through
// once Reset has elapsed; its outcome closes or reopens the breaker.
type Breaker struct {
	cfg BreakerConfig
	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.Failures <= 0 {
		cfg.Failures = 3
	}
	if cfg.Reset <= 0 {
		cfg.Reset = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		cfg:   cfg,
		log:   logger.With(slog.String("breaker", cfg.Name)),
		now:   time.Now,
		state: StateClosed,
	}
}

func (b *Breaker) Name() string { return b.cfg.Name }

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.record(probe, err)
	return err
}

func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Reset {
			return false, fmt.Errorf("%w: %s", ErrOpen, b.cfg.Name)
		}
		b.state = StateHalfOpen
		b.probing = true
		return true, nil
	case StateHalfOpen:
		if b.probing {
			return false, fmt.Errorf("%w: %s", ErrOpen, b.cfg.Name)
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if err == nil || (b.cfg.Counts != nil && !b.cfg.Counts(err)) {
		if b.state != StateClosed {
			b.log.Info("circuit closed")
		}
		b.state = StateClosed
		b.failures = 0
		return
	}
	b.failures++
	if probe || b.failures >= b.cfg.Failures {
		if b.state != StateOpen {
			b.log.Warn("circuit opened", slog.Int("failures", b.failures), slog.String("error", err.Error()))
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State reports the current state. An open breaker whose reset elapsed
// reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Reset {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}
