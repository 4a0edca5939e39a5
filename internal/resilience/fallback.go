package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

type candidate[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Fallback tries candidates in order, each behind its own breaker.
type Fallback[T any] struct {
	cfg        BreakerConfig
	log        *slog.Logger
	candidates []candidate[T]
}

func NewFallback[T any](cfg BreakerConfig, logger *slog.Logger) *Fallback[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback[T]{cfg: cfg, log: logger}
}

// Add appends a candidate tried after those already added.
func (f *Fallback[T]) Add(name string, value T) {
	cfg := f.cfg
	cfg.Name = name
	f.candidates = append(f.candidates, candidate[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg, f.log),
	})
}

func (f *Fallback[T]) Len() int { return len(f.candidates) }

// States reports each candidate's breaker state by name.
func (f *Fallback[T]) States() map[string]State {
	out := make(map[string]State, len(f.candidates))
	for _, c := range f.candidates {
		out[c.name] = c.breaker.State()
	}
	return out
}

// Run calls fn against candidates until one succeeds. stop, when non-nil,
// ends the walk early for errors no other candidate could fix.
func Run[T, R any](f *Fallback[T], stop func(error) bool, fn func(name string, v T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range f.candidates {
		c := &f.candidates[i]
		var out R
		err := c.breaker.Do(func() error {
			var err error
			out, err = fn(c.name, c.value)
			return err
		})
		if err == nil {
			return out, c.name, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			f.log.Debug("skipping candidate with open circuit", slog.String("candidate", c.name))
			continue
		}
		if stop != nil && stop(err) {
			return zero, c.name, err
		}
		f.log.Warn("candidate failed, trying next", slog.String("candidate", c.name), slog.String("error", err.Error()))
	}
	if lastErr == nil {
		lastErr = errors.New("no candidates configured")
	}
	return zero, "", fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
