// Package compose rewrites a finished transcript into a document style
// with a language model, falling back across configured models.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/llm"
	"github.com/loqalabs/loqa-scribe/internal/resilience"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidRequest = errors.New("missing transcript or style")
	ErrNotConfigured  = errors.New("compose is not configured")
	ErrComposeFailed  = errors.New("failed to compose text")
)

type Request struct {
	Transcript  string
	StyleID     string
	Instruction string
	TraceID     string
}

type Result struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Style string `json:"style"`
}

// Composer tries each configured model in order, each behind a breaker.
type Composer struct {
	cfg       config.ComposeConfig
	generator llm.Generator
	models    *resilience.Fallback[string]
	log       *slog.Logger
	tracer    trace.Tracer
}

// New returns a Composer. A nil generator yields a composer that reports
// ErrNotConfigured.
func New(cfg config.ComposeConfig, generator llm.Generator, logger *slog.Logger) *Composer {
	logger = logger.With(slog.String("component", "compose"))
	models := resilience.NewFallback[string](resilience.BreakerConfig{
		Failures: cfg.BreakerFailures,
		Reset:    time.Duration(cfg.BreakerResetMS) * time.Millisecond,
		Counts:   countsAgainstModel,
	}, logger)
	for _, m := range cfg.Models {
		if m = strings.TrimSpace(m); m != "" {
			models.Add(m, m)
		}
	}
	if models.Len() == 0 {
		models.Add("default", "")
	}
	return &Composer{
		cfg:       cfg,
		generator: generator,
		models:    models,
		log:       logger,
		tracer:    otel.Tracer("github.com/loqalabs/loqa-scribe/internal/compose"),
	}
}

func (c *Composer) Configured() bool {
	return c != nil && c.cfg.Enabled && c.generator != nil
}

// ModelStates reports the breaker state of each model candidate.
func (c *Composer) ModelStates() map[string]resilience.State {
	return c.models.States()
}

func (c *Composer) Compose(ctx context.Context, req Request) (Result, error) {
	if !c.Configured() {
		return Result{}, ErrNotConfigured
	}
	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" || strings.TrimSpace(req.StyleID) == "" {
		return Result{}, ErrInvalidRequest
	}
	style, known := LookupStyle(req.StyleID)
	if !known {
		c.log.Debug("unknown style, using default", slog.String("style", req.StyleID))
	}

	ctx, span := c.tracer.Start(ctx, "compose.generate", trace.WithAttributes(
		attribute.String("compose.style", style.ID),
		attribute.Int("compose.source_chars", len([]rune(transcript))),
	))
	defer span.End()

	base := llm.OptionsFromConfig(c.cfg)
	base.Prompt = BuildPrompt(style, transcript, req.Instruction)
	base.TraceID = req.TraceID

	start := time.Now()
	out, model, err := resilience.Run(c.models, isContextErr, func(name, model string) (llm.Completion, error) {
		r := base
		r.Model = model
		return llm.Complete(ctx, c.generator, r)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("compose failed", slog.String("style", style.ID), slogError(err))
		return Result{}, fmt.Errorf("%w: %w", ErrComposeFailed, err)
	}
	span.SetAttributes(attribute.String("compose.model", model))
	c.log.Info("compose complete",
		slog.String("style", style.ID),
		slog.String("model", model),
		slog.Int("completion_tokens", out.CompletionTokens),
		slog.Duration("latency", time.Since(start)))
	return Result{Text: out.Text, Model: model, Style: style.ID}, nil
}

// countsAgainstModel keeps caller cancellations from opening breakers.
func countsAgainstModel(err error) bool {
	return !isContextErr(err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
