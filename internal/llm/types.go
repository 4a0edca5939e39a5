package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

var (
	// ErrEmptyCompletion means the model answered with no text.
	ErrEmptyCompletion = errors.New("model returned no text")
	// ErrUnavailable marks rate limits and server-side failures.
	ErrUnavailable = errors.New("model unavailable")
)

// Request describes a language model prompt. Model names the backend model;
// empty selects the generator's default.
type Request struct {
	Model       string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	TraceID     string
}

// Chunk represents streamed model output.
type Chunk struct {
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	TraceID          string
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// Completion is the collected output of one generation.
type Completion struct {
	Model            string
	Text             string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Complete runs g and joins its chunks.
func Complete(ctx context.Context, g Generator, req Request) (Completion, error) {
	var (
		b   strings.Builder
		out = Completion{Model: req.Model}
	)
	start := time.Now()
	err := g.Generate(ctx, req, func(c Chunk) error {
		b.WriteString(c.Content)
		if c.PromptTokens > 0 {
			out.PromptTokens = c.PromptTokens
		}
		if c.CompletionTokens > 0 {
			out.CompletionTokens = c.CompletionTokens
		}
		return nil
	})
	out.Latency = time.Since(start)
	if err != nil {
		return out, err
	}
	out.Text = strings.TrimSpace(b.String())
	if out.Text == "" {
		return out, ErrEmptyCompletion
	}
	return out, nil
}

// OptionsFromConfig builds request defaults from config.
func OptionsFromConfig(cfg config.ComposeConfig) Request {
	return Request{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// retryableStatus reports HTTP statuses worth trying again or elsewhere.
func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
