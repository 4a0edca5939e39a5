package llm

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

// NewGenerator builds the backend named by cfg.Mode. The first configured
// model becomes the generator default.
func NewGenerator(ctx context.Context, cfg config.ComposeConfig) (Generator, error) {
	var model string
	if len(cfg.Models) > 0 {
		model = cfg.Models[0]
	}
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "gemini":
		return NewGeminiGenerator(ctx, cfg.APIKey, model)
	case "openai":
		return NewOpenAIGenerator(cfg.APIKey, cfg.Endpoint, model)
	default:
		return nil, fmt.Errorf("unsupported compose mode %q", cfg.Mode)
	}
}
