package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type geminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator talks to the Gemini API with an API key.
func NewGeminiGenerator(ctx context.Context, apiKey, defaultModel string) (Generator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if defaultModel == "" {
		defaultModel = defaultGeminiModel
	}
	return &geminiGenerator{client: client, model: defaultModel}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	model := req.Model
	if model == "" {
		model = g.model
	}
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	start := time.Now()
	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, genai.Text(req.Prompt), cfg) {
		if err != nil {
			return classifyGemini(model, err)
		}
		chunk := Chunk{
			Content: resp.Text(),
			Partial: true,
			Latency: time.Since(start),
			TraceID: req.TraceID,
		}
		if usage := resp.UsageMetadata; usage != nil {
			chunk.PromptTokens = int(usage.PromptTokenCount)
			chunk.CompletionTokens = int(usage.CandidatesTokenCount)
		}
		if err := consumer(chunk); err != nil {
			return err
		}
	}
	return consumer(Chunk{Partial: false, Latency: time.Since(start), TraceID: req.TraceID})
}

func classifyGemini(model string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && retryableStatus(apiErr.Code) {
		return fmt.Errorf("gemini %s: %w: %w", model, ErrUnavailable, err)
	}
	return fmt.Errorf("gemini %s: %w", model, err)
}
