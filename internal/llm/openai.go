package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openAIGenerator struct {
	client oai.Client
	model  string
}

// NewOpenAIGenerator targets the OpenAI chat completions API, or any
// compatible server when endpoint is set.
func NewOpenAIGenerator(apiKey, endpoint, defaultModel string) (Generator, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	if defaultModel == "" {
		defaultModel = defaultOpenAIModel
	}
	return &openAIGenerator{client: oai.NewClient(opts...), model: defaultModel}, nil
}

func (g *openAIGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	model := req.Model
	if model == "" {
		model = g.model
	}
	var messages []oai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, oai.SystemMessage(req.System))
	}
	messages = append(messages, oai.UserMessage(req.Prompt))
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) && retryableStatus(apiErr.StatusCode) {
			return fmt.Errorf("openai %s: %w: %w", model, ErrUnavailable, err)
		}
		return fmt.Errorf("openai %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("openai %s: %w", model, ErrEmptyCompletion)
	}
	return consumer(Chunk{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		Latency:          time.Since(start),
		TraceID:          req.TraceID,
	})
}
