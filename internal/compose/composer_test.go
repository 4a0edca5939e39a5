package compose

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/llm"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/resilience"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedGenerator fails for the models listed in failing.
type scriptedGenerator struct {
	mu      sync.Mutex
	failing map[string]error
	calls   []string
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, req llm.Request, consumer func(llm.Chunk) error) error {
	g.mu.Lock()
	g.calls = append(g.calls, req.Model)
	g.prompts = append(g.prompts, req.Prompt)
	err := g.failing[req.Model]
	g.mu.Unlock()
	if err != nil {
		return err
	}
	return consumer(llm.Chunk{Content: "composed by " + req.Model})
}

func testConfig() config.ComposeConfig {
	cfg := config.Default().Compose
	cfg.Enabled = true
	cfg.BreakerFailures = 2
	cfg.BreakerResetMS = 60000
	return cfg
}

func TestBuildPrompt(t *testing.T) {
	style, ok := LookupStyle("minutes")
	if !ok {
		t.Fatal("expected minutes style")
	}
	prompt := BuildPrompt(style, "안건은 예산입니다", " 짧게 ")
	for _, want := range []string{"시스템 지침: " + style.Instruction, "원문: \n안건은 예산입니다", "요청 형식: 회의록", "추가 수정 요청: 짧게"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(BuildPrompt(style, "x", ""), "추가 수정 요청") {
		t.Fatal("empty instruction should be omitted")
	}

	fallback, ok := LookupStyle("poem")
	if ok || fallback.ID != DefaultStyle {
		t.Fatalf("expected summary fallback, got %+v ok=%v", fallback, ok)
	}
	if len(Styles()) != 5 {
		t.Fatalf("expected 5 styles, got %d", len(Styles()))
	}
}

func TestComposeFallsBackAcrossModels(t *testing.T) {
	gen := &scriptedGenerator{failing: map[string]error{
		"gemini-2.5-flash": llm.ErrUnavailable,
	}}
	c := New(testConfig(), gen, testLogger())

	res, err := c.Compose(context.Background(), Request{Transcript: "오늘 회의", StyleID: "summary"})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if res.Model != "gemini-2.5-pro" || res.Text != "composed by gemini-2.5-pro" || res.Style != "summary" {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := c.Compose(context.Background(), Request{Transcript: "두 번째", StyleID: "blog"}); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if c.ModelStates()["gemini-2.5-flash"] != resilience.StateOpen {
		t.Fatalf("expected flash breaker open after repeated failures: %v", c.ModelStates())
	}

	gen.mu.Lock()
	gen.calls = nil
	gen.mu.Unlock()
	if _, err := c.Compose(context.Background(), Request{Transcript: "세 번째", StyleID: "blog"}); err != nil {
		t.Fatalf("compose: %v", err)
	}
	gen.mu.Lock()
	defer gen.mu.Unlock()
	if len(gen.calls) != 1 || gen.calls[0] != "gemini-2.5-pro" {
		t.Fatalf("expected open model skipped, calls %v", gen.calls)
	}
}

func TestComposeAllModelsFail(t *testing.T) {
	boom := errors.New("quota exceeded")
	gen := &scriptedGenerator{failing: map[string]error{
		"gemini-2.5-flash": boom,
		"gemini-2.5-pro":   boom,
		"gemini-1.0-pro":   boom,
	}}
	c := New(testConfig(), gen, testLogger())
	_, err := c.Compose(context.Background(), Request{Transcript: "텍스트", StyleID: "official"})
	if !errors.Is(err, ErrComposeFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected compose failure wrapping last error, got %v", err)
	}
}

func TestComposeValidation(t *testing.T) {
	c := New(testConfig(), &scriptedGenerator{}, testLogger())
	if _, err := c.Compose(context.Background(), Request{Transcript: "  ", StyleID: "summary"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := c.Compose(context.Background(), Request{Transcript: "text"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest without style, got %v", err)
	}

	disabled := config.Default().Compose
	off := New(disabled, &scriptedGenerator{}, testLogger())
	if off.Configured() {
		t.Fatal("disabled composer reports configured")
	}
	if _, err := off.Compose(context.Background(), Request{Transcript: "x", StyleID: "summary"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestServiceAnswersComposeRequests(t *testing.T) {
	logger := testLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, logger)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), "compose-test", config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	svc := NewService(context.Background(), true, client, New(testConfig(), llm.NewMockGenerator(), logger), logger)
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	if !svc.Healthy() {
		t.Fatal("expected healthy service")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var resp protocol.ComposeResponse
	if err := client.RequestJSON(ctx, protocol.SubjectCompose, protocol.ComposeRequest{Transcript: "회의", StyleID: "minutes"}, &resp); err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Error != "" || resp.Model != "gemini-2.5-flash" || !strings.Contains(resp.Text, "회의") {
		t.Fatalf("unexpected response %+v", resp)
	}

	resp = protocol.ComposeResponse{}
	if err := client.RequestJSON(ctx, protocol.SubjectCompose, protocol.ComposeRequest{StyleID: "minutes"}, &resp); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !strings.Contains(resp.Error, ErrInvalidRequest.Error()) {
		t.Fatalf("expected invalid request error, got %+v", resp)
	}
}
