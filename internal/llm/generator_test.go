package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

func TestOllamaGeneratorStreams(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprintln(w, `{"response":"회의 ","done":false}`)
		fmt.Fprintln(w, `{"response":"요약","done":true,"eval_count":7,"prompt_eval_count":12}`)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(srv.URL, "llama3.2:latest")
	out, err := Complete(context.Background(), gen, Request{
		Model:       "qwen2.5:7b",
		Prompt:      "정리해줘",
		System:      "너는 서기다",
		MaxTokens:   64,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Text != "회의 요약" {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if out.PromptTokens != 12 || out.CompletionTokens != 7 {
		t.Fatalf("unexpected token counts %+v", out)
	}
	if got.Model != "qwen2.5:7b" || got.System != "너는 서기다" || !got.Stream || got.Options.NumPredict != 64 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOllamaGeneratorClassifiesStatus(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(srv.URL, "")
	err := gen.Generate(context.Background(), Request{Prompt: "x"}, func(Chunk) error { return nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for 503, got %v", err)
	}

	status = http.StatusNotFound
	err = gen.Generate(context.Background(), Request{Prompt: "x"}, func(Chunk) error { return nil })
	if err == nil || errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected permanent error for 404, got %v", err)
	}
}

func TestCompleteRejectsEmptyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"  ","done":true}`)
	}))
	defer srv.Close()

	_, err := Complete(context.Background(), NewOllamaGenerator(srv.URL, ""), Request{Prompt: "x"})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestMockGeneratorNamesModel(t *testing.T) {
	out, err := Complete(context.Background(), NewMockGenerator(), Request{Model: "gemini-2.5-flash", Prompt: " hi "})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Text != "[gemini-2.5-flash completion for hi]" {
		t.Fatalf("unexpected mock output %q", out.Text)
	}
}

func TestExecGenerator(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "compose.sh")
	body := "#!/bin/sh\ncat > /dev/null\necho '{\"content\":\"formatted\",\"completion_tokens\":3}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	gen, err := NewExecGenerator(script)
	if err != nil {
		t.Fatalf("new exec generator: %v", err)
	}
	out, err := Complete(context.Background(), gen, Request{Prompt: "draft"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Text != "formatted" || out.CompletionTokens != 3 {
		t.Fatalf("unexpected output %+v", out)
	}

	if _, err := NewExecGenerator("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestNewGeneratorModes(t *testing.T) {
	cfg := config.Default().Compose
	cfg.Mode = "mock"
	if _, err := NewGenerator(context.Background(), cfg); err != nil {
		t.Fatalf("mock: %v", err)
	}
	cfg.Mode = "openai"
	cfg.APIKey = ""
	if _, err := NewGenerator(context.Background(), cfg); err == nil {
		t.Fatal("expected openai without key to fail")
	}
	cfg.APIKey = "sk-test"
	if _, err := NewGenerator(context.Background(), cfg); err != nil {
		t.Fatalf("openai: %v", err)
	}
	cfg.Mode = "telepathy"
	if _, err := NewGenerator(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "telepathy") {
		t.Fatalf("expected unsupported mode error, got %v", err)
	}
}
