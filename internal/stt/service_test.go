package stt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
)

func startTestBus(t *testing.T) *bus.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, logger)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), "stt-test", config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestServiceAnswersBusTranscriber(t *testing.T) {
	client := startTestBus(t)
	svc := NewService(context.Background(), config.STTConfig{Enabled: true, Serve: true, Mode: "mock", TimeoutMS: 2000}, client, NewMockTranscriber())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	if !svc.Healthy() {
		t.Fatal("expected healthy service")
	}

	remote := NewBusTranscriber(client)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	res, err := remote.Transcribe(ctx, Request{Audio: []byte{1, 2, 3, 4}, Sequence: 3})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "[chunk 3 transcript length=4]" {
		t.Fatalf("unexpected text %q", res.Text)
	}

	_, err = remote.Transcribe(ctx, Request{})
	if !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("expected ErrUnrecognized across the bus, got %v", err)
	}
}

func TestServiceRefusesBusLoop(t *testing.T) {
	client := startTestBus(t)
	svc := NewService(context.Background(), config.STTConfig{Enabled: true, Serve: true, Mode: "bus"}, client, NewBusTranscriber(client))
	if err := svc.Start(); err == nil {
		t.Fatal("expected error serving a bus transcriber")
	}
	svc.Close()
}
