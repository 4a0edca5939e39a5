package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/nats-io/nats.go"
)

var version = "0.1.0-dev"

const usage = "expected one of: start, stop, clear, status, set-text, watch, version"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	if cmd == "version" {
		fmt.Println(version)
		return
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	servers := fs.String("servers", envOr("LOQA_BUS_SERVERS", "nats://localhost:4222"), "Comma-separated NATS servers")
	timeout := fs.Duration("timeout", 2*time.Minute, "Request timeout")
	text := fs.String("text", "", "Transcript text for set-text")
	_ = fs.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bus.Connect(ctx, "scribectl", config.BusConfig{
		Servers:        strings.Split(*servers, ","),
		ConnectTimeout: 2000,
	}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Close()

	switch cmd {
	case "start", "stop", "clear", "status":
		err = runCommand(ctx, client, protocol.SessionCommand{Action: cmd}, *timeout)
	case "set-text":
		err = runCommand(ctx, client, protocol.SessionCommand{Action: "set_text", Text: *text}, *timeout)
	case "watch":
		err = runWatch(ctx, client)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, client *bus.Client, cmd protocol.SessionCommand, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var reply protocol.SessionStatus
	if err := client.RequestJSON(ctx, protocol.SubjectSessionCommand, cmd, &reply); err != nil {
		return err
	}
	printStatus(reply)
	if reply.Error != "" {
		return errors.New(reply.Error)
	}
	return nil
}

func printStatus(s protocol.SessionStatus) {
	fmt.Printf("status: %s", s.Status)
	if s.Mode != "" {
		fmt.Printf(" (%s)", s.Mode)
	}
	if s.SessionID != "" {
		fmt.Printf(" session=%s", s.SessionID)
	}
	if s.StopReason != "" {
		fmt.Printf(" stopped=%s", s.StopReason)
	}
	if s.RestartCount > 0 {
		fmt.Printf(" restarts=%d", s.RestartCount)
	}
	fmt.Println()
	if s.Text != "" {
		fmt.Println(s.Text)
	}
}

// runWatch prints recorder broadcasts until interrupted.
func runWatch(ctx context.Context, client *bus.Client) error {
	msgs := make(chan *nats.Msg, 64)
	subjects := []string{
		protocol.SubjectSessionStatus,
		protocol.SubjectTranscriptPartial,
		protocol.SubjectTranscriptFinal,
		protocol.SubjectNotice,
	}
	for _, subject := range subjects {
		sub, err := client.Conn().ChanSubscribe(subject, msgs)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		defer sub.Unsubscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			switch msg.Subject {
			case protocol.SubjectSessionStatus:
				var s protocol.SessionStatus
				if json.Unmarshal(msg.Data, &s) == nil {
					fmt.Printf("[status] %s %s\n", s.Status, s.StopReason)
				}
			case protocol.SubjectTranscriptPartial:
				var t protocol.Transcript
				if json.Unmarshal(msg.Data, &t) == nil {
					fmt.Printf("[partial] %s\n", t.Text)
				}
			case protocol.SubjectTranscriptFinal:
				var t protocol.Transcript
				if json.Unmarshal(msg.Data, &t) == nil {
					fmt.Printf("[final] %s\n", t.Text)
				}
			case protocol.SubjectNotice:
				var n protocol.Notice
				if json.Unmarshal(msg.Data, &n) == nil {
					fmt.Printf("[notice] %s: %s\n", n.Kind, n.Message)
				}
			}
		}
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
