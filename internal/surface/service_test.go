package surface

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/recorder"
	"github.com/nats-io/nats.go"
)

type fakeRecorder struct {
	mu     sync.Mutex
	text   string
	active bool
}

func (f *fakeRecorder) Start(context.Context) (recorder.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return recorder.Snapshot{}, recorder.ErrSessionActive
	}
	f.active = true
	return recorder.Snapshot{SessionID: "s1", Status: recorder.StatusRecording, Mode: recorder.ModeChunked, Text: f.text}, nil
}

func (f *fakeRecorder) Stop(context.Context) (recorder.StopResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return recorder.StopResult{}, recorder.ErrNoActiveSession
	}
	f.active = false
	f.text += "끝"
	return recorder.StopResult{SessionID: "s1", Reason: recorder.ReasonUser, Text: f.text}, nil
}

func (f *fakeRecorder) Clear() {
	f.mu.Lock()
	f.text = ""
	f.mu.Unlock()
}

func (f *fakeRecorder) SetText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return recorder.ErrSessionActive
	}
	f.text = text
	return nil
}

func (f *fakeRecorder) Snapshot() recorder.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return recorder.Snapshot{SessionID: "s1", Status: recorder.StatusRecording, Text: f.text}
	}
	return recorder.Snapshot{Status: recorder.StatusIdle, Text: f.text}
}

func setupBus(t *testing.T) *bus.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, logger)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), "surface-test", config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func command(t *testing.T, client *bus.Client, cmd protocol.SessionCommand) protocol.SessionStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var reply protocol.SessionStatus
	if err := client.RequestJSON(ctx, protocol.SubjectSessionCommand, cmd, &reply); err != nil {
		t.Fatalf("%s: %v", cmd.Action, err)
	}
	return reply
}

func TestSessionCommands(t *testing.T) {
	client := setupBus(t)
	rec := &fakeRecorder{}
	svc := NewService(context.Background(), client, rec, client.Logger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)

	if reply := command(t, client, protocol.SessionCommand{Action: "set_text", Text: "메모"}); reply.Text != "메모" || reply.Error != "" {
		t.Fatalf("set_text: %+v", reply)
	}
	if reply := command(t, client, protocol.SessionCommand{Action: "start"}); reply.Status != "recording" || reply.Mode != "chunked" {
		t.Fatalf("start: %+v", reply)
	}
	if reply := command(t, client, protocol.SessionCommand{Action: "start"}); reply.Error == "" {
		t.Fatalf("expected second start to fail: %+v", reply)
	}
	if reply := command(t, client, protocol.SessionCommand{Action: "set_text", Text: "x"}); reply.Error == "" || reply.Text != "메모" {
		t.Fatalf("expected edit refusal while recording: %+v", reply)
	}
	reply := command(t, client, protocol.SessionCommand{Action: "stop"})
	if reply.Status != "idle" || reply.StopReason != string(recorder.ReasonUser) || reply.Text != "메모끝" {
		t.Fatalf("stop: %+v", reply)
	}
	if reply := command(t, client, protocol.SessionCommand{Action: "clear"}); reply.Text != "" {
		t.Fatalf("clear: %+v", reply)
	}
	if reply := command(t, client, protocol.SessionCommand{Action: "dance"}); reply.Error == "" {
		t.Fatalf("expected unknown action error: %+v", reply)
	}
}

func TestPublisherBroadcastsEvents(t *testing.T) {
	client := setupBus(t)
	msgs := make(chan *nats.Msg, 16)
	for _, subject := range []string{protocol.SubjectTranscriptFinal, protocol.SubjectTranscriptPartial, protocol.SubjectNotice} {
		sub, err := client.Conn().ChanSubscribe(subject, msgs)
		if err != nil {
			t.Fatalf("subscribe %s: %v", subject, err)
		}
		t.Cleanup(func() { _ = sub.Unsubscribe() })
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	pub := NewPublisher(client, nil, client.Logger())
	now := time.Now()
	pub.OnEvent(recorder.Event{Type: recorder.EventInterim, SessionID: "s1", Text: "안녕", Time: now})
	pub.OnEvent(recorder.Event{Type: recorder.EventTranscript, SessionID: "s1", Text: "안녕하세요", Buffer: "안녕하세요", Time: now})
	pub.OnEvent(recorder.Event{Type: recorder.EventNotice, SessionID: "s1", Time: now, Notice: &recorder.Notice{Kind: recorder.NoticeNothingRecognized, Message: "none"}})
	pub.OnEvent(recorder.Event{Type: recorder.EventRestart, SessionID: "s1", Time: now})

	got := map[string][]byte{}
	deadline := time.After(3 * time.Second)
	for len(got) < 3 {
		select {
		case m := <-msgs:
			got[m.Subject] = m.Data
		case <-deadline:
			t.Fatalf("timed out, got %d messages", len(got))
		}
	}

	var partial protocol.Transcript
	_ = json.Unmarshal(got[protocol.SubjectTranscriptPartial], &partial)
	if !partial.Partial || partial.Text != "안녕" {
		t.Fatalf("unexpected partial %+v", partial)
	}
	var final protocol.Transcript
	_ = json.Unmarshal(got[protocol.SubjectTranscriptFinal], &final)
	if final.Partial || final.Text != "안녕하세요" || final.Buffer != "안녕하세요" {
		t.Fatalf("unexpected final %+v", final)
	}
	var notice protocol.Notice
	_ = json.Unmarshal(got[protocol.SubjectNotice], &notice)
	if notice.Kind != string(recorder.NoticeNothingRecognized) || notice.SessionID != "s1" {
		t.Fatalf("unexpected notice %+v", notice)
	}
}
