package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/recorder"
)

const sinkBuffer = 256

// Sink persists recorder events to the timeline. OnEvent never blocks;
// events are dropped when the writer falls behind.
type Sink struct {
	store   *Store
	actor   string
	privacy string
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	events chan recorder.Event
	wg     sync.WaitGroup
}

func NewSink(store *Store, actor string, logger *slog.Logger) *Sink {
	s := &Sink{
		store:   store,
		actor:   actor,
		privacy: store.cfg.RetentionMode,
		log:     logger.With(slog.String("component", "event-sink")),
		events:  make(chan recorder.Event, sinkBuffer),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Sink) OnEvent(ev recorder.Event) {
	if ev.SessionID == "" || ev.Type == recorder.EventInterim {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event sink full, dropping event",
			slog.String("session_id", ev.SessionID),
			slog.String("type", string(ev.Type)))
	}
}

// Close flushes queued events. Later events are ignored.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sink) run() {
	defer s.wg.Done()
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.write(ctx, ev); err != nil {
			s.log.Warn("failed to persist recorder event",
				slog.String("session_id", ev.SessionID),
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}

func (s *Sink) write(ctx context.Context, ev recorder.Event) error {
	if ev.Type == recorder.EventStatus && ev.Status == recorder.StatusStarting {
		if err := s.store.AppendSession(ctx, ev.SessionID, s.actor, s.privacy); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(payloadFor(ev))
	if err != nil {
		return err
	}
	return s.store.AppendEvent(ctx, Event{
		SessionID: ev.SessionID,
		ActorID:   s.actor,
		Type:      "recorder." + string(ev.Type),
		Payload:   payload,
		Privacy:   s.privacy,
		CreatedAt: ev.Time,
	})
}

func payloadFor(ev recorder.Event) any {
	switch ev.Type {
	case recorder.EventStatus:
		return map[string]any{"status": ev.Status}
	case recorder.EventTranscript:
		return map[string]any{"text": ev.Text, "buffer_chars": len([]rune(ev.Buffer))}
	case recorder.EventNotice:
		return ev.Notice
	case recorder.EventRestart:
		return ev.Restart
	case recorder.EventChunk:
		return ev.Chunk
	case recorder.EventStopped:
		out := map[string]any{"reason": ev.Stop.Reason, "duration_ms": ev.Stop.Duration.Milliseconds()}
		if ev.Stop.Err != nil {
			out["error"] = ev.Stop.Err.Error()
		}
		return out
	default:
		return map[string]any{}
	}
}
