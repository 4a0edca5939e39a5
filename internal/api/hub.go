package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/loqalabs/loqa-scribe/internal/recorder"
)

const (
	subscriberBuffer = 64
	pingInterval     = 30 * time.Second
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans recorder events out to websocket subscribers. Slow subscribers
// lose events rather than stall the recorder.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		log:  logger.With(slog.String("component", "event_hub")),
		subs: make(map[chan []byte]struct{}),
	}
}

// liveEvent is the wire form of a recorder event.
type liveEvent struct {
	Type      string                `json:"type"`
	SessionID string                `json:"sessionId,omitempty"`
	Time      time.Time             `json:"time"`
	Status    recorder.Status       `json:"status,omitempty"`
	Text      string                `json:"text,omitempty"`
	Buffer    *string               `json:"buffer,omitempty"`
	Notice    *recorder.Notice      `json:"notice,omitempty"`
	Restart   *recorder.RestartInfo `json:"restart,omitempty"`
	Chunk     *recorder.ChunkInfo   `json:"chunk,omitempty"`
	Stop      *stopView             `json:"stop,omitempty"`
	Snapshot  *recorder.Snapshot    `json:"snapshot,omitempty"`
}

func toLiveEvent(ev recorder.Event) liveEvent {
	out := liveEvent{
		Type:      string(ev.Type),
		SessionID: ev.SessionID,
		Time:      ev.Time,
		Status:    ev.Status,
		Text:      ev.Text,
		Notice:    ev.Notice,
		Restart:   ev.Restart,
		Chunk:     ev.Chunk,
	}
	if ev.Type == recorder.EventTranscript {
		buf := ev.Buffer
		out.Buffer = &buf
	}
	if ev.Stop != nil {
		view := stopView{StopResult: *ev.Stop}
		if ev.Stop.Err != nil {
			view.Error = ev.Stop.Err.Error()
		}
		out.Stop = &view
	}
	return out
}

func (h *Hub) OnEvent(ev recorder.Event) {
	data, err := json.Marshal(toLiveEvent(ev))
	if err != nil {
		h.log.Warn("failed to encode event", slog.String("type", string(ev.Type)), slogError(err))
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

func (h *Hub) subscribe() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan []byte, subscriberBuffer)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// sessionStream upgrades to a websocket, sends the current snapshot and
// then relays live recorder events.
func (s *Server) sessionStream(c *gin.Context) {
	if s.deps.Hub == nil {
		fail(c, http.StatusServiceUnavailable, "live events are not available", nil)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", slogError(err))
		return
	}
	defer conn.Close()

	ch, ok := s.deps.Hub.subscribe()
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		return
	}
	defer s.deps.Hub.unsubscribe(ch)

	if s.deps.Recorder != nil {
		snap := s.deps.Recorder.Snapshot()
		hello, _ := json.Marshal(liveEvent{Type: "snapshot", SessionID: snap.SessionID, Time: time.Now(), Status: snap.Status, Snapshot: &snap})
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
			return
		}
	}

	// The read side only watches for the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case data, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
