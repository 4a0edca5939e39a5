// Package surface exposes the recorder on the bus: remote session commands
// and broadcasts of status, transcripts and notices.
package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/recorder"
	"github.com/nats-io/nats.go"
)

const (
	startTimeout = 15 * time.Second
	stopTimeout  = 2 * time.Minute
)

type Recorder interface {
	Start(ctx context.Context) (recorder.Snapshot, error)
	Stop(ctx context.Context) (recorder.StopResult, error)
	Clear()
	SetText(text string) error
	Snapshot() recorder.Snapshot
}

// Service answers session commands on the bus.
type Service struct {
	bus    *bus.Client
	rec    Recorder
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ready  bool
	logger *slog.Logger
}

func NewService(parent context.Context, busClient *bus.Client, rec Recorder, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:    busClient,
		rec:    rec,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(slog.String("component", "session-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSessionCommand, s.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribe session commands: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

func (s *Service) handleCommand(msg *nats.Msg) {
	var cmd protocol.SessionCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.logger.Warn("failed to decode session command", slogError(err))
		s.bus.RespondJSON(msg, protocol.SessionStatus{Error: "invalid command"})
		return
	}
	s.logger.Debug("session command", slog.String("action", cmd.Action))

	switch cmd.Action {
	case "status":
		s.bus.RespondJSON(msg, statusFrom(s.rec.Snapshot()))
	case "clear":
		s.rec.Clear()
		s.bus.RespondJSON(msg, statusFrom(s.rec.Snapshot()))
	case "set_text":
		reply := statusFrom(s.rec.Snapshot())
		if err := s.rec.SetText(cmd.Text); err != nil {
			reply.Error = err.Error()
		} else {
			reply = statusFrom(s.rec.Snapshot())
		}
		s.bus.RespondJSON(msg, reply)
	case "start", "stop":
		// Both can block on devices or the final chunk; keep the
		// subscription free for status queries.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if cmd.Action == "start" {
				s.bus.RespondJSON(msg, s.start())
				return
			}
			s.bus.RespondJSON(msg, s.stop())
		}()
	default:
		s.bus.RespondJSON(msg, protocol.SessionStatus{
			Status: string(s.rec.Snapshot().Status),
			Error:  fmt.Sprintf("unknown action %q", cmd.Action),
		})
	}
}

func (s *Service) start() protocol.SessionStatus {
	ctx, cancel := context.WithTimeout(s.ctx, startTimeout)
	defer cancel()
	snap, err := s.rec.Start(ctx)
	if err != nil {
		reply := statusFrom(s.rec.Snapshot())
		reply.Error = err.Error()
		return reply
	}
	return statusFrom(snap)
}

func (s *Service) stop() protocol.SessionStatus {
	ctx, cancel := context.WithTimeout(s.ctx, stopTimeout)
	defer cancel()
	res, err := s.rec.Stop(ctx)
	reply := statusFrom(s.rec.Snapshot())
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.SessionID = res.SessionID
		reply.StopReason = string(res.Reason)
		reply.Text = res.Text
		if res.Err != nil {
			reply.Error = res.Err.Error()
		}
	}
	return reply
}

func statusFrom(snap recorder.Snapshot) protocol.SessionStatus {
	return protocol.SessionStatus{
		SessionID:      snap.SessionID,
		Status:         string(snap.Status),
		Mode:           string(snap.Mode),
		StartedAt:      snap.StartedAt,
		LastActivityAt: snap.LastActivityAt,
		RestartCount:   snap.RestartCount,
		Text:           snap.Text,
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
