package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service answers recognize requests from other scribe nodes with the
// locally configured transcriber.
type Service struct {
	cfg         config.STTConfig
	bus         *bus.Client
	transcriber Transcriber
	ctx         context.Context
	cancel      context.CancelFunc
	sub         *nats.Subscription
	wg          sync.WaitGroup
	ready       bool
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, transcriber Transcriber) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:         cfg,
		bus:         busClient,
		transcriber: transcriber,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled || !s.cfg.Serve {
		return nil
	}
	if s.cfg.Mode == "bus" {
		return fmt.Errorf("stt.serve requires a local transcriber, mode=bus would loop")
	}
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectRecognize, "scribe-stt", s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe recognize requests: %w", err)
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
	return !s.cfg.Enabled || !s.cfg.Serve || s.ready
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.RecognizeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.bus.Logger().Warn("failed to decode recognize request", slogError(err))
		s.bus.RespondJSON(msg, protocol.RecognizeResponse{Error: "invalid request"})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timeout := time.Duration(s.cfg.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		result, err := s.transcriber.Transcribe(ctx, requestFromMessage(req))
		if err != nil {
			s.bus.Logger().Warn("stt transcription failed",
				slog.Int("sequence", req.Sequence),
				slogError(err))
			s.bus.RespondJSON(msg, protocol.RecognizeResponse{Error: err.Error(), ErrorKind: KindOf(err)})
			return
		}
		s.bus.RespondJSON(msg, protocol.RecognizeResponse{
			Text:        result.Text,
			Transcripts: result.Transcripts,
			Confidence:  result.Confidence,
		})
	}()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
