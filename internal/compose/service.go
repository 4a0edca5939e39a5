package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/nats-io/nats.go"
)

const requestTimeout = 60 * time.Second

// Service answers compose requests on the bus.
type Service struct {
	serve    bool
	bus      *bus.Client
	composer *Composer
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	ready    bool
	logger   *slog.Logger
}

func NewService(parent context.Context, serve bool, busClient *bus.Client, composer *Composer, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		serve:    serve,
		bus:      busClient,
		composer: composer,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With(slog.String("component", "compose-service")),
	}
}

func (s *Service) Start() error {
	if !s.serve || !s.composer.Configured() {
		return nil
	}
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectCompose, "scribe-compose", s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe compose requests: %w", err)
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
	return !s.serve || !s.composer.Configured() || s.ready
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.ComposeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode compose request", slogError(err))
		s.bus.RespondJSON(msg, protocol.ComposeResponse{Error: "invalid request"})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
		defer cancel()

		res, err := s.composer.Compose(ctx, Request{
			Transcript:  req.Transcript,
			StyleID:     req.StyleID,
			Instruction: req.Instruction,
		})
		if err != nil {
			s.bus.RespondJSON(msg, protocol.ComposeResponse{Error: err.Error()})
			return
		}
		s.bus.RespondJSON(msg, protocol.ComposeResponse{Text: res.Text, Model: res.Model})
	}()
}
