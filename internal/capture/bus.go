package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/nats-io/nats.go"
)

// BusSource reads PCM frames that an edge device publishes on
// audio.frame.<stream>.
type BusSource struct {
	bus    *bus.Client
	stream string
}

func NewBusSource(client *bus.Client, stream string) *BusSource {
	return &BusSource{bus: client, stream: stream}
}

func (b *BusSource) Acquire(ctx context.Context, cfg Config) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.bus.Healthy() {
		return nil, fmt.Errorf("%w: bus disconnected", ErrDeviceUnavailable)
	}
	cfg = cfg.withDefaults()

	pr, pw := io.Pipe()
	s := &busStream{pr: pr, pw: pw, cfg: cfg, log: b.bus.Logger()}
	sub, err := b.bus.Conn().Subscribe(protocol.AudioSubject(b.stream), s.handleFrame)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe audio frames: %v", ErrDeviceUnavailable, err)
	}
	s.sub = sub
	return s, nil
}

type busStream struct {
	pr  *io.PipeReader
	pw  *io.PipeWriter
	sub *nats.Subscription
	cfg Config
	log *slog.Logger

	releaseOnce sync.Once
	formatWarn  sync.Once
}

func (s *busStream) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slog.String("error", err.Error()))
		return
	}
	if (frame.SampleRate != 0 && frame.SampleRate != s.cfg.SampleRate) || (frame.Channels != 0 && frame.Channels != s.cfg.Channels) {
		s.formatWarn.Do(func() {
			s.log.Warn("audio frame format mismatch",
				slog.Int("sample_rate", frame.SampleRate),
				slog.Int("channels", frame.Channels))
		})
	}
	if len(frame.PCM) > 0 {
		if _, err := s.pw.Write(frame.PCM); err != nil {
			return
		}
	}
	if frame.Final {
		_ = s.pw.Close()
	}
}

func (s *busStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

func (s *busStream) Release() error {
	var err error
	s.releaseOnce.Do(func() {
		if s.sub != nil {
			err = s.sub.Unsubscribe()
		}
		_ = s.pr.Close()
		_ = s.pw.Close()
	})
	return err
}
