package stt

import (
	"context"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
)

// Providers holds the recognizers selected by configuration. Stream is nil
// when no continuous recognition backend is configured. Closers release
// provider clients on shutdown.
type Providers struct {
	Transcriber Transcriber
	Stream      StreamRecognizer
	closers     []func() error
}

func (p *Providers) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewProviders builds the transcriber and stream recognizer named by cfg.
func NewProviders(ctx context.Context, cfg config.STTConfig, busClient *bus.Client) (*Providers, error) {
	p := &Providers{}
	if !cfg.Enabled {
		return p, nil
	}

	var google *GoogleTranscriber
	getGoogle := func() (*GoogleTranscriber, error) {
		if google != nil {
			return google, nil
		}
		g, err := NewGoogleTranscriber(ctx, cfg)
		if err != nil {
			return nil, err
		}
		google = g
		p.closers = append(p.closers, g.Close)
		return g, nil
	}

	switch cfg.Mode {
	case "mock":
		p.Transcriber = NewMockTranscriber()
	case "exec":
		t, err := NewExecTranscriber(cfg)
		if err != nil {
			return nil, err
		}
		p.Transcriber = t
	case "http":
		t, err := NewHTTPTranscriber(cfg)
		if err != nil {
			return nil, err
		}
		p.Transcriber = t
	case "google":
		g, err := getGoogle()
		if err != nil {
			return nil, err
		}
		p.Transcriber = g
	case "bus":
		if busClient == nil {
			return nil, fmt.Errorf("stt mode=bus requires a bus connection")
		}
		p.Transcriber = NewBusTranscriber(busClient)
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}

	switch cfg.StreamMode {
	case "", "none":
	case "mock":
		p.Stream = NewMockStreamRecognizer(2 * time.Second)
	case "google":
		g, err := getGoogle()
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.Stream = g
	default:
		_ = p.Close()
		return nil, fmt.Errorf("unsupported stt stream mode %q", cfg.StreamMode)
	}
	return p, nil
}
