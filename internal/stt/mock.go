package stt

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type mockTranscriber struct{}

// NewMockTranscriber returns a transcriber that describes the audio it received.
func NewMockTranscriber() Transcriber {
	return &mockTranscriber{}
}

func (m *mockTranscriber) Transcribe(_ context.Context, req Request) (Result, error) {
	if len(req.Audio) == 0 && req.URI == "" {
		return Result{}, ErrUnrecognized
	}
	text := fmt.Sprintf("[chunk %d transcript length=%d]", req.Sequence, len(req.Audio))
	if req.URI != "" {
		text = fmt.Sprintf("[transcript uri=%s]", req.URI)
	}
	return Result{Text: text, Transcripts: []string{text}}, nil
}

type mockStreamRecognizer struct {
	every time.Duration
}

// NewMockStreamRecognizer emits one final segment for every interval of
// audio fed to a run.
func NewMockStreamRecognizer(every time.Duration) StreamRecognizer {
	if every <= 0 {
		every = 2 * time.Second
	}
	return &mockStreamRecognizer{every: every}
}

func (m *mockStreamRecognizer) Start(ctx context.Context, cfg StreamConfig) (Stream, error) {
	sampleRate, channels := cfg.SampleRate, cfg.Channels
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	s := &mockStream{
		events:    make(chan StreamEvent, 16),
		threshold: PCMBytes(m.every, sampleRate, channels),
		interim:   cfg.Interim,
	}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return s, nil
}

type mockStream struct {
	mu        sync.Mutex
	events    chan StreamEvent
	threshold int
	pending   int
	segments  int
	interim   bool
	closed    bool
}

func (s *mockStream) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream stopped")
	}
	s.pending += len(pcm)
	if s.interim && s.pending < s.threshold {
		s.emit(StreamEvent{Type: EventResult, Segments: []Segment{{Text: fmt.Sprintf("[interim length=%d]", s.pending)}}})
	}
	for s.threshold > 0 && s.pending >= s.threshold {
		s.pending -= s.threshold
		s.segments++
		s.emit(StreamEvent{Type: EventResult, Segments: []Segment{{
			Text:  fmt.Sprintf("[stream segment %d]", s.segments),
			Final: true,
		}}})
	}
	return nil
}

func (s *mockStream) emit(ev StreamEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *mockStream) Events() <-chan StreamEvent {
	return s.events
}

func (s *mockStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
