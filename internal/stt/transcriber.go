package stt

import (
	"context"
	"time"
)

// Request is one unit of audio to recognize. Audio carries the payload
// inline; URI points at remotely stored audio instead.
type Request struct {
	Audio      []byte
	URI        string
	MimeType   string
	Language   string
	SampleRate int
	Channels   int
	Sequence   int
	Duration   time.Duration
	Phrases    []string
	Boost      float64
}

// Result captures recognizer output. Text joins all transcripts.
type Result struct {
	Text        string
	Transcripts []string
	Confidence  float64
}

// Transcriber turns a complete audio payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// StreamConfig configures a continuous recognition run.
type StreamConfig struct {
	Language   string
	SampleRate int
	Channels   int
	Phrases    []string
	Boost      float64
	Interim    bool
}

// StreamRecognizer starts continuous recognition runs. A run ends on its
// own (End), fails (Error), or is stopped by the caller.
type StreamRecognizer interface {
	Start(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream is a single recognition run. Events is closed after the terminal
// End or Error event. Stop ends the audio; results for audio already sent
// may still arrive before Events closes.
type Stream interface {
	SendAudio(pcm []byte) error
	Events() <-chan StreamEvent
	Stop()
}

type StreamEventType int

const (
	EventResult StreamEventType = iota
	EventEnd
	EventError
)

func (t StreamEventType) String() string {
	switch t {
	case EventResult:
		return "result"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Segment is one recognized span; interim segments may be revised later.
type Segment struct {
	Text       string
	Final      bool
	Confidence float64
}

type StreamEvent struct {
	Type     StreamEventType
	Segments []Segment
	Code     string
	Err      error
}

// Error codes reported on EventError.
const (
	CodeNoSpeech          = "no-speech"
	CodeNetwork           = "network"
	CodeAborted           = "aborted"
	CodeAudioCapture      = "audio-capture"
	CodePermissionDenied  = "permission-denied"
	CodeNotAllowed        = "not-allowed"
	CodeServiceNotAllowed = "service-not-allowed"
)
