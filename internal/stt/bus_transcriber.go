package stt

import (
	"context"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
)

type busTranscriber struct {
	bus *bus.Client
}

// NewBusTranscriber forwards requests to whichever node serves protocol.SubjectRecognize.
func NewBusTranscriber(client *bus.Client) Transcriber {
	return &busTranscriber{bus: client}
}

func (b *busTranscriber) Transcribe(ctx context.Context, req Request) (Result, error) {
	msg := protocol.RecognizeRequest{
		Audio:      req.Audio,
		URI:        req.URI,
		MimeType:   req.MimeType,
		Language:   req.Language,
		SampleRate: req.SampleRate,
		Channels:   req.Channels,
		Sequence:   req.Sequence,
		DurationMS: req.Duration.Milliseconds(),
		Phrases:    req.Phrases,
		Boost:      req.Boost,
	}
	var resp protocol.RecognizeResponse
	if err := b.bus.RequestJSON(ctx, protocol.SubjectRecognize, msg, &resp); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, Unavailable(err)
	}
	if resp.Error != "" {
		return Result{}, FromKind(resp.ErrorKind, resp.Error)
	}
	return Result{Text: resp.Text, Transcripts: resp.Transcripts, Confidence: resp.Confidence}, nil
}

func requestFromMessage(msg protocol.RecognizeRequest) Request {
	return Request{
		Audio:      msg.Audio,
		URI:        msg.URI,
		MimeType:   msg.MimeType,
		Language:   msg.Language,
		SampleRate: msg.SampleRate,
		Channels:   msg.Channels,
		Sequence:   msg.Sequence,
		Duration:   time.Duration(msg.DurationMS) * time.Millisecond,
		Phrases:    msg.Phrases,
		Boost:      msg.Boost,
	}
}
