package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// maxInlineAudio is the synchronous Recognize payload limit.
const maxInlineAudio = 10 << 20

// GoogleTranscriber calls Cloud Speech-to-Text v1. It serves both the
// batch Transcriber and the StreamRecognizer contracts from one client.
type GoogleTranscriber struct {
	client   *speech.Client
	model    string
	encoding speechpb.RecognitionConfig_AudioEncoding
}

func NewGoogleTranscriber(ctx context.Context, cfg config.STTConfig) (*GoogleTranscriber, error) {
	var opts []option.ClientOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &GoogleTranscriber{
		client:   client,
		model:    cfg.Model,
		encoding: parseEncoding(cfg.Encoding),
	}, nil
}

func (g *GoogleTranscriber) Close() error {
	return g.client.Close()
}

func (g *GoogleTranscriber) Transcribe(ctx context.Context, req Request) (Result, error) {
	audio := &speechpb.RecognitionAudio{}
	switch {
	case req.URI != "":
		audio.AudioSource = &speechpb.RecognitionAudio_Uri{Uri: req.URI}
	case len(req.Audio) > maxInlineAudio:
		return Result{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(req.Audio))
	case len(req.Audio) > 0:
		payload, err := asWAV(req)
		if err != nil {
			return Result{}, err
		}
		audio.AudioSource = &speechpb.RecognitionAudio_Content{Content: payload}
	default:
		return Result{}, errors.New("request carries no audio")
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: g.recognitionConfig(req.Language, req.SampleRate, req.Channels, req.Phrases, req.Boost),
		Audio:  audio,
	})
	if err != nil {
		return Result{}, classifyGRPC(err)
	}

	var transcripts []string
	var confidence float32
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		transcripts = append(transcripts, alts[0].GetTranscript())
		confidence = max(confidence, alts[0].GetConfidence())
	}
	return resultFromTranscripts(transcripts, float64(confidence))
}

func (g *GoogleTranscriber) recognitionConfig(language string, sampleRate, channels int, phrases []string, boost float64) *speechpb.RecognitionConfig {
	cfg := &speechpb.RecognitionConfig{
		Encoding:                   g.encoding,
		SampleRateHertz:            int32(sampleRate),
		AudioChannelCount:          int32(max(channels, 1)),
		LanguageCode:               language,
		Model:                      g.model,
		EnableAutomaticPunctuation: true,
	}
	if len(phrases) > 0 {
		cfg.SpeechContexts = []*speechpb.SpeechContext{{
			Phrases: phrases,
			Boost:   float32(boost),
		}}
	}
	return cfg
}

// Start opens a StreamingRecognize call with interim results enabled.
func (g *GoogleTranscriber) Start(ctx context.Context, cfg StreamConfig) (Stream, error) {
	runCtx, cancel := context.WithCancel(ctx)
	client, err := g.client.StreamingRecognize(runCtx)
	if err != nil {
		cancel()
		return nil, classifyGRPC(err)
	}
	streamCfg := g.recognitionConfig(cfg.Language, cfg.SampleRate, cfg.Channels, cfg.Phrases, cfg.Boost)
	streamCfg.Encoding = speechpb.RecognitionConfig_LINEAR16
	err = client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         streamCfg,
				InterimResults: cfg.Interim,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, classifyGRPC(err)
	}

	s := &googleStream{
		client: client,
		cancel: cancel,
		events: make(chan StreamEvent, 32),
	}
	go s.receive()
	return s, nil
}

type googleStream struct {
	client speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc
	events chan StreamEvent

	sendMu  sync.Mutex
	stopped bool
}

func (s *googleStream) SendAudio(pcm []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.stopped {
		return errors.New("stream stopped")
	}
	return s.client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: pcm},
	})
}

func (s *googleStream) Events() <-chan StreamEvent {
	return s.events
}

// Stop half-closes the call. The service still returns results for audio
// already sent; receive closes Events when the call ends. Cancelling the
// caller's context aborts it outright.
func (s *googleStream) Stop() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.stopped {
		s.stopped = true
		_ = s.client.CloseSend()
	}
}

func (s *googleStream) receive() {
	defer close(s.events)
	defer s.cancel()
	for {
		resp, err := s.client.Recv()
		if err == io.EOF {
			s.events <- StreamEvent{Type: EventEnd}
			return
		}
		if err != nil {
			s.events <- streamErrorEvent(err)
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != int32(codes.OK) {
			s.events <- streamErrorEvent(status.ErrorProto(st))
			return
		}
		var segments []Segment
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			segments = append(segments, Segment{
				Text:       alts[0].GetTranscript(),
				Final:      result.GetIsFinal(),
				Confidence: float64(alts[0].GetConfidence()),
			})
		}
		if len(segments) > 0 {
			s.events <- StreamEvent{Type: EventResult, Segments: segments}
		}
	}
}

// streamErrorEvent maps gRPC failures onto recognition error codes. The
// service closes long streams with OutOfRange; that is a normal end.
func streamErrorEvent(err error) StreamEvent {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.OutOfRange:
		return StreamEvent{Type: EventEnd}
	case codes.PermissionDenied:
		return StreamEvent{Type: EventError, Code: CodeNotAllowed, Err: err}
	case codes.Unauthenticated:
		return StreamEvent{Type: EventError, Code: CodeServiceNotAllowed, Err: err}
	case codes.Canceled:
		return StreamEvent{Type: EventError, Code: CodeAborted, Err: err}
	case codes.DeadlineExceeded:
		return StreamEvent{Type: EventError, Code: CodeNoSpeech, Err: err}
	default:
		return StreamEvent{Type: EventError, Code: CodeNetwork, Err: err}
	}
}

func classifyGRPC(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return Unavailable(err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return Unavailable(err)
	case codes.InvalidArgument:
		msg := strings.ToLower(st.Message())
		if strings.Contains(msg, "too long") || strings.Contains(msg, "exceeds") {
			return fmt.Errorf("%w: %s", ErrTooLarge, st.Message())
		}
		return err
	default:
		return err
	}
}

func parseEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[strings.ToUpper(name)]; ok {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}
