package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/stt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// engine is the transcription variant driven by a session. All methods
// are called from the session goroutine only.
type engine interface {
	Mode() Mode
	// Start attaches a fresh recognition run.
	Start(ctx context.Context) error
	// Feed hands captured PCM to the current run.
	Feed(pcm []byte) error
	// Tail hands over PCM captured before stop. It belongs to the final
	// flush and never starts new background work.
	Tail(pcm []byte)
	// Alive reports whether a run is attached and still takes audio.
	Alive() bool
	// Current reports whether events tagged with gen belong to the latest run.
	Current(gen int) bool
	// Detach forgets the current run after it ended on its own.
	Detach()
	// Finish tears the engine down. A streaming run is half-closed and
	// the finals it still delivers are returned; a chunked engine cancels
	// in-flight chunks and transcribes its remaining audio.
	Finish(ctx context.Context) finalChunk
}

type finalChunk struct {
	Attempted bool
	Text      string
	Err       error
	Chunk     AudioChunk
	// Segments are finals a streaming run delivered after stop.
	Segments []string
}

// loop events posted by engines.
type streamEvent struct {
	gen int
	ev  stt.StreamEvent
}

type streamClosed struct {
	gen int
}

type chunkDone struct {
	chunk   AudioChunk
	text    string
	err     error
	latency time.Duration
}

type poster func(ev any) bool

// streamingEngine drives a continuous recognizer. Each Start opens a new
// run tagged with a generation; events from older runs are discarded.
type streamingEngine struct {
	rec  stt.StreamRecognizer
	cfg  stt.StreamConfig
	post poster
	log  *slog.Logger

	gen    int
	stream stt.Stream
	cancel context.CancelFunc
	broken bool
	wg     sync.WaitGroup

	tailMu sync.Mutex
	tails  map[int][]stt.StreamEvent
}

func newStreamingEngine(rec stt.StreamRecognizer, cfg Config, post poster, log *slog.Logger) *streamingEngine {
	return &streamingEngine{
		rec: rec,
		cfg: stt.StreamConfig{
			Language:   cfg.Language,
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Phrases:    cfg.Phrases,
			Boost:      cfg.Boost,
			Interim:    true,
		},
		post: post,
		log:  log,
	}
}

func (e *streamingEngine) Mode() Mode { return ModeStreaming }

func (e *streamingEngine) Start(ctx context.Context) error {
	e.halt()
	runCtx, cancel := context.WithCancel(ctx)
	stream, err := e.rec.Start(runCtx, e.cfg)
	if err != nil {
		cancel()
		return err
	}
	e.stream, e.cancel, e.broken = stream, cancel, false
	e.wg.Add(1)
	go e.forward(e.gen, stream)
	return nil
}

// forward relays run events to the session goroutine. Once the session
// stops taking events, the rest of the run is kept for Finish.
func (e *streamingEngine) forward(gen int, stream stt.Stream) {
	defer e.wg.Done()
	events := stream.Events()
	for ev := range events {
		if e.post(streamEvent{gen: gen, ev: ev}) {
			continue
		}
		e.keep(gen, ev)
		for ev := range events {
			e.keep(gen, ev)
		}
		return
	}
	e.post(streamClosed{gen: gen})
}

func (e *streamingEngine) keep(gen int, ev stt.StreamEvent) {
	e.tailMu.Lock()
	defer e.tailMu.Unlock()
	if e.tails == nil {
		e.tails = make(map[int][]stt.StreamEvent)
	}
	e.tails[gen] = append(e.tails[gen], ev)
}

func (e *streamingEngine) Feed(pcm []byte) error {
	if e.stream == nil || e.broken {
		return nil
	}
	if err := e.stream.SendAudio(pcm); err != nil {
		// A run that refuses audio is dead even if it never reports so;
		// the watchdog replaces it.
		e.broken = true
		e.log.Debug("send audio to recognizer failed", slog.String("error", err.Error()))
	}
	return nil
}

func (e *streamingEngine) Tail(pcm []byte) { _ = e.Feed(pcm) }

func (e *streamingEngine) Alive() bool { return e.stream != nil && !e.broken }

func (e *streamingEngine) Current(gen int) bool { return gen == e.gen }

func (e *streamingEngine) Detach() { e.halt() }

// halt stops the attached run and bumps the generation so its remaining
// events are ignored.
func (e *streamingEngine) halt() {
	e.gen++
	if e.stream == nil {
		return
	}
	e.stream.Stop()
	e.cancel()
	e.stream, e.cancel = nil, nil
}

// Finish half-closes the run and waits, bounded by ctx, for it to deliver
// what it already heard. The generation is kept so results still buffered
// for the session goroutine count as current.
func (e *streamingEngine) Finish(ctx context.Context) finalChunk {
	gen := e.gen
	if e.stream != nil {
		e.stream.Stop()
		drained := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			e.log.Warn("recognizer did not finish before the deadline")
		}
		e.cancel()
		e.stream, e.cancel = nil, nil
	}
	e.wg.Wait()

	e.tailMu.Lock()
	tail := e.tails[gen]
	e.tails = nil
	e.tailMu.Unlock()

	var final finalChunk
	for _, ev := range tail {
		if ev.Type != stt.EventResult {
			continue
		}
		for _, seg := range ev.Segments {
			if seg.Final {
				final.Segments = append(final.Segments, seg.Text)
			}
		}
	}
	return final
}

// chunkedEngine cuts the PCM stream into fixed-duration chunks and
// transcribes each one in the background.
type chunkedEngine struct {
	tr     stt.Transcriber
	cfg    Config
	post   poster
	log    *slog.Logger
	tracer trace.Tracer

	chunkBytes int
	buf        []byte
	bufStart   time.Time
	seq        int
	dispatched time.Duration
	exceeded   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newChunkedEngine(tr stt.Transcriber, cfg Config, post poster, log *slog.Logger, tracer trace.Tracer) *chunkedEngine {
	return &chunkedEngine{
		tr:         tr,
		cfg:        cfg,
		post:       post,
		log:        log,
		tracer:     tracer,
		chunkBytes: max(stt.PCMBytes(cfg.ChunkDuration, cfg.SampleRate, cfg.Channels), 2),
	}
}

func (e *chunkedEngine) Mode() Mode { return ModeChunked }

// Start is idempotent: a chunked engine has no per-run state to respawn.
func (e *chunkedEngine) Start(ctx context.Context) error {
	if e.ctx == nil {
		e.ctx, e.cancel = context.WithCancel(ctx)
	}
	return nil
}

func (e *chunkedEngine) Feed(pcm []byte) error {
	if e.exceeded {
		return ErrDurationExceeded
	}
	if len(e.buf) == 0 {
		e.bufStart = time.Now()
	}
	e.buf = append(e.buf, pcm...)
	for len(e.buf) >= e.chunkBytes {
		duration := stt.PCMDuration(e.chunkBytes, e.cfg.SampleRate, e.cfg.Channels)
		if e.dispatched+duration > e.cfg.MaxDuration {
			e.exceeded = true
			e.buf = nil
			return ErrDurationExceeded
		}
		pcmChunk := make([]byte, e.chunkBytes)
		copy(pcmChunk, e.buf)
		e.buf = append(e.buf[:0], e.buf[e.chunkBytes:]...)
		capturedAt := e.bufStart
		e.bufStart = time.Now()
		e.dispatched += duration
		e.seq++
		e.dispatch(pcmChunk, AudioChunk{
			Sequence:   e.seq,
			ByteSize:   len(pcmChunk),
			MimeType:   stt.MimeWAV,
			CapturedAt: capturedAt,
			Duration:   duration,
		})
	}
	return nil
}

func (e *chunkedEngine) Tail(pcm []byte) {
	if e.exceeded {
		return
	}
	if len(e.buf) == 0 {
		e.bufStart = time.Now()
	}
	e.buf = append(e.buf, pcm...)
}

func (e *chunkedEngine) dispatch(pcm []byte, chunk AudioChunk) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		started := time.Now()
		text, err := e.transcribe(e.ctx, pcm, chunk)
		e.post(chunkDone{chunk: chunk, text: text, err: err, latency: time.Since(started)})
	}()
}

// transcribe encodes and sends one chunk, retrying transient failures.
// Unrecognized audio yields empty text.
func (e *chunkedEngine) transcribe(ctx context.Context, pcm []byte, chunk AudioChunk) (string, error) {
	ctx, span := e.tracer.Start(ctx, "recorder.chunk.transcribe", trace.WithAttributes(
		attribute.Int("chunk.sequence", chunk.Sequence),
		attribute.Int("chunk.bytes", chunk.ByteSize),
	))
	defer span.End()

	wav, err := stt.EncodeWAV(pcm, e.cfg.SampleRate, e.cfg.Channels)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	req := stt.Request{
		Audio:      wav,
		MimeType:   chunk.MimeType,
		Language:   e.cfg.Language,
		SampleRate: e.cfg.SampleRate,
		Channels:   e.cfg.Channels,
		Sequence:   chunk.Sequence,
		Duration:   chunk.Duration,
		Phrases:    e.cfg.Phrases,
		Boost:      e.cfg.Boost,
	}

	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
		res, err := e.tr.Transcribe(attemptCtx, req)
		cancel()
		switch {
		case err == nil:
			return strings.TrimSpace(res.Text), nil
		case errors.Is(err, stt.ErrUnrecognized):
			return "", nil
		case errors.Is(err, stt.ErrServiceUnavailable) && attempt < e.cfg.ChunkRetries && ctx.Err() == nil:
			e.log.Debug("retrying chunk transcription",
				slog.Int("sequence", chunk.Sequence),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
	}
}

// Alive is true once started: each chunk is its own bounded request, so
// there is no long-lived run to lose.
func (e *chunkedEngine) Alive() bool { return e.ctx != nil }

func (e *chunkedEngine) Current(int) bool { return false }

func (e *chunkedEngine) Detach() {}

func (e *chunkedEngine) Finish(ctx context.Context) finalChunk {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	if e.exceeded || len(e.buf) < 2 {
		return finalChunk{}
	}
	pcm := e.buf[:len(e.buf)-len(e.buf)%2]
	e.buf = nil
	duration := stt.PCMDuration(len(pcm), e.cfg.SampleRate, e.cfg.Channels)
	e.seq++
	chunk := AudioChunk{
		Sequence:   e.seq,
		ByteSize:   len(pcm),
		MimeType:   stt.MimeWAV,
		CapturedAt: e.bufStart,
		Duration:   duration,
	}
	if e.dispatched+duration > e.cfg.MaxDuration {
		return finalChunk{Attempted: true, Chunk: chunk, Err: ErrDurationExceeded}
	}
	e.dispatched += duration
	text, err := e.transcribe(ctx, pcm, chunk)
	if err != nil {
		err = fmt.Errorf("final chunk %d: %w", chunk.Sequence, err)
	}
	return finalChunk{Attempted: true, Text: text, Err: err, Chunk: chunk}
}
