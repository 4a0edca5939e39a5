// Package recorder runs continuous recording sessions: it owns the capture
// stream, drives a transcription engine, restarts it when it drops out,
// stops on prolonged silence and accumulates the transcript.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-scribe/internal/capture"
	"github.com/loqalabs/loqa-scribe/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies are the collaborators a Controller drives. Exactly one of
// Transcriber or Stream is needed for a given mode.
type Dependencies struct {
	Source      capture.Source
	Capture     capture.Config
	WakeLock    capture.WakeLock
	Transcriber stt.Transcriber
	Stream      stt.StreamRecognizer
	Listeners   []Listener
}

// Controller runs at most one recording session at a time and keeps the
// transcript buffer across sessions.
type Controller struct {
	cfg       Config
	deps      Dependencies
	mode      Mode
	modeErr   error
	listeners []Listener
	log       *slog.Logger
	metrics   *metrics
	tracer    trace.Tracer

	mu     sync.Mutex
	status Status
	text   string
	cur    *session
	live   Snapshot
	last   *StopResult
	closed bool
}

func NewController(cfg Config, deps Dependencies, logger *slog.Logger) *Controller {
	cfg = cfg.withDefaults()
	if deps.WakeLock == nil {
		deps.WakeLock = capture.NopWakeLock{}
	}
	mode, modeErr := resolveMode(cfg.Mode, deps.Transcriber, deps.Stream)
	m, err := newMetrics()
	if err != nil {
		logger.Warn("recorder metrics unavailable", slogError(err))
	}
	return &Controller{
		cfg:       cfg,
		deps:      deps,
		mode:      mode,
		modeErr:   modeErr,
		listeners: deps.Listeners,
		log:       logger.With(slog.String("component", "recorder")),
		metrics:   m,
		tracer:    otel.Tracer(instrumentationName),
		status:    StatusIdle,
	}
}

// resolveMode picks the engine variant once, from what is configured.
func resolveMode(want string, tr stt.Transcriber, sr stt.StreamRecognizer) (Mode, error) {
	switch want {
	case string(ModeStreaming):
		if sr == nil {
			return "", fmt.Errorf("%w: no streaming recognizer configured", ErrUnsupportedPlatform)
		}
		return ModeStreaming, nil
	case string(ModeChunked):
		if tr == nil {
			return "", fmt.Errorf("%w: no transcriber configured", ErrUnsupportedPlatform)
		}
		return ModeChunked, nil
	case "", "auto":
		if sr != nil {
			return ModeStreaming, nil
		}
		if tr != nil {
			return ModeChunked, nil
		}
		return "", fmt.Errorf("%w: no transcription backend configured", ErrUnsupportedPlatform)
	default:
		return "", fmt.Errorf("unknown recorder mode %q", want)
	}
}

// AddListener registers l for events of sessions started afterwards.
func (c *Controller) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Mode reports the engine variant sessions will use, or an error when no
// backend is usable.
func (c *Controller) Mode() (Mode, error) {
	return c.mode, c.modeErr
}

// Start acquires the capture device and begins a session.
func (c *Controller) Start(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	case c.status != StatusIdle:
		c.mu.Unlock()
		return Snapshot{}, ErrSessionActive
	case c.modeErr != nil:
		c.mu.Unlock()
		return Snapshot{}, c.modeErr
	}
	sess := c.newSession()
	c.cur = sess
	c.status = StatusStarting
	c.live = Snapshot{SessionID: sess.id, Mode: c.mode}
	c.mu.Unlock()

	c.emit(sess, Event{Type: EventStatus, Status: StatusStarting})

	if err := c.acquire(ctx, sess); err != nil {
		c.abortStart(sess, err)
		return Snapshot{}, err
	}

	now := time.Now()
	c.mu.Lock()
	c.status = StatusRecording
	c.live.StartedAt = now
	c.live.LastActivityAt = now
	c.mu.Unlock()
	sess.startedAt = now
	sess.lastActivity = now

	c.metrics.sessionStarted(c.mode)
	c.log.Info("recording session started",
		slog.String("session_id", sess.id),
		slog.String("mode", string(c.mode)))
	c.emit(sess, Event{Type: EventStatus, Status: StatusRecording})

	go c.pump(sess)
	go c.run(sess)
	return c.Snapshot(), nil
}

// acquire opens capture, the wake lock and the first engine run. Anything
// acquired before a failure is released by abortStart.
func (c *Controller) acquire(ctx context.Context, sess *session) error {
	stream, err := c.deps.Source.Acquire(ctx, c.deps.Capture)
	if err != nil {
		return err
	}
	sess.stream = stream

	release, err := c.deps.WakeLock.Acquire(ctx)
	if err != nil {
		c.log.Warn("wake lock unavailable", slog.String("session_id", sess.id), slogError(err))
	} else {
		sess.releaseWake = release
	}

	switch c.mode {
	case ModeStreaming:
		sess.engine = newStreamingEngine(c.deps.Stream, c.cfg, sess.post, c.log)
	default:
		sess.engine = newChunkedEngine(c.deps.Transcriber, c.cfg, sess.post, c.log, c.tracer)
	}
	if err := sess.engine.Start(sess.ctx); err != nil {
		return fmt.Errorf("start recognizer: %w", err)
	}
	sess.policy.Restarted(time.Now())
	return nil
}

func (c *Controller) abortStart(sess *session, cause error) {
	if sess.engine != nil {
		sess.engine.Finish(context.Background())
	}
	c.releaseCapture(sess)
	close(sess.quit)
	close(sess.pumpExited)
	sess.cancel()
	c.releaseWake(sess)

	reason := ReasonCaptureLost
	if errors.Is(cause, ErrPermissionDenied) {
		reason = ReasonPermission
		c.emit(sess, Event{Type: EventNotice, Notice: ptr(newNotice(NoticePermissionDenied))})
	}
	c.log.Warn("recording session failed to start",
		slog.String("session_id", sess.id),
		slogError(cause))

	c.finishSession(sess, StopResult{SessionID: sess.id, Reason: reason, Err: cause})
}

// Stop ends the current session and waits for teardown, including the
// final chunk in chunked mode. Concurrent calls share one teardown.
func (c *Controller) Stop(ctx context.Context) (StopResult, error) {
	return c.stop(ctx, ReasonUser)
}

func (c *Controller) stop(ctx context.Context, reason StopReason) (StopResult, error) {
	c.mu.Lock()
	sess := c.cur
	c.mu.Unlock()
	if sess == nil {
		return StopResult{}, ErrNoActiveSession
	}
	sess.requestStop(stopRequest{reason: reason})
	return sess.wait(ctx)
}

// Wait blocks until the current session ends on its own or is stopped.
// With no session running it returns the last result.
func (c *Controller) Wait(ctx context.Context) (StopResult, error) {
	c.mu.Lock()
	sess, last := c.cur, c.last
	c.mu.Unlock()
	if sess != nil {
		return sess.wait(ctx)
	}
	if last != nil {
		return *last, nil
	}
	return StopResult{}, ErrNoActiveSession
}

// Close stops any running session and refuses new ones.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_, err := c.stop(ctx, ReasonShutdown)
	if errors.Is(err, ErrNoActiveSession) {
		return nil
	}
	return err
}

// Clear empties the transcript. It is serialized with appends and allowed
// while recording.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.text = ""
	sess := c.cur
	c.mu.Unlock()
	c.emit(sess, Event{Type: EventTranscript, Buffer: ""})
}

// SetText replaces the transcript. Edits are only accepted between sessions.
func (c *Controller) SetText(text string) error {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.text = text
	c.mu.Unlock()
	c.emit(nil, Event{Type: EventTranscript, Buffer: text})
	return nil
}

func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.live
	snap.Status = c.status
	snap.Text = c.text
	if c.status == StatusIdle {
		snap = Snapshot{Status: StatusIdle, Mode: c.mode, Text: c.text}
	}
	return snap
}

// appendText adds a final segment on its own line. Blank segments are dropped.
func (c *Controller) appendText(sess *session, segment string) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return
	}
	c.mu.Lock()
	if c.text != "" {
		c.text += "\n"
	}
	c.text += segment
	buffer := c.text
	c.mu.Unlock()
	sess.appended++
	c.emit(sess, Event{Type: EventTranscript, Text: segment, Buffer: buffer})
}

func (c *Controller) emit(sess *session, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if sess != nil && ev.SessionID == "" {
		ev.SessionID = sess.id
	}
	c.mu.Lock()
	listeners := c.listeners
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnEvent(ev)
	}
}

func (c *Controller) releaseCapture(sess *session) {
	if sess.stream == nil {
		return
	}
	sess.releaseOnce.Do(func() {
		if err := sess.stream.Release(); err != nil {
			c.log.Warn("capture release failed", slog.String("session_id", sess.id), slogError(err))
		}
	})
}

func (c *Controller) releaseWake(sess *session) {
	if sess.releaseWake == nil {
		return
	}
	if err := sess.releaseWake(); err != nil {
		c.log.Warn("wake lock release failed", slog.String("session_id", sess.id), slogError(err))
	}
	sess.releaseWake = nil
}

// finishSession moves the controller back to idle and wakes waiters.
func (c *Controller) finishSession(sess *session, result StopResult) {
	c.mu.Lock()
	c.status = StatusIdle
	c.cur = nil
	result.Text = c.text
	c.last = &result
	c.mu.Unlock()

	sess.result = result
	close(sess.done)

	c.emit(sess, Event{Type: EventStatus, Status: StatusIdle})
	c.emit(sess, Event{Type: EventStopped, Status: StatusIdle, Stop: &result})
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

func ptr[T any](v T) *T {
	return &v
}

// session is the per-start state. Fields below the channels are owned by
// the session goroutine once it runs.
type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	events     chan any
	stopCh     chan stopRequest
	quit       chan struct{}
	pumpExited chan struct{}
	done       chan struct{}
	result     StopResult

	stream      capture.Stream
	releaseOnce sync.Once
	releaseWake func() error
	engine      engine

	meter          *ActivityMeter
	policy         *RestartPolicy
	seq            *sequencer
	startedAt      time.Time
	lastActivity   time.Time
	unanswered     time.Time
	restartTimer   *time.Timer
	restartToken   int
	restartPending bool
	restarts       int
	appended       int
}

type stopRequest struct {
	reason StopReason
	err    error
}

type restartDue struct {
	token int
	cause RestartCause
}

type audioEvent struct {
	pcm []byte
}

type pumpDone struct {
	err error
}

func (c *Controller) newSession() *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:         uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan any, 64),
		stopCh:     make(chan stopRequest, 1),
		quit:       make(chan struct{}),
		pumpExited: make(chan struct{}),
		done:       make(chan struct{}),
		meter:      NewActivityMeter(c.cfg.MeterWindow),
		policy:     c.cfg.restartPolicy(),
		seq:        newSequencer(),
	}
}

// post hands ev to the session goroutine. It fails once teardown began.
func (s *session) post(ev any) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.quit:
		return false
	}
}

func (s *session) requestStop(req stopRequest) {
	select {
	case s.stopCh <- req:
	default:
	}
}

func (s *session) wait(ctx context.Context) (StopResult, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return StopResult{}, ctx.Err()
	}
}
