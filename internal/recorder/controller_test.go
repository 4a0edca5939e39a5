package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/capture"
	"github.com/loqalabs/loqa-scribe/internal/stt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSource hands out streams producing a constant tone, paced so a read
// of 100ms of audio takes about 10ms.
type fakeSource struct {
	amplitude int16
	limit     int // bytes before the stream goes quiet; 0 is unlimited
	eof       bool
	err       error

	releases atomic.Int32
	acquires atomic.Int32
}

func (s *fakeSource) Acquire(ctx context.Context, cfg capture.Config) (capture.Stream, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.acquires.Add(1)
	return &fakeStream{src: s, released: make(chan struct{})}, nil
}

type fakeStream struct {
	src      *fakeSource
	sent     int
	released chan struct{}
	once     sync.Once
}

func (f *fakeStream) Read(p []byte) (int, error) {
	if f.src.limit > 0 && f.sent >= f.src.limit {
		if f.src.eof {
			return 0, io.EOF
		}
		<-f.released
		return 0, io.EOF
	}
	select {
	case <-f.released:
		return 0, io.EOF
	case <-time.After(10 * time.Millisecond):
	}
	n := len(p) - len(p)%2
	if f.src.limit > 0 && f.sent+n > f.src.limit {
		n = f.src.limit - f.sent
	}
	copy(p, tone(n/2, f.src.amplitude))
	f.sent += n
	return n, nil
}

func (f *fakeStream) Release() error {
	f.once.Do(func() {
		f.src.releases.Add(1)
		close(f.released)
	})
	return nil
}

// fakeRecognizer opens streams the test drives by hand. failAll makes
// every stream report a network error right away; failSend makes streams
// refuse audio without reporting anything; flushOnStop is a final the
// stream only delivers once it is half-closed.
type fakeRecognizer struct {
	failAll     bool
	failSend    bool
	flushOnStop string
	started     chan *fakeRecStream
	starts      atomic.Int32
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{started: make(chan *fakeRecStream, 32)}
}

func (r *fakeRecognizer) Start(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	r.starts.Add(1)
	s := &fakeRecStream{events: make(chan stt.StreamEvent, 8), flush: r.flushOnStop}
	if r.failSend {
		s.sendErr = errors.New("stream gone")
	}
	if r.failAll {
		s.events <- stt.StreamEvent{Type: stt.EventError, Code: stt.CodeNetwork}
	}
	select {
	case r.started <- s:
	default:
	}
	return s, nil
}

type fakeRecStream struct {
	events  chan stt.StreamEvent
	sendErr error
	flush   string
	mu      sync.Mutex
	closed  bool
}

func (s *fakeRecStream) SendAudio([]byte) error { return s.sendErr }

func (s *fakeRecStream) Events() <-chan stt.StreamEvent { return s.events }

func (s *fakeRecStream) emit(ev stt.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- ev
	}
}

func (s *fakeRecStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		if s.flush != "" {
			s.events <- stt.StreamEvent{Type: stt.EventResult, Segments: []stt.Segment{{Text: s.flush, Final: true}}}
		}
		close(s.events)
	}
}

// fakeTranscriber answers chunk requests after a per-sequence delay.
type fakeTranscriber struct {
	delays map[int]time.Duration
	empty  bool
	calls  atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	f.calls.Add(1)
	select {
	case <-time.After(f.delays[req.Sequence]):
	case <-ctx.Done():
		return stt.Result{}, ctx.Err()
	}
	if f.empty {
		return stt.Result{}, stt.ErrUnrecognized
	}
	return stt.Result{Text: fmt.Sprintf("chunk-%d", req.Sequence)}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(match func(Event) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func (l *eventLog) waitFor(t *testing.T, what string, match func(Event) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if l.count(match) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func isNotice(kind NoticeKind) func(Event) bool {
	return func(ev Event) bool { return ev.Type == EventNotice && ev.Notice != nil && ev.Notice.Kind == kind }
}

func testConfig(mode Mode) Config {
	cfg := DefaultConfig()
	cfg.Mode = string(mode)
	cfg.MeterInterval = 20 * time.Millisecond
	cfg.RestartBase = 5 * time.Millisecond
	cfg.RestartStep = 5 * time.Millisecond
	cfg.RestartMax = 50 * time.Millisecond
	cfg.SilenceRestart = 5 * time.Millisecond
	cfg.ChunkDuration = 100 * time.Millisecond
	cfg.DispatchTimeout = 2 * time.Second
	return cfg
}

func waitResult(t *testing.T, c *Controller) StopResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return res
}

func TestStreamingSessionAppendsFinals(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	rec := newFakeRecognizer()
	events := &eventLog{}
	c := NewController(testConfig(ModeStreaming), Dependencies{
		Source:    src,
		Stream:    rec,
		Listeners: []Listener{events},
	}, testLogger())

	snap, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.Status != StatusRecording || snap.Mode != ModeStreaming {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	stream := <-rec.started

	deadline := time.Now().Add(2 * time.Second)
	for c.Snapshot().Level <= 0.008 {
		if time.Now().After(deadline) {
			t.Fatalf("activity level never rose above threshold: %+v", c.Snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}

	stream.emit(stt.StreamEvent{Type: stt.EventResult, Segments: []stt.Segment{{Text: "hel"}}})
	stream.emit(stt.StreamEvent{Type: stt.EventResult, Segments: []stt.Segment{{Text: " hello world ", Final: true}}})
	events.waitFor(t, "transcript", func(ev Event) bool { return ev.Type == EventTranscript })

	res, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Reason != ReasonUser || res.Err != nil {
		t.Fatalf("unexpected stop result %+v", res)
	}
	if c.Text() != "hello world" || res.Text != "hello world" {
		t.Fatalf("expected transcript %q, got %q", "hello world", c.Text())
	}
	if c.Snapshot().Status != StatusIdle {
		t.Fatalf("expected idle after stop")
	}
	if got := src.releases.Load(); got != 1 {
		t.Fatalf("expected capture released once, got %d", got)
	}
	if events.count(func(ev Event) bool { return ev.Type == EventInterim && ev.Text == "hel" }) != 1 {
		t.Fatalf("expected interim event for partial result")
	}
}

func TestStopKeepsFinalsHeardBeforeStop(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	rec := newFakeRecognizer()
	c := NewController(testConfig(ModeStreaming), Dependencies{Source: src, Stream: rec}, testLogger())

	for i := 0; i < 20; i++ {
		c.Clear()
		if _, err := c.Start(context.Background()); err != nil {
			t.Fatalf("session %d: start: %v", i, err)
		}
		stream := <-rec.started
		stream.emit(stt.StreamEvent{Type: stt.EventResult, Segments: []stt.Segment{{Text: "hello world", Final: true}}})
		res, err := c.Stop(context.Background())
		if err != nil {
			t.Fatalf("session %d: stop: %v", i, err)
		}
		if res.Text != "hello world" || c.Text() != "hello world" {
			t.Fatalf("session %d: expected final kept, got %q", i, res.Text)
		}
	}
}

func TestStopCollectsFinalsFromHalfClosedRun(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	rec := newFakeRecognizer()
	rec.flushOnStop = "last words"
	events := &eventLog{}
	c := NewController(testConfig(ModeStreaming), Dependencies{
		Source: src, Stream: rec, Listeners: []Listener{events},
	}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := <-rec.started
	stream.emit(stt.StreamEvent{Type: stt.EventResult, Segments: []stt.Segment{{Text: "first", Final: true}}})

	res, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if want := "first\nlast words"; res.Text != want {
		t.Fatalf("expected %q, got %q", want, res.Text)
	}
	if events.count(func(ev Event) bool { return ev.Type == EventTranscript && ev.Text == "last words" }) != 1 {
		t.Fatalf("expected a transcript event for the flushed final")
	}
}

func TestWatchdogReplacesStalledRun(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	rec := newFakeRecognizer()
	cfg := testConfig(ModeStreaming)
	cfg.WatchdogInterval = 30 * time.Millisecond
	cfg.StallTimeout = 150 * time.Millisecond
	events := &eventLog{}
	c := NewController(cfg, Dependencies{
		Source: src, Stream: rec, Listeners: []Listener{events},
	}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := <-rec.started

	select {
	case <-rec.started:
	case <-time.After(3 * time.Second):
		t.Fatal("silent recognizer was never replaced")
	}
	events.waitFor(t, "watchdog restart", func(ev Event) bool {
		return ev.Type == EventRestart && ev.Restart.Cause == CauseWatchdog
	})
	first.mu.Lock()
	stopped := first.closed
	first.mu.Unlock()
	if !stopped {
		t.Fatalf("expected the stalled run to be stopped")
	}
	if got := c.Snapshot().RestartCount; got != 0 {
		t.Fatalf("watchdog restarts are not rapid error restarts, got count %d", got)
	}
	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestWatchdogReplacesRunRefusingAudio(t *testing.T) {
	src := &fakeSource{amplitude: 0}
	rec := newFakeRecognizer()
	rec.failSend = true
	cfg := testConfig(ModeStreaming)
	cfg.WatchdogInterval = 30 * time.Millisecond
	cfg.StallTimeout = time.Minute
	events := &eventLog{}
	c := NewController(cfg, Dependencies{
		Source: src, Stream: rec, Listeners: []Listener{events},
	}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for rec.starts.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("run refusing audio was never replaced")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if events.count(func(ev Event) bool { return ev.Type == EventRestart && ev.Restart.Cause == CauseWatchdog }) == 0 {
		t.Fatalf("expected a watchdog restart event")
	}
	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStreamingEndRestartsAndKeepsOrder(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	rec := newFakeRecognizer()
	events := &eventLog{}
	c := NewController(testConfig(ModeStreaming), Dependencies{
		Source: src, Stream: rec, Listeners: []Listener{events},
	}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	first := <-rec.started
	first.emit(stt.StreamEvent{Type: stt.EventResult, Segments: []stt.Segment{{Text: "one", Final: true}}})
	first.emit(stt.StreamEvent{Type: stt.EventEnd})

	var second *fakeRecStream
	select {
	case second = <-rec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer was not restarted after end")
	}
	second.emit(stt.StreamEvent{Type: stt.EventResult, Segments: []stt.Segment{{Text: "two", Final: true}}})
	events.waitFor(t, "second segment", func(ev Event) bool { return ev.Type == EventTranscript && ev.Text == "two" })

	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.Text() != "one\ntwo" {
		t.Fatalf("unexpected transcript %q", c.Text())
	}
	if events.count(func(ev Event) bool {
		return ev.Type == EventRestart && ev.Restart.Cause == CauseSilence
	}) != 1 {
		t.Fatalf("expected one silence restart")
	}
}

func TestConcurrentStopSharesTeardown(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	rec := newFakeRecognizer()
	c := NewController(testConfig(ModeStreaming), Dependencies{Source: src, Stream: rec}, testLogger())
	snap, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Stop(context.Background())
			if errors.Is(err, ErrNoActiveSession) {
				return
			}
			if err != nil {
				t.Errorf("stop: %v", err)
				return
			}
			if res.SessionID != snap.SessionID {
				t.Errorf("expected session %s, got %s", snap.SessionID, res.SessionID)
			}
		}()
	}
	wg.Wait()

	if got := src.releases.Load(); got != 1 {
		t.Fatalf("expected single release, got %d", got)
	}
	if _, err := c.Stop(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestRestartBudgetExhausted(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	rec := newFakeRecognizer()
	rec.failAll = true
	events := &eventLog{}
	c := NewController(testConfig(ModeStreaming), Dependencies{
		Source: src, Stream: rec, Listeners: []Listener{events},
	}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	res := waitResult(t, c)
	if res.Reason != ReasonRestartBudget || !errors.Is(res.Err, ErrRestartBudgetExhausted) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := rec.starts.Load(); got != 6 {
		t.Fatalf("expected initial start plus 5 restarts, got %d starts", got)
	}
	restarts := events.count(func(ev Event) bool { return ev.Type == EventRestart && ev.Restart.Cause == CauseError })
	if restarts != 5 {
		t.Fatalf("expected 5 error restarts, got %d", restarts)
	}
	if events.count(isNotice(NoticeRestartExhausted)) != 1 {
		t.Fatalf("expected budget exhausted notice")
	}
	if src.releases.Load() != 1 {
		t.Fatalf("expected capture released")
	}
}

func TestFatalRecognizerCodeStops(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	rec := newFakeRecognizer()
	events := &eventLog{}
	c := NewController(testConfig(ModeStreaming), Dependencies{
		Source: src, Stream: rec, Listeners: []Listener{events},
	}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := <-rec.started
	stream.emit(stt.StreamEvent{Type: stt.EventError, Code: stt.CodeNotAllowed})

	res := waitResult(t, c)
	if res.Reason != ReasonPermission || !errors.Is(res.Err, ErrPermissionDenied) {
		t.Fatalf("unexpected result %+v", res)
	}
	if rec.starts.Load() != 1 {
		t.Fatalf("fatal code must not restart")
	}
	if events.count(isNotice(NoticePermissionDenied)) != 1 {
		t.Fatalf("expected permission notice")
	}
}

func TestSilenceCeilingStops(t *testing.T) {
	src := &fakeSource{amplitude: 0}
	rec := newFakeRecognizer()
	cfg := testConfig(ModeStreaming)
	cfg.SilenceCeiling = 200 * time.Millisecond
	cfg.SilenceCheck = 20 * time.Millisecond
	c := NewController(cfg, Dependencies{Source: src, Stream: rec}, testLogger())

	started := time.Now()
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	res := waitResult(t, c)
	if res.Reason != ReasonSilence || res.Err != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if elapsed := time.Since(started); elapsed < 200*time.Millisecond {
		t.Fatalf("stopped before the silence ceiling: %v", elapsed)
	}
	if src.releases.Load() != 1 {
		t.Fatalf("expected capture released")
	}
}

func TestStartPermissionDenied(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("%w: pulse refused", capture.ErrPermissionDenied)}
	events := &eventLog{}
	c := NewController(testConfig(ModeStreaming), Dependencies{
		Source: src, Stream: newFakeRecognizer(), Listeners: []Listener{events},
	}, testLogger())

	_, err := c.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if c.Snapshot().Status != StatusIdle {
		t.Fatalf("expected idle after failed start")
	}
	if events.count(isNotice(NoticePermissionDenied)) != 1 {
		t.Fatalf("expected permission notice")
	}
	res, err := c.Wait(context.Background())
	if err != nil || res.Reason != ReasonPermission {
		t.Fatalf("unexpected last result %+v err=%v", res, err)
	}
}

func TestCaptureLossStops(t *testing.T) {
	src := &fakeSource{amplitude: 655, limit: 6400, eof: true}
	c := NewController(testConfig(ModeStreaming), Dependencies{Source: src, Stream: newFakeRecognizer()}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	res := waitResult(t, c)
	if res.Reason != ReasonCaptureLost || !errors.Is(res.Err, ErrDeviceUnavailable) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestChunksAppendInSequenceOrder(t *testing.T) {
	// Three 100ms chunks of audio, then the stream goes quiet.
	src := &fakeSource{amplitude: 655, limit: 3 * 3200}
	tr := &fakeTranscriber{delays: map[int]time.Duration{
		1: 150 * time.Millisecond,
		2: 10 * time.Millisecond,
		3: 60 * time.Millisecond,
	}}
	events := &eventLog{}
	c := NewController(testConfig(ModeChunked), Dependencies{
		Source: src, Transcriber: tr, Listeners: []Listener{events},
	}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	events.waitFor(t, "all chunks", func(ev Event) bool {
		return ev.Type == EventTranscript && strings.Count(ev.Buffer, "\n") == 2
	})
	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if want := "chunk-1\nchunk-2\nchunk-3"; c.Text() != want {
		t.Fatalf("expected %q, got %q", want, c.Text())
	}
	if tr.calls.Load() != 3 {
		t.Fatalf("expected 3 transcriptions, got %d", tr.calls.Load())
	}
	if events.count(func(ev Event) bool { return ev.Type == EventChunk && ev.Chunk.Outcome == "appended" }) != 3 {
		t.Fatalf("expected 3 appended chunk events")
	}
}

func TestDurationCeilingStopsChunkedSession(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	tr := &fakeTranscriber{}
	cfg := testConfig(ModeChunked)
	cfg.MaxDuration = 300 * time.Millisecond
	events := &eventLog{}
	c := NewController(cfg, Dependencies{
		Source: src, Transcriber: tr, Listeners: []Listener{events},
	}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	res := waitResult(t, c)
	if res.Reason != ReasonDuration {
		t.Fatalf("expected duration stop, got %+v", res)
	}
	if !errors.Is(res.Err, ErrDurationExceeded) || !errors.Is(res.Err, stt.ErrTooLarge) {
		t.Fatalf("expected too-large class error, got %v", res.Err)
	}
	if got := tr.calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 chunks dispatched, got %d", got)
	}
	if events.count(isNotice(NoticeDurationExceeded)) != 1 {
		t.Fatalf("expected a single duration notice")
	}
}

func TestFinalChunkNothingRecognized(t *testing.T) {
	src := &fakeSource{amplitude: 655, limit: 1600}
	tr := &fakeTranscriber{empty: true}
	events := &eventLog{}
	c := NewController(testConfig(ModeChunked), Dependencies{
		Source: src, Transcriber: tr, Listeners: []Listener{events},
	}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if tr.calls.Load() != 1 {
		t.Fatalf("expected the final chunk to be transcribed, got %d calls", tr.calls.Load())
	}
	if events.count(isNotice(NoticeNothingRecognized)) != 1 {
		t.Fatalf("expected nothing recognized notice")
	}
	if c.Text() != "" {
		t.Fatalf("expected empty transcript, got %q", c.Text())
	}
}

func TestTextEditsBetweenSessions(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	rec := newFakeRecognizer()
	c := NewController(testConfig(ModeStreaming), Dependencies{Source: src, Stream: rec}, testLogger())

	if err := c.SetText("draft"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.SetText("overwrite"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if _, err := c.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected second start rejected, got %v", err)
	}

	stream := <-rec.started
	stream.emit(stt.StreamEvent{Type: stt.EventResult, Segments: []stt.Segment{{Text: "spoken", Final: true}}})
	deadline := time.Now().Add(2 * time.Second)
	for c.Text() != "draft\nspoken" {
		if time.Now().After(deadline) {
			t.Fatalf("unexpected transcript %q", c.Text())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	c.Clear()
	if c.Text() != "" {
		t.Fatalf("expected cleared transcript")
	}
}

func TestModeResolution(t *testing.T) {
	c := NewController(testConfig(ModeStreaming), Dependencies{Source: &fakeSource{}, Transcriber: &fakeTranscriber{}}, testLogger())
	if _, err := c.Mode(); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected unsupported platform without a stream recognizer, got %v", err)
	}
	if _, err := c.Start(context.Background()); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected start to fail, got %v", err)
	}

	auto := NewController(Config{}, Dependencies{Source: &fakeSource{}, Transcriber: &fakeTranscriber{}}, testLogger())
	if mode, err := auto.Mode(); err != nil || mode != ModeChunked {
		t.Fatalf("expected chunked fallback, got %v %v", mode, err)
	}
}

func TestCloseRefusesNewSessions(t *testing.T) {
	src := &fakeSource{amplitude: 655}
	c := NewController(testConfig(ModeStreaming), Dependencies{Source: src, Stream: newFakeRecognizer()}, testLogger())
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	res, _ := c.Wait(context.Background())
	if res.Reason != ReasonShutdown {
		t.Fatalf("expected shutdown reason, got %s", res.Reason)
	}
	if _, err := c.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
