package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/stt"
)

// pump copies captured PCM into the session goroutine until the stream
// ends or teardown starts.
func (c *Controller) pump(sess *session) {
	defer close(sess.pumpExited)
	buf := make([]byte, c.cfg.readSize())
	for {
		n, err := sess.stream.Read(buf)
		if n > 0 {
			pcm := make([]byte, n)
			copy(pcm, buf[:n])
			if !sess.post(audioEvent{pcm: pcm}) {
				return
			}
		}
		if err != nil {
			sess.post(pumpDone{err: err})
			return
		}
	}
}

// run is the session goroutine. Every mutation of session state and every
// transcript append happens here.
func (c *Controller) run(sess *session) {
	meterTick := time.NewTicker(c.cfg.MeterInterval)
	silenceTick := time.NewTicker(c.cfg.SilenceCheck)
	watchdogTick := time.NewTicker(c.cfg.WatchdogInterval)
	defer meterTick.Stop()
	defer silenceTick.Stop()
	defer watchdogTick.Stop()

	for {
		var stop *stopRequest
		select {
		case req := <-sess.stopCh:
			stop = &req
		case ev := <-sess.events:
			stop = c.handle(sess, ev)
		case <-meterTick.C:
			c.sampleMeter(sess)
		case <-silenceTick.C:
			if idle := time.Since(sess.lastActivity); idle >= c.cfg.SilenceCeiling {
				c.log.Info("silence ceiling reached",
					slog.String("session_id", sess.id),
					slog.Duration("idle", idle))
				stop = &stopRequest{reason: ReasonSilence}
			}
		case <-watchdogTick.C:
			stop = c.watchdog(sess)
		}
		if stop != nil {
			c.teardown(sess, *stop)
			return
		}
	}
}

func (c *Controller) handle(sess *session, ev any) *stopRequest {
	switch e := ev.(type) {
	case audioEvent:
		sess.meter.Write(e.pcm)
		if err := sess.engine.Feed(e.pcm); err != nil {
			return c.durationExceeded(sess, err)
		}
	case pumpDone:
		if errors.Is(e.err, io.EOF) {
			return &stopRequest{reason: ReasonCaptureLost, err: fmt.Errorf("%w: capture stream ended", ErrDeviceUnavailable)}
		}
		return &stopRequest{reason: ReasonCaptureLost, err: fmt.Errorf("%w: %v", ErrDeviceUnavailable, e.err)}
	case streamEvent:
		if !sess.engine.Current(e.gen) {
			return nil
		}
		sess.unanswered = time.Time{}
		return c.handleStreamEvent(sess, e.ev)
	case streamClosed:
		if !sess.engine.Current(e.gen) {
			return nil
		}
		sess.engine.Detach()
		c.scheduleRestart(sess, CauseSilence, sess.policy.OnSilence(), "")
	case chunkDone:
		return c.handleChunk(sess, e)
	case restartDue:
		if e.token != sess.restartToken || !sess.restartPending {
			return nil
		}
		sess.restartPending = false
		return c.respawn(sess, e.cause)
	}
	return nil
}

func (c *Controller) handleStreamEvent(sess *session, ev stt.StreamEvent) *stopRequest {
	switch ev.Type {
	case stt.EventResult:
		for _, seg := range ev.Segments {
			if seg.Final {
				c.appendText(sess, seg.Text)
				continue
			}
			c.emit(sess, Event{Type: EventInterim, Text: seg.Text})
		}
	case stt.EventEnd:
		sess.engine.Detach()
		c.scheduleRestart(sess, CauseSilence, sess.policy.OnSilence(), "")
	case stt.EventError:
		sess.engine.Detach()
		return c.engineError(sess, ev.Code, ev.Err)
	}
	return nil
}

// engineError applies the restart policy to a recognizer failure.
func (c *Controller) engineError(sess *session, code string, cause error) *stopRequest {
	attrs := []any{slog.String("session_id", sess.id), slog.String("code", code)}
	if cause != nil {
		attrs = append(attrs, slogError(cause))
	}
	if isFatalCode(code) {
		c.log.Warn("recognizer refused access", attrs...)
		c.emit(sess, Event{Type: EventNotice, Notice: ptr(newNotice(NoticePermissionDenied))})
		return &stopRequest{reason: ReasonPermission, err: fmt.Errorf("%w: recognizer reported %s", ErrPermissionDenied, code)}
	}
	delay, ok := sess.policy.OnError(time.Now())
	if !ok {
		c.log.Warn("recognizer restart budget exhausted", attrs...)
		c.emit(sess, Event{Type: EventNotice, Notice: ptr(newNotice(NoticeRestartExhausted))})
		return &stopRequest{reason: ReasonRestartBudget, err: ErrRestartBudgetExhausted}
	}
	c.log.Debug("recognizer error, scheduling restart", append(attrs, slog.Duration("delay", delay))...)
	c.scheduleRestart(sess, CauseError, delay, code)
	return nil
}

func (c *Controller) scheduleRestart(sess *session, cause RestartCause, delay time.Duration, code string) {
	if sess.restartTimer != nil {
		sess.restartTimer.Stop()
	}
	sess.restartToken++
	sess.restartPending = true
	token := sess.restartToken
	sess.restartTimer = time.AfterFunc(delay, func() {
		sess.post(restartDue{token: token, cause: cause})
	})
	c.emit(sess, Event{Type: EventRestart, Restart: &RestartInfo{
		Cause:   cause,
		Delay:   delay,
		Attempt: sess.restarts + 1,
		Code:    code,
	}})
}

// respawn attaches a fresh engine run. A failed start counts as a
// recognizer error.
func (c *Controller) respawn(sess *session, cause RestartCause) *stopRequest {
	now := time.Now()
	sess.policy.Restarted(now)
	sess.restarts++
	sess.unanswered = time.Time{}
	c.mu.Lock()
	c.live.RestartCount = sess.policy.Rapid(now)
	c.live.LastRestartAt = now
	c.mu.Unlock()
	c.metrics.restart(cause)

	if err := sess.engine.Start(sess.ctx); err != nil {
		code := stt.CodeNetwork
		if errors.Is(err, ErrPermissionDenied) {
			code = stt.CodeNotAllowed
		}
		return c.engineError(sess, code, err)
	}
	return nil
}

// watchdog replaces a run that stopped taking audio, or that left speech
// unanswered for StallTimeout. It stays out of the way while a restart is
// scheduled or once silence has run out.
func (c *Controller) watchdog(sess *session) *stopRequest {
	if sess.restartPending {
		return nil
	}
	now := time.Now()
	if now.Sub(sess.lastActivity) >= c.cfg.SilenceCeiling {
		return nil
	}
	stalled := !sess.unanswered.IsZero() && now.Sub(sess.unanswered) >= c.cfg.StallTimeout
	if sess.engine.Alive() && !stalled {
		return nil
	}
	c.log.Warn("recognizer unresponsive, respawning",
		slog.String("session_id", sess.id),
		slog.Bool("stalled", stalled))
	c.emit(sess, Event{Type: EventRestart, Restart: &RestartInfo{Cause: CauseWatchdog, Attempt: sess.restarts + 1}})
	return c.respawn(sess, CauseWatchdog)
}

func (c *Controller) sampleMeter(sess *session) {
	level := sess.meter.Sample()
	active := level > c.cfg.ActivityThreshold
	now := time.Now()
	if active {
		sess.lastActivity = now
		if sess.unanswered.IsZero() && sess.engine.Mode() == ModeStreaming {
			sess.unanswered = now
		}
	}
	c.mu.Lock()
	c.live.Level = level
	c.live.RestartCount = sess.policy.Rapid(now)
	if active {
		c.live.LastActivityAt = now
	}
	c.mu.Unlock()
}

func (c *Controller) handleChunk(sess *session, done chunkDone) *stopRequest {
	info := &ChunkInfo{AudioChunk: done.chunk, Latency: done.latency}
	var ready []string
	switch {
	case done.err != nil && errors.Is(done.err, stt.ErrTooLarge):
		return c.durationExceeded(sess, done.err)
	case done.err != nil:
		info.Outcome = "failed"
		info.Error = done.err.Error()
		c.log.Warn("chunk transcription dropped",
			slog.String("session_id", sess.id),
			slog.Int("sequence", done.chunk.Sequence),
			slogError(done.err))
		ready = sess.seq.Put(done.chunk.Sequence, "")
	case done.text == "":
		info.Outcome = "empty"
		ready = sess.seq.Put(done.chunk.Sequence, "")
	default:
		info.Outcome = "appended"
		ready = sess.seq.Put(done.chunk.Sequence, done.text)
	}
	c.metrics.chunk(info.Outcome, float64(done.latency.Milliseconds()))
	c.emit(sess, Event{Type: EventChunk, Chunk: info})
	for _, text := range ready {
		c.appendText(sess, text)
	}
	return nil
}

// drainPending applies what was posted before teardown began: captured
// audio joins the final flush, and finished results are appended. Restarts
// and stops those results would trigger no longer apply.
func (c *Controller) drainPending(sess *session) {
	for {
		select {
		case ev := <-sess.events:
			switch e := ev.(type) {
			case audioEvent:
				sess.engine.Tail(e.pcm)
			case streamEvent:
				if sess.engine.Current(e.gen) && e.ev.Type == stt.EventResult {
					c.handleStreamEvent(sess, e.ev)
				}
			case chunkDone:
				c.handleChunk(sess, e)
			}
		default:
			return
		}
	}
}

func (c *Controller) durationExceeded(sess *session, cause error) *stopRequest {
	err := ErrDurationExceeded
	if !errors.Is(cause, ErrDurationExceeded) {
		err = fmt.Errorf("%w: %v", ErrDurationExceeded, cause)
	}
	c.log.Warn("recording duration ceiling reached",
		slog.String("session_id", sess.id),
		slog.Duration("max_duration", c.cfg.MaxDuration),
		slogError(cause))
	c.emit(sess, Event{Type: EventNotice, Notice: ptr(newNotice(NoticeDurationExceeded))})
	return &stopRequest{reason: ReasonDuration, err: err}
}

// teardown releases capture, drains the engine and returns the controller
// to idle. Results arriving after this point are ignored except the final
// chunk, which is awaited.
func (c *Controller) teardown(sess *session, req stopRequest) {
	c.mu.Lock()
	c.status = StatusStopping
	c.mu.Unlock()
	c.emit(sess, Event{Type: EventStatus, Status: StatusStopping})

	close(sess.quit)
	if sess.restartTimer != nil {
		sess.restartTimer.Stop()
	}
	c.releaseCapture(sess)
	<-sess.pumpExited
	c.drainPending(sess)

	finishCtx, cancel := context.WithTimeout(context.Background(),
		c.cfg.DispatchTimeout*time.Duration(c.cfg.ChunkRetries+1)+time.Second)
	final := sess.engine.Finish(finishCtx)
	cancel()

	// Posts that raced the close of quit land after the first drain.
	c.drainPending(sess)
	for _, text := range final.Segments {
		c.appendText(sess, text)
	}
	for _, text := range sess.seq.Drain() {
		c.appendText(sess, text)
	}
	if final.Attempted {
		switch {
		case errors.Is(final.Err, ErrDurationExceeded):
			c.emit(sess, Event{Type: EventNotice, Notice: ptr(newNotice(NoticeDurationExceeded))})
		case final.Err != nil:
			c.log.Warn("final chunk failed", slog.String("session_id", sess.id), slogError(final.Err))
			c.emit(sess, Event{Type: EventNotice, Notice: ptr(newNotice(NoticeFinalChunkFailed))})
		case final.Text == "":
			c.emit(sess, Event{Type: EventNotice, Notice: ptr(newNotice(NoticeNothingRecognized))})
		default:
			c.appendText(sess, final.Text)
		}
	}

	sess.cancel()
	c.releaseWake(sess)

	duration := time.Since(sess.startedAt)
	c.metrics.sessionStopped(req.reason)
	attrs := []any{
		slog.String("session_id", sess.id),
		slog.String("reason", string(req.reason)),
		slog.Duration("duration", duration),
		slog.Int("restarts", sess.restarts),
		slog.Int("segments", sess.appended),
	}
	if req.err != nil {
		attrs = append(attrs, slogError(req.err))
	}
	c.log.Info("recording session stopped", attrs...)

	c.finishSession(sess, StopResult{
		SessionID: sess.id,
		Reason:    req.reason,
		Err:       req.err,
		Duration:  duration,
	})
}
