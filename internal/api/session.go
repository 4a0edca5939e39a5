package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loqalabs/loqa-scribe/internal/recorder"
)

const (
	startTimeout = 15 * time.Second
	// stopTimeout covers the final chunk, which may be retried.
	stopTimeout = 2 * time.Minute
)

type stopView struct {
	recorder.StopResult
	Error string `json:"error,omitempty"`
}

type textBody struct {
	Text string `json:"text"`
}

func (s *Server) sessionStatus(c *gin.Context) {
	if s.deps.Recorder == nil {
		fail(c, http.StatusServiceUnavailable, "recorder is not available", nil)
		return
	}
	c.JSON(http.StatusOK, s.deps.Recorder.Snapshot())
}

func (s *Server) sessionStart(c *gin.Context) {
	if s.deps.Recorder == nil {
		fail(c, http.StatusServiceUnavailable, "recorder is not available", nil)
		return
	}
	ctx, cancel := requestContext(c, startTimeout)
	defer cancel()
	snap, err := s.deps.Recorder.Start(ctx)
	if err != nil {
		fail(c, startStatus(err), "Failed to start recording", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, recorder.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, recorder.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, recorder.ErrUnsupportedPlatform):
		return http.StatusNotImplemented
	case errors.Is(err, recorder.ErrDeviceUnavailable), errors.Is(err, recorder.ErrClosed):
		return http.StatusServiceUnavailable
	case isTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sessionStop(c *gin.Context) {
	if s.deps.Recorder == nil {
		fail(c, http.StatusServiceUnavailable, "recorder is not available", nil)
		return
	}
	ctx, cancel := requestContext(c, stopTimeout)
	defer cancel()
	res, err := s.deps.Recorder.Stop(ctx)
	switch {
	case errors.Is(err, recorder.ErrNoActiveSession):
		fail(c, http.StatusConflict, "No recording in progress", err)
		return
	case err != nil:
		fail(c, http.StatusGatewayTimeout, "Failed to stop recording", err)
		return
	}
	view := stopView{StopResult: res}
	if res.Err != nil {
		view.Error = res.Err.Error()
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) sessionClear(c *gin.Context) {
	if s.deps.Recorder == nil {
		fail(c, http.StatusServiceUnavailable, "recorder is not available", nil)
		return
	}
	s.deps.Recorder.Clear()
	c.JSON(http.StatusOK, s.deps.Recorder.Snapshot())
}

func (s *Server) sessionSetText(c *gin.Context) {
	if s.deps.Recorder == nil {
		fail(c, http.StatusServiceUnavailable, "recorder is not available", nil)
		return
	}
	var body textBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := s.deps.Recorder.SetText(body.Text); err != nil {
		fail(c, http.StatusConflict, "Transcript can only be edited while idle", err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Recorder.Snapshot())
}

type eventView struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	TraceID   string    `json:"traceId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) listSessions(c *gin.Context) {
	if s.deps.History == nil {
		fail(c, http.StatusServiceUnavailable, "session history is not available", nil)
		return
	}
	sessions, err := s.deps.History.ListSessions(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}
	out := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, gin.H{
			"sessionId": sess.SessionID,
			"createdAt": sess.CreatedAt,
			"events":    sess.Events,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) sessionEvents(c *gin.Context) {
	if s.deps.History == nil {
		fail(c, http.StatusServiceUnavailable, "session history is not available", nil)
		return
	}
	events, err := s.deps.History.ListSessionEvents(c.Request.Context(), c.Param("id"), queryLimit(c, 500))
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to list session events", err)
		return
	}
	out := make([]eventView, 0, len(events))
	for _, ev := range events {
		view := eventView{ID: ev.ID, Type: ev.Type, TraceID: ev.TraceID, CreatedAt: ev.CreatedAt}
		if len(ev.Payload) > 0 {
			view.Payload = rawJSON(ev.Payload)
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func queryLimit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, 1000)
}
