// Package api serves the scribe HTTP API used by the web client.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/loqalabs/loqa-scribe/internal/capability"
	"github.com/loqalabs/loqa-scribe/internal/compose"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/documents"
	"github.com/loqalabs/loqa-scribe/internal/eventstore"
	"github.com/loqalabs/loqa-scribe/internal/recorder"
	"github.com/loqalabs/loqa-scribe/internal/stt"
)

// Recorder is the recording controller as seen by the API.
type Recorder interface {
	Start(ctx context.Context) (recorder.Snapshot, error)
	Stop(ctx context.Context) (recorder.StopResult, error)
	Clear()
	SetText(text string) error
	Snapshot() recorder.Snapshot
}

type Composer interface {
	Configured() bool
	Compose(ctx context.Context, req compose.Request) (compose.Result, error)
}

type Documents interface {
	Save(ctx context.Context, doc documents.Document) (documents.Document, error)
	List(ctx context.Context) ([]documents.Document, error)
	Get(ctx context.Context, id string) (documents.Document, error)
	Delete(ctx context.Context, id string) error
}

type Sender interface {
	Configured() bool
	Send(ctx context.Context, to, body string) (string, error)
}

type History interface {
	ListSessions(ctx context.Context, limit int) ([]eventstore.Session, error)
	ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]eventstore.Event, error)
}

type Peers interface {
	Nodes(filter func(capability.Node) bool) []capability.Node
}

// Deps are the collaborators behind the API. Nil members disable the
// routes that need them.
type Deps struct {
	Recorder    Recorder
	Transcriber stt.Transcriber
	STT         config.STTConfig
	Names       config.NamesConfig
	Composer    Composer
	Documents   Documents
	Sender      Sender
	History     History
	Peers       Peers
	Hub         *Hub
}

type Server struct {
	deps   Deps
	log    *slog.Logger
	engine *gin.Engine
}

// errorBody is the error shape every route returns.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func New(deps Deps, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		deps: deps,
		log:  logger.With(slog.String("component", "api")),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLog())
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	engine.Use(cors.New(corsCfg))

	api := engine.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/nodes", s.nodes)

		api.GET("/session", s.sessionStatus)
		api.POST("/session/start", s.sessionStart)
		api.POST("/session/stop", s.sessionStop)
		api.POST("/session/clear", s.sessionClear)
		api.PUT("/session/text", s.sessionSetText)
		api.GET("/session/ws", s.sessionStream)

		api.GET("/sessions", s.listSessions)
		api.GET("/sessions/:id/events", s.sessionEvents)

		api.POST("/stt/recognize", s.recognize)
		api.POST("/text/correct-names", s.correctNames)
		api.POST("/compose", s.compose)
		api.GET("/compose/styles", s.composeStyles)

		api.GET("/documents", s.listDocuments)
		api.POST("/documents", s.saveDocument)
		api.GET("/documents/:id", s.getDocument)
		api.DELETE("/documents/:id", s.deleteDocument)

		api.POST("/sms/send", s.sendSMS)
		api.GET("/sms/link", s.smsLink)
	}
	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			s.log.Warn("request failed", attrs...)
			return
		}
		s.log.Debug("request served", attrs...)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":                  true,
		"composeConfigured":   s.deps.Composer != nil && s.deps.Composer.Configured(),
		"messagingConfigured": s.deps.Sender != nil && s.deps.Sender.Configured(),
		"sttConfigured":       s.deps.Transcriber != nil,
	})
}

func (s *Server) nodes(c *gin.Context) {
	if s.deps.Peers == nil {
		c.JSON(http.StatusOK, gin.H{"nodes": []capability.Node{}})
		return
	}
	var filter func(capability.Node) bool
	if name := c.Query("capability"); name != "" {
		filter = capability.Offering(name)
	}
	c.JSON(http.StatusOK, gin.H{"nodes": s.deps.Peers.Nodes(filter)})
}

func fail(c *gin.Context, status int, message string, cause error) {
	body := errorBody{Error: message}
	if cause != nil {
		body.Details = cause.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// requestContext bounds a handler's work while still following client
// disconnects.
func requestContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), timeout)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
