package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-scribe/internal/api"
	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/capability"
	"github.com/loqalabs/loqa-scribe/internal/capture"
	"github.com/loqalabs/loqa-scribe/internal/compose"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/documents"
	"github.com/loqalabs/loqa-scribe/internal/eventstore"
	"github.com/loqalabs/loqa-scribe/internal/llm"
	"github.com/loqalabs/loqa-scribe/internal/messaging"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
	"github.com/loqalabs/loqa-scribe/internal/recorder"
	"github.com/loqalabs/loqa-scribe/internal/stt"
	"github.com/loqalabs/loqa-scribe/internal/surface"
	"golang.org/x/sync/errgroup"
)

const (
	pruneInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
	// closeTimeout lets a running session finish its final chunk.
	closeTimeout = 2 * time.Minute
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	ready  atomic.Bool
	checks []func() bool
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	nodeCfg := r.cfg.Node
	if nodeCfg.ID == "" {
		nodeCfg.ID = r.cfg.RuntimeName + "-" + uuid.NewString()[:8]
	}

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, nodeCfg.ID, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		embedded, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded nats: %w", err)
		}
		defer embedded.Shutdown()
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		return err
	}
	defer busClient.Close()
	r.checks = append(r.checks, busClient.Healthy)

	events, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer events.Close()

	docs, err := documents.Open(ctx, r.cfg.Documents, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer docs.Close()

	providers, err := stt.NewProviders(ctx, r.cfg.STT, busClient)
	if err != nil {
		return fmt.Errorf("failed to initialize stt providers: %w", err)
	}
	defer providers.Close()

	source, err := newCaptureSource(r.cfg.Capture, busClient)
	if err != nil {
		return err
	}

	hub := api.NewHub(r.logger)
	sink := eventstore.NewSink(events, r.cfg.RuntimeName, r.logger)
	defer sink.Close()

	controller := recorder.NewController(
		recorder.ConfigFrom(r.cfg.Recorder, r.cfg.Capture, r.cfg.STT),
		recorder.Dependencies{
			Source: source,
			Capture: capture.Config{
				SampleRate:  r.cfg.Capture.SampleRate,
				Channels:    r.cfg.Capture.Channels,
				InputFormat: r.cfg.Capture.InputFormat,
				InputDevice: r.cfg.Capture.InputDevice,
			},
			WakeLock:    r.newWakeLock(),
			Transcriber: providers.Transcriber,
			Stream:      providers.Stream,
			Listeners:   []recorder.Listener{sink, hub},
		},
		r.logger,
	)
	controller.AddListener(surface.NewPublisher(busClient, controller, r.logger))
	if mode, err := controller.Mode(); err != nil {
		r.logger.Warn("recording unavailable", slog.String("error", err.Error()))
	} else {
		r.logger.Info("recorder ready", slog.String("mode", string(mode)), slog.String("capture", r.cfg.Capture.Mode))
	}

	var generator llm.Generator
	if r.cfg.Compose.Enabled {
		generator, err = llm.NewGenerator(ctx, r.cfg.Compose)
		if err != nil {
			return fmt.Errorf("failed to initialize compose generator: %w", err)
		}
	}
	composer := compose.New(r.cfg.Compose, generator, r.logger)
	sender := messaging.NewTwilioSender(r.cfg.Messaging, r.logger)

	sttService := stt.NewService(ctx, r.cfg.STT, busClient, providers.Transcriber)
	if err := sttService.Start(); err != nil {
		return err
	}
	defer sttService.Close()
	r.checks = append(r.checks, sttService.Healthy)

	composeService := compose.NewService(ctx, r.cfg.Compose.Serve, busClient, composer, r.logger)
	if err := composeService.Start(); err != nil {
		return err
	}
	defer composeService.Close()
	r.checks = append(r.checks, composeService.Healthy)

	sessionService := surface.NewService(ctx, busClient, controller, r.logger)
	if err := sessionService.Start(); err != nil {
		return err
	}
	defer sessionService.Close()
	r.checks = append(r.checks, sessionService.Healthy)

	mode, _ := controller.Mode()
	registry := capability.NewRegistry(nodeCfg, r.cfg.RuntimeName,
		capability.Local(r.cfg, string(mode), sender.Configured()), busClient, r.logger)
	if err := registry.Start(ctx); err != nil {
		return err
	}
	defer registry.Close()
	r.checks = append(r.checks, registry.Healthy)

	apiServer := api.New(api.Deps{
		Recorder:    controller,
		Transcriber: providers.Transcriber,
		STT:         r.cfg.STT,
		Names:       r.cfg.Names,
		Composer:    composer,
		Documents:   docs,
		Sender:      sender,
		History:     events,
		Peers:       registry,
		Hub:         hub,
	}, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.Handle("/api/", apiServer.Handler())

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	servers := []*http.Server{{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
	if bind := strings.TrimSpace(r.cfg.Telemetry.PrometheusBind); metricsHandler != nil && bind != "" && bind != addr {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		servers = append(servers, &http.Server{
			Addr:              bind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			r.logger.Info("http server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := events.Prune(gctx); err != nil && gctx.Err() == nil {
					r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")

		closeCtx, cancelClose := context.WithTimeout(context.Background(), closeTimeout)
		defer cancelClose()
		if err := controller.Close(closeCtx); err != nil {
			r.logger.Error("recorder close error", slog.String("error", err.Error()))
		}
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				r.logger.Error("http shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))
	return g.Wait()
}

func newCaptureSource(cfg config.CaptureConfig, busClient *bus.Client) (capture.Source, error) {
	switch cfg.Mode {
	case "ffmpeg":
		return capture.NewFFmpegSource(cfg.Command), nil
	case "bus":
		return capture.NewBusSource(busClient, cfg.Stream), nil
	default:
		return nil, fmt.Errorf("unsupported capture mode %q", cfg.Mode)
	}
}

func (r *Runtime) newWakeLock() capture.WakeLock {
	command := strings.TrimSpace(r.cfg.Capture.WakeLockCommand)
	if command == "" {
		return capture.NopWakeLock{}
	}
	lock, err := capture.NewExecWakeLock(command)
	if err != nil {
		r.logger.Warn("wake lock disabled", slog.String("error", err.Error()))
		return capture.NopWakeLock{}
	}
	return lock
}

func (r *Runtime) healthy() bool {
	for _, check := range r.checks {
		if !check() {
			return false
		}
	}
	return true
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !r.healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("degraded"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
