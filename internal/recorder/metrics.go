package recorder

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/loqa-scribe/internal/recorder"

type metrics struct {
	sessions     metric.Int64Counter
	active       metric.Int64UpDownCounter
	restarts     metric.Int64Counter
	chunks       metric.Int64Counter
	chunkLatency metric.Float64Histogram
	stops        metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}
	var err error
	if m.sessions, err = meter.Int64Counter("scribe.recorder.sessions",
		metric.WithDescription("Recording sessions started")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("scribe.recorder.active_sessions",
		metric.WithDescription("Recording sessions currently running")); err != nil {
		return nil, err
	}
	if m.restarts, err = meter.Int64Counter("scribe.recorder.restarts",
		metric.WithDescription("Recognition engine restarts by cause")); err != nil {
		return nil, err
	}
	if m.chunks, err = meter.Int64Counter("scribe.recorder.chunks",
		metric.WithDescription("Chunk transcriptions by outcome")); err != nil {
		return nil, err
	}
	if m.chunkLatency, err = meter.Float64Histogram("scribe.recorder.chunk_latency",
		metric.WithDescription("Chunk transcription latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.stops, err = meter.Int64Counter("scribe.recorder.stops",
		metric.WithDescription("Recording sessions stopped by reason")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) sessionStarted(mode Mode) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("mode", string(mode)))
	m.sessions.Add(ctx, 1, attrs)
	m.active.Add(ctx, 1)
}

func (m *metrics) sessionStopped(reason StopReason) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.active.Add(ctx, -1)
	m.stops.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

func (m *metrics) restart(cause RestartCause) {
	if m == nil {
		return
	}
	m.restarts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cause", string(cause))))
}

func (m *metrics) chunk(outcome string, latencyMS float64) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.chunks.Add(ctx, 1, attrs)
	m.chunkLatency.Record(ctx, latencyMS, attrs)
}
