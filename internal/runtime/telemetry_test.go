package runtime

import (
	"context"
	"slices"
	"testing"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestTelemetryResourceIdentifiesNode(t *testing.T) {
	cfg := config.Default()
	cfg.Recorder.Mode = "chunked"
	cfg.STT.Mode = "google"

	res, err := telemetryResource(context.Background(), cfg, "scribe-a1b2c3d4")
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	want := map[attribute.Key]string{
		"service.name":         cfg.RuntimeName,
		"scribe.node.id":       "scribe-a1b2c3d4",
		"scribe.recorder.mode": "chunked",
		"scribe.stt.mode":      "google",
	}
	set := res.Set()
	for key, value := range want {
		got, ok := set.Value(key)
		if !ok || got.AsString() != value {
			t.Fatalf("expected %s=%q, got %q (present=%v)", key, value, got.AsString(), ok)
		}
	}
}

func TestChunkLatencyUsesSecondScaleBuckets(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(chunkLatencyView()),
	)
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	hist, err := provider.Meter("test").Float64Histogram("scribe.recorder.chunk_latency")
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	hist.Record(ctx, 3200)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(rm.ScopeMetrics) != 1 || len(rm.ScopeMetrics[0].Metrics) != 1 {
		t.Fatalf("unexpected metrics %+v", rm.ScopeMetrics)
	}
	data, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Histogram[float64])
	if !ok || len(data.DataPoints) != 1 {
		t.Fatalf("unexpected histogram data %T", rm.ScopeMetrics[0].Metrics[0].Data)
	}
	point := data.DataPoints[0]
	if !slices.Equal(point.Bounds, chunkLatencyBuckets) {
		t.Fatalf("expected bounds %v, got %v", chunkLatencyBuckets, point.Bounds)
	}
	// 3200ms lands in the (2000, 4000] bucket.
	if point.BucketCounts[4] != 1 {
		t.Fatalf("expected the sample in the 2-4s bucket, got %v", point.BucketCounts)
	}
}
