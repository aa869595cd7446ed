package observability

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestInferenceHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.InferenceDuration.Record(ctx, 0.8, Transport("http"))
	m.InferenceDuration.Record(ctx, 1.2, Transport("http"))

	met := findMetric(collect(t, reader), "callsense.inference.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

func TestRecordCorrectionAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordCorrection(ctx, "confidence_score", "clamped")
	m.RecordCorrection(ctx, "confidence_score", "clamped")
	m.RecordCorrection(ctx, "disposition", "fallback")

	met := findMetric(collect(t, reader), "callsense.corrections")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	for _, dp := range sum.DataPoints {
		if v, _ := dp.Attributes.Value(attribute.Key("field")); v.AsString() == "confidence_score" {
			if dp.Value != 2 {
				t.Errorf("counter value = %d, want 2", dp.Value)
			}
			return
		}
	}
	t.Error("data point for confidence_score not found")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCorrection(context.Background(), "x", "y")
	m.RecordError(context.Background(), "http", "generation")
	m.RecordRequest(context.Background(), "ws")
	m.RecordInference(context.Background(), "ws", time.Second)
	m.RecordJob(context.Background(), "ok")
}

func TestGPUPollerSample(t *testing.T) {
	m, reader := newTestMetrics(t)
	p := &GPUPoller{Metrics: m, Read: func(context.Context) ([]GPUStat, error) {
		return parseGPUStats("0, 37, 5120, 24576\n1, 5, 100, 24576\n")
	}}
	p.Sample(context.Background())

	rm := collect(t, reader)
	util := findMetric(rm, "callsense.gpu.utilization")
	if util == nil {
		t.Fatal("utilization gauge not found")
	}
	gauge, ok := util.Data.(metricdata.Gauge[float64])
	if !ok || len(gauge.DataPoints) != 2 {
		t.Fatalf("expected two gpu data points, got %+v", util.Data)
	}
	avail := findMetric(rm, "callsense.gpu.available")
	if g := avail.Data.(metricdata.Gauge[int64]); g.DataPoints[0].Value != 1 {
		t.Errorf("expected gpu available")
	}
}

func TestGPUPollerMissingTool(t *testing.T) {
	m, reader := newTestMetrics(t)
	p := &GPUPoller{Metrics: m, Read: func(context.Context) ([]GPUStat, error) { return nil, ErrNoGPU }}
	p.Sample(context.Background())
	avail := findMetric(collect(t, reader), "callsense.gpu.available")
	if avail == nil {
		t.Fatal("gauge not found")
	}
	if g := avail.Data.(metricdata.Gauge[int64]); g.DataPoints[0].Value != 0 {
		t.Errorf("expected gpu unavailable")
	}
}

func TestParseGPUStatsRejectsGarbage(t *testing.T) {
	if _, err := parseGPUStats("nope"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := parseGPUStats("0, x, 1, 2"); err == nil {
		t.Fatal("expected number error")
	}
}

func TestLimitObserverCounts(t *testing.T) {
	m, reader := newTestMetrics(t)
	o := NewLimitObserver(nil, m)
	for i := 0; i < 3; i++ {
		o.RecordDeny(context.Background(), "10.0.0.1", "/predict")
	}
	if o.Denials("10.0.0.1") != 3 {
		t.Fatalf("expected 3 denials")
	}
	met := findMetric(collect(t, reader), "callsense.rate_limited")
	if met == nil {
		t.Fatal("metric not found")
	}
}
