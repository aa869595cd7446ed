// Package observability records service metrics through the OpenTelemetry
// metrics API and exports them for Prometheus scraping.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "callsense"

// Metrics holds every instrument the service records. Instruments are safe
// for concurrent use.
type Metrics struct {
	// Requests counts prediction requests by transport.
	Requests metric.Int64Counter
	// RequestErrors counts failed predictions by transport and kind.
	RequestErrors metric.Int64Counter
	// InferenceDuration is generate-then-normalize latency.
	InferenceDuration metric.Float64Histogram
	// Corrections counts silent repairs by field and rule.
	Corrections metric.Int64Counter
	// RateLimited counts requests rejected by the limiter.
	RateLimited metric.Int64Counter
	// JobsProcessed counts queued jobs handled by workers, by status.
	JobsProcessed metric.Int64Counter

	ModelLoaded    metric.Int64Gauge
	GPUAvailable   metric.Int64Gauge
	GPUUtilization metric.Float64Gauge
	GPUMemoryUsed  metric.Float64Gauge
	GPUMemoryTotal metric.Float64Gauge
}

var inferenceBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Requests, err = m.Int64Counter("callsense.requests",
		metric.WithDescription("Prediction requests by transport."),
	); err != nil {
		return nil, err
	}
	if met.RequestErrors, err = m.Int64Counter("callsense.request_errors",
		metric.WithDescription("Failed predictions by transport and kind."),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("callsense.inference.duration",
		metric.WithDescription("Latency of generation plus normalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("callsense.corrections",
		metric.WithDescription("Fields repaired during normalization."),
	); err != nil {
		return nil, err
	}
	if met.RateLimited, err = m.Int64Counter("callsense.rate_limited",
		metric.WithDescription("Requests rejected by the rate limiter."),
	); err != nil {
		return nil, err
	}
	if met.JobsProcessed, err = m.Int64Counter("callsense.jobs",
		metric.WithDescription("Queued prediction jobs handled by workers."),
	); err != nil {
		return nil, err
	}
	if met.ModelLoaded, err = m.Int64Gauge("callsense.model_loaded",
		metric.WithDescription("1 when the generation engine is ready."),
	); err != nil {
		return nil, err
	}
	if met.GPUAvailable, err = m.Int64Gauge("callsense.gpu.available",
		metric.WithDescription("1 when GPU statistics could be read."),
	); err != nil {
		return nil, err
	}
	if met.GPUUtilization, err = m.Float64Gauge("callsense.gpu.utilization",
		metric.WithDescription("GPU utilization."),
		metric.WithUnit("%"),
	); err != nil {
		return nil, err
	}
	if met.GPUMemoryUsed, err = m.Float64Gauge("callsense.gpu.memory.used",
		metric.WithUnit("MiBy"),
	); err != nil {
		return nil, err
	}
	if met.GPUMemoryTotal, err = m.Float64Gauge("callsense.gpu.memory.total",
		metric.WithUnit("MiBy"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Default builds Metrics on the global meter provider.
func Default() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

// Transport attribute helper.
func Transport(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("transport", name))
}

// RecordCorrection counts one repaired field.
func (m *Metrics) RecordCorrection(ctx context.Context, field, rule string) {
	if m == nil {
		return
	}
	m.Corrections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("field", field),
		attribute.String("rule", rule),
	))
}

// RecordError counts one failed prediction.
func (m *Metrics) RecordError(ctx context.Context, transport, kind string) {
	if m == nil {
		return
	}
	m.RequestErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("kind", kind),
	))
}

// RecordRequest counts one prediction request.
func (m *Metrics) RecordRequest(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.Requests.Add(ctx, 1, Transport(transport))
}

// RecordInference records one generate-then-normalize latency.
func (m *Metrics) RecordInference(ctx context.Context, transport string, d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceDuration.Record(ctx, d.Seconds(), Transport(transport))
}

// RecordJob counts one worker job by final status.
func (m *Metrics) RecordJob(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.JobsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
