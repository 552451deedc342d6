// Package telemetry provides OpenTelemetry metrics for the registry service.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records registry service activity.
type Metrics interface {
	// RecordOperation records one service call and its outcome.
	// Outcome is "ok" or an error kind such as "not_found".
	RecordOperation(ctx context.Context, operation, outcome string, duration time.Duration)

	// RecordPublish records a facts publishing attempt. Kind is empty on
	// success, else "transient" or "permanent".
	RecordPublish(ctx context.Context, publisher string, kind string, duration time.Duration)

	// RecordHealth records a health probe of a storage component.
	RecordHealth(ctx context.Context, component string, healthy bool)
}

// MetricsProvider records Metrics through an OpenTelemetry meter.
type MetricsProvider struct {
	meter metric.Meter
	attrs []attribute.KeyValue

	operations        metric.Int64Counter
	operationDuration metric.Float64Histogram
	publishes         metric.Int64Counter
	publishDuration   metric.Float64Histogram
	healthProbes      metric.Int64Counter

	initErr error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter.
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// Attributes are attached to every measurement.
	Attributes []attribute.KeyValue
	// Provider overrides the global meter provider.
	Provider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/agent-registry",
		MeterVersion: "0.1.0",
	}
}

// NewMetricsProvider creates a metrics provider. Instrument creation
// errors are reported by Error.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}

	provider := config.Provider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(
		config.MeterName,
		metric.WithInstrumentationVersion(config.MeterVersion),
	)

	mp := &MetricsProvider{
		meter: meter,
		attrs: config.Attributes,
	}
	mp.initErr = mp.initInstruments()
	return mp
}

func (mp *MetricsProvider) initInstruments() error {
	var err error

	mp.operations, err = mp.meter.Int64Counter(
		"registry.operations",
		metric.WithDescription("Number of registry service calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	mp.operationDuration, err = mp.meter.Float64Histogram(
		"registry.operation.duration",
		metric.WithDescription("Duration of registry service calls"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	mp.publishes, err = mp.meter.Int64Counter(
		"registry.facts.publishes",
		metric.WithDescription("Number of facts publishing attempts"),
		metric.WithUnit("{publish}"),
	)
	if err != nil {
		return err
	}

	mp.publishDuration, err = mp.meter.Float64Histogram(
		"registry.facts.publish.duration",
		metric.WithDescription("Duration of facts publishing attempts"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	mp.healthProbes, err = mp.meter.Int64Counter(
		"registry.health.probes",
		metric.WithDescription("Number of storage health probes"),
		metric.WithUnit("{probe}"),
	)
	return err
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

func (mp *MetricsProvider) with(attrs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(append(attrs, mp.attrs...)...)
}

// RecordOperation records one service call.
func (mp *MetricsProvider) RecordOperation(ctx context.Context, operation, outcome string, duration time.Duration) {
	if mp.initErr != nil {
		return
	}
	attrs := mp.with(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	mp.operations.Add(ctx, 1, attrs)
	mp.operationDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordPublish records a facts publishing attempt.
func (mp *MetricsProvider) RecordPublish(ctx context.Context, publisher string, kind string, duration time.Duration) {
	if mp.initErr != nil {
		return
	}
	attrs := mp.with(
		attribute.String("publisher", publisher),
		attribute.Bool("success", kind == ""),
		attribute.String("failure.kind", kind),
	)
	mp.publishes.Add(ctx, 1, attrs)
	mp.publishDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordHealth records a health probe.
func (mp *MetricsProvider) RecordHealth(ctx context.Context, component string, healthy bool) {
	if mp.initErr != nil {
		return
	}
	mp.healthProbes.Add(ctx, 1, mp.with(
		attribute.String("component", component),
		attribute.Bool("healthy", healthy),
	))
}

// NoopMetricsProvider discards all measurements.
type NoopMetricsProvider struct{}

// RecordOperation is a no-op.
func (NoopMetricsProvider) RecordOperation(context.Context, string, string, time.Duration) {}

// RecordPublish is a no-op.
func (NoopMetricsProvider) RecordPublish(context.Context, string, string, time.Duration) {}

// RecordHealth is a no-op.
func (NoopMetricsProvider) RecordHealth(context.Context, string, bool) {}

var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = NoopMetricsProvider{}
)
