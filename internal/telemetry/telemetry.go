// Package telemetry exports traces and metrics for a single extractor run.
//
// A run lives for seconds, so nothing is exported on a timer: spans are sent
// as they end and metrics are collected once by Shutdown.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// metricCollectInterval is longer than any run; the final collection happens
// in Shutdown.
const metricCollectInterval = time.Hour

// Config holds configuration for telemetry setup.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	Enabled        bool
}

// Provider holds the tracer and meter of a run. TracerProvider and
// MeterProvider are nil when export is disabled.
type Provider struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
}

// Shutdown collects the run's metrics and stops both providers. Both are
// stopped even if the first one fails.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Init sets up export to the OTLP collector at cfg.OTLPEndpoint. With export
// disabled the global noop tracer and meter are returned.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			Tracer: otel.Tracer(cfg.ServiceName),
			Meter:  otel.Meter(cfg.ServiceName),
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	spanExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = spanExporter.Shutdown(ctx) //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	p := newProvider(cfg.ServiceName, res,
		sdktrace.WithSyncer(spanExporter),
		sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(metricCollectInterval)),
	)
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
	return p, nil
}

func newProvider(name string, res *resource.Resource, spans sdktrace.TracerProviderOption, reader sdkmetric.Reader) *Provider {
	tp := sdktrace.NewTracerProvider(spans, sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	return &Provider{
		TracerProvider: tp,
		MeterProvider:  mp,
		Tracer:         tp.Tracer(name),
		Meter:          mp.Meter(name),
	}
}

// RunMetrics holds the instruments recorded once per extractor run.
type RunMetrics struct {
	recordsExtracted metric.Int64Counter
	runDuration      metric.Float64Histogram
}

// NewRunMetrics creates the run instruments on the given meter.
func NewRunMetrics(meter metric.Meter) (*RunMetrics, error) {
	recordsExtracted, err := meter.Int64Counter(
		"airdata.records.extracted",
		metric.WithDescription("Number of measurement records parsed from the upstream API"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"airdata.run.duration",
		metric.WithDescription("Duration of an extract run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{
		recordsExtracted: recordsExtracted,
		runDuration:      runDuration,
	}, nil
}

// RecordRecords adds n extracted records.
func (m *RunMetrics) RecordRecords(ctx context.Context, n int, opts ...metric.AddOption) {
	if m == nil {
		return
	}
	m.recordsExtracted.Add(ctx, int64(n), opts...)
}

// RecordDuration records how long a run took.
func (m *RunMetrics) RecordDuration(ctx context.Context, d time.Duration, opts ...metric.RecordOption) {
	if m == nil {
		return
	}
	m.runDuration.Record(ctx, d.Seconds(), opts...)
}
