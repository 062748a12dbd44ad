// Package otel provides OpenTelemetry implementations for parley observability interfaces.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tsarna/parley/pkg/parley/o11y"
)

// Provider implements o11y.MetricsProvider using OpenTelemetry
type Provider struct {
	meter metric.Meter
}

// NewProvider creates a new OpenTelemetry provider for parley observability
func NewProvider(serviceName, serviceVersion string) *Provider {
	return &Provider{
		meter: otel.Meter(serviceName, metric.WithInstrumentationVersion(serviceVersion)),
	}
}

// Counter creates an OpenTelemetry counter
func (p *Provider) Counter(name string) o11y.Counter {
	counter, _ := p.meter.Int64Counter(name)
	return &otelCounter{counter: counter}
}

// Histogram creates an OpenTelemetry histogram
func (p *Provider) Histogram(name string) o11y.Histogram {
	histogram, _ := p.meter.Float64Histogram(name)
	return &otelHistogram{histogram: histogram}
}

// Gauge creates an OpenTelemetry gauge
func (p *Provider) Gauge(name string) o11y.Gauge {
	gauge, _ := p.meter.Float64Gauge(name)
	return &otelGauge{gauge: gauge}
}

// otelCounter wraps OpenTelemetry counter
type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, labels ...o11y.Label) {
	c.counter.Add(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

// otelHistogram wraps OpenTelemetry histogram
type otelHistogram struct {
	histogram metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, labels ...o11y.Label) {
	h.histogram.Record(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

// otelGauge wraps OpenTelemetry gauge
type otelGauge struct {
	gauge metric.Float64Gauge
}

func (g *otelGauge) Set(ctx context.Context, value float64, labels ...o11y.Label) {
	g.gauge.Record(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

func toAttributes(labels []o11y.Label) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(labels))
	for i, label := range labels {
		attrs[i] = attribute.String(label.Key, label.Value)
	}
	return attrs
}
