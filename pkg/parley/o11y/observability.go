package o11y

import (
	"context"
)

// MetricsProvider abstracts metrics collection (can be implemented with OpenTelemetry, Prometheus, etc.)
type MetricsProvider interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// Counter represents a monotonically increasing metric
type Counter interface {
	Add(ctx context.Context, value int64, labels ...Label)
}

// Histogram records distribution of values
type Histogram interface {
	Record(ctx context.Context, value float64, labels ...Label)
}

// Gauge represents a value that can go up and down
type Gauge interface {
	Set(ctx context.Context, value float64, labels ...Label)
}

// Label represents a key-value pair for metrics
type Label struct {
	Key   string
	Value string
}

// PipelineMetrics bundles the instruments recorded by the realtime event
// pipeline. All fields are non-nil after NewPipelineMetrics.
type PipelineMetrics struct {
	FramesReceived  Counter   // raw frames read from the socket
	EventsDelivered Counter   // filter matches handed to the message callback
	EventsDropped   Counter   // frames discarded (labelled by reason)
	Reconnects      Counter   // reconnect attempts
	LookupLatency   Histogram // message store fetch duration, seconds
	Connected       Gauge     // 1 while streaming, 0 otherwise
}

// NewPipelineMetrics creates the realtime pipeline instruments from a provider.
func NewPipelineMetrics(provider MetricsProvider) *PipelineMetrics {
	return &PipelineMetrics{
		FramesReceived:  provider.Counter("parley.realtime.frames_received"),
		EventsDelivered: provider.Counter("parley.realtime.events_delivered"),
		EventsDropped:   provider.Counter("parley.realtime.events_dropped"),
		Reconnects:      provider.Counter("parley.realtime.reconnects"),
		LookupLatency:   provider.Histogram("parley.realtime.lookup_seconds"),
		Connected:       provider.Gauge("parley.realtime.connected"),
	}
}

// NopMetricsProvider is a MetricsProvider whose instruments discard all
// recordings. Useful as a default when no metrics backend is configured.
type NopMetricsProvider struct{}

func (NopMetricsProvider) Counter(name string) Counter     { return nopInstrument{} }
func (NopMetricsProvider) Histogram(name string) Histogram { return nopInstrument{} }
func (NopMetricsProvider) Gauge(name string) Gauge         { return nopInstrument{} }

type nopInstrument struct{}

func (nopInstrument) Add(ctx context.Context, value int64, labels ...Label)      {}
func (nopInstrument) Record(ctx context.Context, value float64, labels ...Label) {}
func (nopInstrument) Set(ctx context.Context, value float64, labels ...Label)    {}
