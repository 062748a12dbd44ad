package realtime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/o11y"
)

// EndpointSource provides the realtime socket endpoint. Satisfied by *Registrar.
type EndpointSource interface {
	Device(ctx context.Context) (*Device, error)
	Invalidate()
}

// ConnectionBuilder provides a fluent interface for building realtime connections.
type ConnectionBuilder struct {
	endpoints  EndpointSource
	tokens     TokenSource
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *o11y.PipelineMetrics

	dialTimeout     time.Duration
	readTimeout     time.Duration
	pongTimeout     time.Duration
	teardownTimeout time.Duration
	maxReconnects   int
	baseDelay       time.Duration
	maxDelay        time.Duration
}

// NewConnection creates a new realtime connection builder.
func NewConnection() *ConnectionBuilder {
	return &ConnectionBuilder{
		logger:          zap.NewNop(),
		metrics:         o11y.NewPipelineMetrics(o11y.NopMetricsProvider{}),
		dialTimeout:     30 * time.Second,
		readTimeout:     30 * time.Second,
		pongTimeout:     5 * time.Second,
		teardownTimeout: 2 * time.Second,
		maxReconnects:   5,
		baseDelay:       time.Second,
		maxDelay:        30 * time.Second,
	}
}

// WithEndpointSource sets the device registrar providing the socket endpoint.
func (b *ConnectionBuilder) WithEndpointSource(endpoints EndpointSource) *ConnectionBuilder {
	b.endpoints = endpoints
	return b
}

// WithTokenSource sets the bearer token source used for the authorization frame.
func (b *ConnectionBuilder) WithTokenSource(tokens TokenSource) *ConnectionBuilder {
	b.tokens = tokens
	return b
}

// WithDispatcher sets the dispatcher that receives every inbound frame.
func (b *ConnectionBuilder) WithDispatcher(dispatcher *Dispatcher) *ConnectionBuilder {
	b.dispatcher = dispatcher
	return b
}

// WithLogger sets the logger for the connection.
func (b *ConnectionBuilder) WithLogger(logger *zap.Logger) *ConnectionBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithMetrics sets the pipeline metrics recorded by the connection.
func (b *ConnectionBuilder) WithMetrics(metrics *o11y.PipelineMetrics) *ConnectionBuilder {
	if metrics != nil {
		b.metrics = metrics
	}
	return b
}

// WithDialTimeout sets the timeout for establishing the socket.
func (b *ConnectionBuilder) WithDialTimeout(timeout time.Duration) *ConnectionBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithReadTimeout sets how long the receive loop waits for a frame before
// probing the connection with a ping.
func (b *ConnectionBuilder) WithReadTimeout(timeout time.Duration) *ConnectionBuilder {
	if timeout > 0 {
		b.readTimeout = timeout
	}
	return b
}

// WithPongTimeout sets how long a liveness ping waits for its pong.
func (b *ConnectionBuilder) WithPongTimeout(timeout time.Duration) *ConnectionBuilder {
	if timeout > 0 {
		b.pongTimeout = timeout
	}
	return b
}

// WithTeardownTimeout sets how long Disconnect waits for the receive loop to
// stop before proceeding anyway.
func (b *ConnectionBuilder) WithTeardownTimeout(timeout time.Duration) *ConnectionBuilder {
	if timeout > 0 {
		b.teardownTimeout = timeout
	}
	return b
}

// WithMaxReconnects sets the reconnect budget. When this many consecutive
// attempts fail with no successful authentication in between, the connection
// closes permanently.
func (b *ConnectionBuilder) WithMaxReconnects(max int) *ConnectionBuilder {
	if max > 0 {
		b.maxReconnects = max
	}
	return b
}

// WithBackoff sets the reconnect backoff's base delay and ceiling.
func (b *ConnectionBuilder) WithBackoff(base, max time.Duration) *ConnectionBuilder {
	if base > 0 {
		b.baseDelay = base
	}
	if max > 0 {
		b.maxDelay = max
	}
	return b
}

// Build creates and returns a new realtime connection with the configured options.
func (b *ConnectionBuilder) Build() (*Connection, error) {
	if b.endpoints == nil {
		return nil, fmt.Errorf("endpoint source is required")
	}
	if b.tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if b.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	return &Connection{
		endpoints:       b.endpoints,
		tokens:          b.tokens,
		dispatcher:      b.dispatcher,
		logger:          b.logger,
		metrics:         b.metrics,
		dialTimeout:     b.dialTimeout,
		readTimeout:     b.readTimeout,
		pongTimeout:     b.pongTimeout,
		teardownTimeout: b.teardownTimeout,
		maxReconnects:   b.maxReconnects,
		baseDelay:       b.baseDelay,
		maxDelay:        b.maxDelay,
	}, nil
}
