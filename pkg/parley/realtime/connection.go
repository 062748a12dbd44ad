package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/o11y"
)

// State describes the lifecycle of a realtime connection.
type State int32

const (
	// StateIdle means the connection has not been started yet.
	StateIdle State = iota

	// StateConnecting means the connection is registering a device or
	// dialing the socket.
	StateConnecting

	// StateAuthenticated means the authorization frame has been sent.
	StateAuthenticated

	// StateStreaming means inbound frames are being received and dispatched.
	StateStreaming

	// StateReconnecting means the connection was lost and a retry is pending.
	StateReconnecting

	// StateClosed is terminal. A closed connection never reconnects; start a
	// fresh session with a new connection instance.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// authorizationFrame is the first frame sent on every freshly dialed socket.
// The server ignores all subsequent traffic from clients that skip it.
type authorizationFrame struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// Connection maintains a realtime socket to the cloud and keeps it alive
// across transient failures. All reconnection handling lives inside the
// instance: once started it dials, authorizes, streams frames into its
// dispatcher, and retries with exponential backoff until either Disconnect
// is called or the reconnect budget is exhausted.
type Connection struct {
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

	state    atomic.Int32
	started  int32
	stopping int32

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	errMu   sync.Mutex
	lastErr error
}

// Connect registers a device (if needed) and starts the socket loop in the
// background. A registration failure on the initial attempt is returned
// synchronously; once the loop is running, failures feed the reconnect
// machinery instead. Connect returns ErrClosed on a connection that has
// already been closed.
func (c *Connection) Connect(ctx context.Context) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return fmt.Errorf("connection is already started")
	}

	c.setState(StateConnecting)

	if _, err := c.endpoints.Device(ctx); err != nil {
		atomic.StoreInt32(&c.started, 0)
		c.setState(StateIdle)
		return err
	}

	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run()

	return nil
}

// Disconnect stops the socket loop and waits, bounded, for it to exit. It is
// idempotent and safe to call on a connection that was never started. After
// Disconnect the connection is closed permanently.
func (c *Connection) Disconnect() error {
	if !atomic.CompareAndSwapInt32(&c.stopping, 0, 1) {
		return nil
	}

	c.logger.Debug("disconnecting realtime connection")

	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(c.teardownTimeout):
			c.logger.Warn("receive loop did not stop in time")
		}
	}

	c.setState(StateClosed)

	return nil
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Err returns the most recent connection error, or the terminal
// *ExhaustedError once the reconnect budget runs out.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Done returns a channel that is closed when the socket loop has exited.
// For a connection that was never started the returned channel is closed.
func (c *Connection) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("connection state changed", zap.Stringer("state", s))
}

func (c *Connection) recordErr(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

// run is the reconnect loop. Each stream cycle reports whether the server
// accepted an authorization frame; a success resets the attempt counter so
// the budget only counts consecutive failures.
func (c *Connection) run() {
	defer close(c.done)

	attempt := 0
	for {
		authed, err := c.stream()

		if c.ctx.Err() != nil || atomic.LoadInt32(&c.stopping) == 1 {
			// Disconnect owns the terminal state transition.
			return
		}

		if authed {
			attempt = 0
		}
		attempt++
		c.recordErr(err)

		if attempt >= c.maxReconnects {
			exhausted := &ExhaustedError{Attempts: attempt, LastErr: err}
			c.recordErr(exhausted)
			c.logger.Error("reconnect budget exhausted",
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			c.setState(StateClosed)
			return
		}

		c.setState(StateReconnecting)
		c.metrics.Reconnects.Add(c.ctx, 1)

		delay := backoffDelay(c.baseDelay, c.maxDelay, attempt)
		c.logger.Warn("realtime connection lost, reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("max", c.maxReconnects),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return
		}

		c.setState(StateConnecting)
	}
}

// stream runs one connected lifetime: dial, authorize, then receive until the
// socket fails or the connection is stopped. authed reports whether the
// authorization frame was sent on a live socket.
func (c *Connection) stream() (authed bool, err error) {
	device, err := c.endpoints.Device(c.ctx)
	if err != nil {
		return false, err
	}

	dialCtx, cancelDial := context.WithTimeout(c.ctx, c.dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, device.WebSocketURL, nil)
	cancelDial()
	if err != nil {
		// The endpoint may be stale; force a fresh registration next cycle.
		c.endpoints.Invalidate()
		return false, &TransportError{Op: "dial", Err: err}
	}
	conn.SetReadLimit(1 << 20)

	c.mu.Lock()
	if atomic.LoadInt32(&c.stopping) == 1 {
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return false, nil
	}
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.CloseNow()
	}()

	token, err := c.tokens(c.ctx)
	if err != nil {
		return false, err
	}

	frame := authorizationFrame{ID: uuid.NewString(), Type: "authorization"}
	frame.Data.Token = "Bearer " + token
	payload, err := json.Marshal(frame)
	if err != nil {
		return false, err
	}
	if err := conn.Write(c.ctx, websocket.MessageText, payload); err != nil {
		return false, &TransportError{Op: "write", Err: err}
	}

	c.setState(StateAuthenticated)
	c.logger.Info("realtime connection established", zap.String("device", device.ID))
	c.setState(StateStreaming)

	c.metrics.Connected.Set(c.ctx, 1)
	defer c.metrics.Connected.Set(context.Background(), 0)

	return true, c.receive(conn)
}

// receive pumps inbound frames into the dispatcher. Reads happen on a helper
// goroutine because cancelling a Read's context tears down the whole socket;
// the select below watches for frames, read failures, shutdown, and idle
// periods long enough to warrant a liveness ping.
func (c *Connection) receive(conn *websocket.Conn) error {
	frames := make(chan []byte)
	readErrs := make(chan error, 1)

	go func() {
		for {
			_, data, err := conn.Read(c.ctx)
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case frames <- data:
			case <-c.ctx.Done():
				return
			}
		}
	}()

	idle := time.NewTimer(c.readTimeout)
	defer idle.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case err := <-readErrs:
			return &TransportError{Op: "read", Err: err}
		case data := <-frames:
			c.metrics.FramesReceived.Add(c.ctx, 1)
			c.dispatcher.Handle(c.ctx, data)
		case <-idle.C:
			// Nothing received for a full idle period; make sure the other
			// side is still there.
			pingCtx, cancelPing := context.WithTimeout(c.ctx, c.pongTimeout)
			err := conn.Ping(pingCtx)
			cancelPing()
			if err != nil {
				return &TransportError{Op: "ping", Err: err}
			}
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(c.readTimeout)
	}
}

// backoffDelay returns base doubled per attempt, capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return max
	}
	delay := base << (attempt - 1)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}
