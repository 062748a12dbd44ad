// Package session coordinates the pieces of an interactive chat session: the
// focused room, the realtime link that feeds it, and the user's input loop.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/realtime"
)

// Link is the slice of the realtime connection the controller drives.
// Satisfied by *realtime.Connection.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Err() error
}

// ConnectionFactory builds a fresh realtime link sharing the session's room
// focus. The controller calls it at most once per session: a closed link is
// terminal, so every session gets its own instance.
type ConnectionFactory func(ctx context.Context, focus *realtime.RoomFocus) (Link, error)

// InputFunc runs the user's input loop. It should return when the context is
// cancelled or the input source is exhausted.
type InputFunc func(ctx context.Context) error

// Controller owns one interactive session. It establishes the realtime link
// lazily on the first room join, repoints the shared focus on room switches,
// and tears everything down in order on Stop: input first, then the link.
type Controller struct {
	factory     ConnectionFactory
	input       InputFunc
	logger      *zap.Logger
	stopTimeout time.Duration

	focus *realtime.RoomFocus

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	link      Link
	started   bool
	stopped   bool
	inputDone chan struct{}
}

// ControllerBuilder provides a fluent interface for building session controllers.
type ControllerBuilder struct {
	factory     ConnectionFactory
	input       InputFunc
	logger      *zap.Logger
	stopTimeout time.Duration
}

// NewController creates a new session controller builder.
func NewController() *ControllerBuilder {
	return &ControllerBuilder{
		logger:      zap.NewNop(),
		stopTimeout: 2 * time.Second,
	}
}

// WithConnectionFactory sets the factory that builds the session's realtime link.
func (b *ControllerBuilder) WithConnectionFactory(factory ConnectionFactory) *ControllerBuilder {
	b.factory = factory
	return b
}

// WithInput sets the optional input loop run for the session's lifetime.
func (b *ControllerBuilder) WithInput(input InputFunc) *ControllerBuilder {
	b.input = input
	return b
}

// WithLogger sets the logger for the controller.
func (b *ControllerBuilder) WithLogger(logger *zap.Logger) *ControllerBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithStopTimeout sets how long Stop waits for the input loop to exit.
func (b *ControllerBuilder) WithStopTimeout(timeout time.Duration) *ControllerBuilder {
	if timeout > 0 {
		b.stopTimeout = timeout
	}
	return b
}

// Build creates and returns a new session controller with the configured options.
func (b *ControllerBuilder) Build() (*Controller, error) {
	if b.factory == nil {
		return nil, fmt.Errorf("connection factory is required")
	}

	return &Controller{
		factory:     b.factory,
		input:       b.input,
		logger:      b.logger,
		stopTimeout: b.stopTimeout,
		focus:       realtime.NewRoomFocus(""),
	}, nil
}

// Focus returns the session's shared room focus.
func (c *Controller) Focus() *realtime.RoomFocus {
	return c.focus
}

// Start begins the session, focusing roomID and launching the input loop.
// The realtime link is established before Start returns, so a registration
// failure surfaces here rather than mid-session.
func (c *Controller) Start(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return fmt.Errorf("session is stopped")
	}
	if c.started {
		return fmt.Errorf("session is already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.focus.Set(roomID)

	if err := c.connectLocked(); err != nil {
		c.cancel()
		return err
	}

	if c.input != nil {
		c.inputDone = make(chan struct{})
		go func() {
			defer close(c.inputDone)
			if err := c.input(c.ctx); err != nil && c.ctx.Err() == nil {
				c.logger.Warn("input loop ended with error", zap.Error(err))
			}
		}()
	}

	c.started = true
	c.logger.Info("session started", zap.String("room", roomID))

	return nil
}

// SwitchRoom repoints the session at a different room. The realtime link is
// untouched; the dispatcher simply starts matching the new focus.
func (c *Controller) SwitchRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.stopped {
		return fmt.Errorf("session is not running")
	}

	c.focus.Set(roomID)
	c.logger.Info("switched room", zap.String("room", roomID))

	return nil
}

// Err returns the realtime link's most recent error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return nil
	}
	return link.Err()
}

// Stop ends the session: the input loop is cancelled and given a bounded
// window to exit, then the realtime link is disconnected. Stop is idempotent.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	cancel := c.cancel
	inputDone := c.inputDone
	link := c.link
	c.link = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if inputDone != nil {
		select {
		case <-inputDone:
		case <-time.After(c.stopTimeout):
			c.logger.Warn("input loop did not stop in time")
		}
	}

	if link != nil {
		if err := link.Disconnect(); err != nil {
			return fmt.Errorf("disconnecting realtime link: %w", err)
		}
	}

	c.logger.Info("session stopped")

	return nil
}

func (c *Controller) connectLocked() error {
	link, err := c.factory(c.ctx, c.focus)
	if err != nil {
		return fmt.Errorf("building realtime link: %w", err)
	}
	if err := link.Connect(c.ctx); err != nil {
		return err
	}
	c.link = link
	return nil
}
