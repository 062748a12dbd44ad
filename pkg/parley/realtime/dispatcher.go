package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/api"
	"github.com/tsarna/parley/pkg/parley/hydra"
	"github.com/tsarna/parley/pkg/parley/o11y"
)

// MessageStore resolves a message lookup id into a full message. Satisfied
// by *api.Client.
type MessageStore interface {
	GetMessage(ctx context.Context, messageID string) (*api.Message, error)
}

// MessageHandler receives each message that survives filtering. It must not
// block the receive loop for long.
type MessageHandler interface {
	OnMessage(ctx context.Context, msg *api.Message) error
}

// eventTypeActivity marks conversation activity events in the inbound stream.
const eventTypeActivity = "conversation.activity"

// envelope is the inbound frame shape. Events arrive as terse activity
// stubs; the full message body is always re-fetched through the store.
type envelope struct {
	Data struct {
		EventType string    `json:"eventType"`
		Activity  *activity `json:"activity"`
	} `json:"data"`
}

type activity struct {
	ID     string `json:"id"`
	Verb   string `json:"verb"`
	Target *struct {
		ID       string `json:"id"`
		GlobalID string `json:"globalId"`
	} `json:"target"`
	Object *struct {
		RoomID string `json:"roomId"`
	} `json:"object"`
}

// roomID resolves the activity's room id, preferring the globally-routed
// form, then the local target id, then the room id nested under object.
func (a *activity) roomID() string {
	if a.Target != nil {
		if a.Target.GlobalID != "" {
			return a.Target.GlobalID
		}
		if a.Target.ID != "" {
			return a.Target.ID
		}
	}
	if a.Object != nil {
		return a.Object.RoomID
	}
	return ""
}

// Dispatcher filters the inbound frame stream down to new-message activity
// in the focused room, resolves each match into a full message, and invokes
// the handler. No failure in here ever propagates to the receive loop.
type Dispatcher struct {
	store   MessageStore
	handler MessageHandler
	focus   *RoomFocus
	logger  *zap.Logger
	metrics *o11y.PipelineMetrics
}

// NewDispatcher creates a dispatcher. The focus is shared with the session
// controller, which owns writes to it.
func NewDispatcher(store MessageStore, handler MessageHandler, focus *RoomFocus, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:   store,
		handler: handler,
		focus:   focus,
		logger:  logger,
		metrics: o11y.NewPipelineMetrics(o11y.NopMetricsProvider{}),
	}
}

// WithMetrics sets the pipeline metrics recorded by the dispatcher.
func (d *Dispatcher) WithMetrics(metrics *o11y.PipelineMetrics) *Dispatcher {
	if metrics != nil {
		d.metrics = metrics
	}
	return d
}

// Handle processes one raw inbound frame. It never returns an error: frames
// that cannot be used are dropped, and lookup or handler failures are logged
// without disturbing the stream.
func (d *Dispatcher) Handle(ctx context.Context, frame []byte) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		d.logger.Warn("dropping frame",
			zap.Error(&ProtocolError{Reason: "malformed frame", Err: err}))
		d.dropped(ctx, "malformed")
		return
	}

	if env.Data.EventType != eventTypeActivity || env.Data.Activity == nil {
		return
	}

	act := env.Data.Activity
	if act.Verb != "post" && act.Verb != "share" {
		return
	}

	roomID := act.roomID()
	if roomID == "" || act.ID == "" {
		d.logger.Debug("dropping activity without room or activity id",
			zap.String("verb", act.Verb))
		d.dropped(ctx, "incomplete")
		return
	}

	// Traffic for other rooms is routine, not an error.
	if roomID != d.focus.Get() {
		d.dropped(ctx, "other_room")
		return
	}

	lookupID := hydra.EncodeMessageID(act.ID)

	start := time.Now()
	msg, err := d.store.GetMessage(ctx, lookupID)
	d.metrics.LookupLatency.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			d.logger.Warn("message lookup failed",
				zap.String("message_id", lookupID),
				zap.Int("status", apiErr.StatusCode),
			)
		} else {
			d.logger.Error("unexpected error from message store",
				zap.String("message_id", lookupID),
				zap.Error(err),
			)
		}
		d.dropped(ctx, "lookup_failed")
		return
	}

	if err := d.handler.OnMessage(ctx, msg); err != nil {
		d.logger.Warn("message handler error",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}

	d.metrics.EventsDelivered.Add(ctx, 1)
}

func (d *Dispatcher) dropped(ctx context.Context, reason string) {
	d.metrics.EventsDropped.Add(ctx, 1, o11y.Label{Key: "reason", Value: reason})
}
