package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsarna/parley/pkg/parley/api"
	"github.com/tsarna/parley/pkg/parley/hydra"
)

type fakeStore struct {
	mu    sync.Mutex
	calls []string
	msg   *api.Message
	err   error
}

func (s *fakeStore) GetMessage(ctx context.Context, messageID string) (*api.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messageID)
	if s.err != nil {
		return nil, s.err
	}
	return s.msg, nil
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []*api.Message
	err  error
}

func (h *recordingHandler) OnMessage(ctx context.Context, msg *api.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	return h.err
}

func (h *recordingHandler) received() []*api.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*api.Message(nil), h.msgs...)
}

func activityFrame(verb, globalID, targetID, objectRoomID, activityID string) []byte {
	return []byte(fmt.Sprintf(`{
		"data": {
			"eventType": "conversation.activity",
			"activity": {
				"id": %q,
				"verb": %q,
				"target": {"id": %q, "globalId": %q},
				"object": {"roomId": %q}
			}
		}
	}`, activityID, verb, targetID, globalID, objectRoomID))
}

func TestDispatcherDelivery(t *testing.T) {
	const (
		room  = "Y2lzY29zcGFyazovL3VzL1JPT00vcm9vbS0x"
		actID = "550e8400-e29b-41d4-a716-446655440000"
	)

	t.Run("delivers post in focused room", func(t *testing.T) {
		msg := &api.Message{ID: "msg-1", RoomID: room, Text: "hello"}
		store := &fakeStore{msg: msg}
		handler := &recordingHandler{}
		d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

		d.Handle(context.Background(), activityFrame("post", room, "", "", actID))

		require.Len(t, store.calls, 1)
		assert.Equal(t, hydra.EncodeMessageID(actID), store.calls[0])
		require.Len(t, handler.received(), 1)
		assert.Same(t, msg, handler.received()[0])
	})

	t.Run("delivers share verb", func(t *testing.T) {
		store := &fakeStore{msg: &api.Message{ID: "msg-2"}}
		handler := &recordingHandler{}
		d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

		d.Handle(context.Background(), activityFrame("share", room, "", "", actID))

		assert.Len(t, handler.received(), 1)
	})

	t.Run("ignores other verbs without a lookup", func(t *testing.T) {
		store := &fakeStore{msg: &api.Message{}}
		handler := &recordingHandler{}
		d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

		for _, verb := range []string{"acknowledge", "add", "leave", "update"} {
			d.Handle(context.Background(), activityFrame(verb, room, "", "", actID))
		}

		assert.Zero(t, store.callCount())
		assert.Empty(t, handler.received())
	})

	t.Run("drops traffic for other rooms silently", func(t *testing.T) {
		store := &fakeStore{msg: &api.Message{}}
		handler := &recordingHandler{}
		d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

		d.Handle(context.Background(), activityFrame("post", "some-other-room", "", "", actID))

		assert.Zero(t, store.callCount())
		assert.Empty(t, handler.received())
	})

	t.Run("ignores non-activity events", func(t *testing.T) {
		store := &fakeStore{msg: &api.Message{}}
		handler := &recordingHandler{}
		d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

		d.Handle(context.Background(), []byte(`{"data":{"eventType":"apheleia.subscription_update"}}`))
		d.Handle(context.Background(), []byte(`{"data":{"eventType":"conversation.activity"}}`))

		assert.Zero(t, store.callCount())
	})

	t.Run("survives malformed frames", func(t *testing.T) {
		store := &fakeStore{msg: &api.Message{}}
		handler := &recordingHandler{}
		d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

		d.Handle(context.Background(), []byte("not json"))
		d.Handle(context.Background(), []byte(""))
		d.Handle(context.Background(), []byte(`{"data": 42}`))

		assert.Zero(t, store.callCount())
	})

	t.Run("room id fallback chain", func(t *testing.T) {
		tests := []struct {
			name  string
			frame []byte
		}{
			{"target globalId", activityFrame("post", room, "ignored", "ignored", actID)},
			{"target id", activityFrame("post", "", room, "ignored", actID)},
			{"object roomId", activityFrame("post", "", "", room, actID)},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store := &fakeStore{msg: &api.Message{ID: "msg-3"}}
				handler := &recordingHandler{}
				d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

				d.Handle(context.Background(), tt.frame)

				assert.Len(t, handler.received(), 1)
			})
		}
	})

	t.Run("drops activity without ids", func(t *testing.T) {
		store := &fakeStore{msg: &api.Message{}}
		handler := &recordingHandler{}
		d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

		d.Handle(context.Background(), activityFrame("post", "", "", "", actID))
		d.Handle(context.Background(), activityFrame("post", room, "", "", ""))

		assert.Zero(t, store.callCount())
	})

	t.Run("lookup failure does not reach the handler", func(t *testing.T) {
		store := &fakeStore{err: &api.APIError{StatusCode: 404, Message: "not found"}}
		handler := &recordingHandler{}
		d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

		d.Handle(context.Background(), activityFrame("post", room, "", "", actID))

		assert.Equal(t, 1, store.callCount())
		assert.Empty(t, handler.received())
	})

	t.Run("handler errors are absorbed", func(t *testing.T) {
		store := &fakeStore{msg: &api.Message{ID: "msg-4"}}
		handler := &recordingHandler{err: fmt.Errorf("terminal went away")}
		d := NewDispatcher(store, handler, NewRoomFocus(room), nil)

		assert.NotPanics(t, func() {
			d.Handle(context.Background(), activityFrame("post", room, "", "", actID))
		})
	})

	t.Run("focus switch changes what is delivered", func(t *testing.T) {
		store := &fakeStore{msg: &api.Message{ID: "msg-5"}}
		handler := &recordingHandler{}
		focus := NewRoomFocus(room)
		d := NewDispatcher(store, handler, focus, nil)

		d.Handle(context.Background(), activityFrame("post", "room-b", "", "", actID))
		assert.Empty(t, handler.received())

		focus.Set("room-b")
		d.Handle(context.Background(), activityFrame("post", "room-b", "", "", actID))
		assert.Len(t, handler.received(), 1)
	})
}
