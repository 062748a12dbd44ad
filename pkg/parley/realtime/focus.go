package realtime

import "sync/atomic"

// RoomFocus holds the single room id the session is currently listening to.
// It is written by the session controller on room switches and read by the
// event dispatcher on every frame, so the value is swapped atomically rather
// than mutated in place.
type RoomFocus struct {
	id atomic.Value // string
}

// NewRoomFocus creates a focus, optionally pre-set to a room id.
func NewRoomFocus(roomID string) *RoomFocus {
	f := &RoomFocus{}
	f.id.Store(roomID)
	return f
}

// Set replaces the focused room id.
func (f *RoomFocus) Set(roomID string) {
	f.id.Store(roomID)
}

// Get returns the focused room id, or "" when no room is focused.
func (f *RoomFocus) Get() string {
	id, _ := f.id.Load().(string)
	return id
}
