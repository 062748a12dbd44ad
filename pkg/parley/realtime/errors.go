package realtime

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Connect when the connection has reached its
// terminal state. A closed connection is never reused; construct a new one.
var ErrClosed = errors.New("realtime: connection is closed")

// RegistrationError indicates device registration failed. The registrar never
// retries; retry policy belongs to the connection's reconnect loop.
type RegistrationError struct {
	StatusCode int // zero when the request never reached the server
	Message    string
	Err        error
}

func (e *RegistrationError) Error() string {
	if e.StatusCode != 0 {
		if e.Message != "" {
			return fmt.Sprintf("device registration failed with status %d: %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("device registration failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("device registration failed: %v", e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// TransportError indicates a socket-level failure: dial, read, write, or a
// missed pong. It triggers the reconnect path.
type TransportError struct {
	Op  string // "dial", "read", "write", "ping"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError classifies a frame the client could not interpret. It is
// logged and the frame dropped; the stream keeps going.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("realtime protocol: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("realtime protocol: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ExhaustedError is the terminal failure surfaced after the reconnect budget
// is spent with no intervening successful authentication.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("realtime: giving up after %d reconnect attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }
