package client

import (
	"errors"
	"fmt"
)

// Client errors.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotConnected     = errors.New("not connected")
	ErrClientClosed     = errors.New("client closed")
	ErrUnknownBarrier   = errors.New("unknown barrier")
	ErrCommandRejected  = errors.New("command rejected by backend")
)

// AuthError reports rejected or unusable credentials. Never retried
// automatically; the caller must re-authenticate.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports a socket-level failure. Connection-level
// transport errors trigger automatic reconnection.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a violated protocol expectation: a missing
// handshake acknowledgement, a rejected subscription, a malformed or
// unexpected frame. Retried like a transport error, but a run of
// consecutive protocol failures trips the retry policy's cap.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// CommandError reports a single device command the backend rejected or
// that could not be delivered. The connection is unaffected.
type CommandError struct {
	BarrierID string
	Action    string
	Err       error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("command for %s failed: %v", e.BarrierID, e.Err)
	}
	return fmt.Sprintf("%s command for %s failed: %v", e.Action, e.BarrierID, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// TimeoutError reports a bounded wait that expired: a command with no
// response, an acknowledgement that never came.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
