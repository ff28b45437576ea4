package transport

import (
	"errors"
	"fmt"
)

// Channel errors.
var (
	ErrChannelClosed    = errors.New("channel closed")
	ErrHandshakeTimeout = errors.New("connection_ack not received in time")
	ErrSubscribeTimeout = errors.New("start_ack not received in time")
	ErrKeepAliveExpired = errors.New("keep-alive expired")
)

// UpgradeError reports a WebSocket upgrade the backend answered with a
// plain HTTP response instead of switching protocols. StatusCode carries
// the response status so callers can tell a rejected credential (401,
// 403) from a server-side failure.
type UpgradeError struct {
	StatusCode int
	Err        error
}

func (e *UpgradeError) Error() string {
	return fmt.Sprintf("upgrade rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *UpgradeError) Unwrap() error {
	return e.Err
}

// HandshakeError reports a connection establishment rejected by the
// backend (a connection_error frame, or an unusable ack exchange).
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake rejected: %s", e.Reason)
}

// SubscriptionError reports a subscription refused by the backend.
type SubscriptionError struct {
	ID     string
	Reason string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s rejected: %s", e.ID, e.Reason)
}
