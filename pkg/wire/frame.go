package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// FrameType identifies a channel frame.
type FrameType string

// Channel frame types.
const (
	// FrameConnectionInit opens the protocol session after the socket dials.
	FrameConnectionInit FrameType = "connection_init"

	// FrameConnectionAck acknowledges connection_init.
	FrameConnectionAck FrameType = "connection_ack"

	// FrameConnectionError rejects connection_init.
	FrameConnectionError FrameType = "connection_error"

	// FrameKeepAlive is the server's periodic liveness frame.
	FrameKeepAlive FrameType = "ka"

	// FrameStart requests a feed subscription.
	FrameStart FrameType = "start"

	// FrameStartAck acknowledges a start frame.
	FrameStartAck FrameType = "start_ack"

	// FrameData carries a feed item for an active subscription.
	FrameData FrameType = "data"

	// FrameError reports a server-side subscription or protocol error.
	FrameError FrameType = "error"

	// FrameComplete signals the server ended a subscription.
	FrameComplete FrameType = "complete"

	// FrameStop cancels a subscription. Not acknowledged.
	FrameStop FrameType = "stop"
)

// Frame is one channel message in either direction.
type Frame struct {
	// ID correlates start/start_ack/data/stop frames. Empty for
	// session-level frames (connection_init, ka, ...).
	ID string `json:"id,omitempty"`

	// Type identifies the frame.
	Type FrameType `json:"type"`

	// Payload is the frame body, shape depending on Type.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// String renders a short form for logs, payload omitted.
func (f *Frame) String() string {
	if f.ID == "" {
		return string(f.Type)
	}
	return fmt.Sprintf("%s id=%s", f.Type, f.ID)
}

// Authorization is the auth object the feed service expects, both inside
// start-frame extensions and base64-encoded in the dial URL query.
type Authorization struct {
	// Token is the identity provider's ID token.
	Token string `json:"Authorization"`

	// Host is the HTTPS API host the token is scoped to.
	Host string `json:"host"`
}

// EncodeHeader returns the base64 form of the authorization object used as
// the "header" query parameter when dialing the feed endpoint.
func (a Authorization) EncodeHeader() (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode authorization: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// EmptyPayload is the base64 encoding of "{}", the fixed "payload" query
// parameter the feed service requires when dialing.
const EmptyPayload = "e30="

// startPayload is the body of a start frame.
type startPayload struct {
	// Data is the GraphQL request, JSON-encoded as a string.
	Data string `json:"data"`

	// Extensions carries the per-subscription authorization.
	Extensions startExtensions `json:"extensions"`
}

type startExtensions struct {
	Authorization Authorization `json:"authorization"`
}

// NewConnectionInit builds the session-opening frame.
func NewConnectionInit() *Frame {
	return &Frame{Type: FrameConnectionInit}
}

// NewStart builds a subscription start frame. The GraphQL request is
// JSON-encoded into the payload's data string, as the feed service expects.
func NewStart(id string, req GraphQLRequest, auth Authorization) (*Frame, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode start request: %w", err)
	}
	payload, err := json.Marshal(startPayload{
		Data:       string(data),
		Extensions: startExtensions{Authorization: auth},
	})
	if err != nil {
		return nil, fmt.Errorf("encode start payload: %w", err)
	}
	return &Frame{ID: id, Type: FrameStart, Payload: payload}, nil
}

// NewStop builds a subscription cancel frame.
func NewStop(id string) *Frame {
	return &Frame{ID: id, Type: FrameStop}
}
