package log

import (
	"time"
)

// Event represents a client log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the feed connection (UUID).
	// Changes on every reconnect.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// DeviceID is the barrier the event concerns, when known.
	DeviceID string `cbor:"6,keyasint,omitempty"`

	// Endpoint is the backend host the event was exchanged with.
	Endpoint string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"8,keyasint,omitempty"`  // Feed channel frames
	Command     *CommandEvent     `cbor:"9,keyasint,omitempty"`  // GraphQL queries and mutations
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"` // Connection/subscription state
	Error       *ErrorEventData   `cbor:"11,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the WebSocket feed channel.
	LayerTransport Layer = 0
	// LayerAPI is the HTTPS GraphQL endpoint.
	LayerAPI Layer = 1
	// LayerClient is the client facade (lifecycle, dispatch).
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerAPI:
		return "API"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame indicates a feed channel frame.
	CategoryFrame Category = 0
	// CategoryCommand indicates a GraphQL query or mutation.
	CategoryCommand Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one feed channel frame.
type FrameEvent struct {
	// Type is the frame type (connection_init, ka, start, data, ...).
	Type string `cbor:"1,keyasint"`

	// SubscriptionID correlates subscription-scoped frames.
	SubscriptionID string `cbor:"2,keyasint,omitempty"`

	// Size is the encoded frame size in bytes.
	Size int `cbor:"3,keyasint"`

	// Payload is the raw frame payload (may be truncated for large frames).
	Payload []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Payload was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// CommandEvent captures a GraphQL call against the HTTPS endpoint.
type CommandEvent struct {
	// Operation is the GraphQL operation name (devicesListAll, devicesControl).
	Operation string `cbor:"1,keyasint"`

	// Action is the control action for devicesControl calls.
	Action string `cbor:"2,keyasint,omitempty"`

	// Duration is the round-trip time, set on completion events.
	Duration *time.Duration `cbor:"3,keyasint,omitempty"`

	// Accepted is the backend's boolean verdict for control mutations.
	Accepted *bool `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures connection and subscription lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySubscription indicates a feed subscription change.
	StateEntitySubscription StateEntity = 1
	// StateEntityToken indicates an authentication token change.
	StateEntityToken StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	case StateEntityToken:
		return "TOKEN"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
