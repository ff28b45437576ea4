package dispatch

import (
	"github.com/gatewave/gatewave-go/pkg/barrier"
)

// Event is one dispatched occurrence. The concrete types below are the
// complete set; listeners type-switch on them.
type Event interface {
	// eventDevice returns the device the event concerns, or "" for
	// connection-level events delivered to every listener.
	eventDevice() string
}

// ConnectedEvent reports the initial connection is established and
// subscriptions are live.
type ConnectedEvent struct{}

func (ConnectedEvent) eventDevice() string { return "" }

// ConnectionLostEvent reports a detected connection loss. Reconnection
// starts immediately afterwards unless disabled.
type ConnectionLostEvent struct {
	// Err is what killed the connection.
	Err error
}

func (ConnectionLostEvent) eventDevice() string { return "" }

// ReconnectedEvent reports a successful reconnect after an outage.
// Subscriptions have been re-established; no re-registration is needed.
type ReconnectedEvent struct{}

func (ReconnectedEvent) eventDevice() string { return "" }

// BarrierStateEvent carries a new device state snapshot from the
// device-state feed.
type BarrierStateEvent struct {
	// State is the full snapshot replacing the previous one.
	State barrier.State
}

func (e BarrierStateEvent) eventDevice() string { return e.State.DeviceID }

// ObstructedEvent reports that barrier movement was blocked by an
// obstruction.
type ObstructedEvent struct {
	// DeviceID is the obstructed barrier.
	DeviceID string

	// Timestamp is the backend's event time, verbatim.
	Timestamp string
}

func (e ObstructedEvent) eventDevice() string { return e.DeviceID }
