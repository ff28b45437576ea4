package connection

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the manager has been closed. Terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// FailureClass categorizes a connect attempt's error for retry policy.
type FailureClass uint8

const (
	// FailureTransient errors (socket refused, timeouts) are retried until
	// the attempt cap.
	FailureTransient FailureClass = iota

	// FailureProtocol errors (handshake violations, malformed frames) are
	// retried, but a run of them trips the consecutive-failure cap.
	FailureProtocol

	// FailureFatal errors (credentials rejected) stop retrying immediately.
	FailureFatal
)

// String returns a human-readable class name.
func (c FailureClass) String() string {
	switch c {
	case FailureTransient:
		return "TRANSIENT"
	case FailureProtocol:
		return "PROTOCOL"
	case FailureFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ClassifyFunc maps a connect attempt's error to a FailureClass.
type ClassifyFunc func(error) FailureClass
