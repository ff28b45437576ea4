package barrier

// Status is the movement status of a barrier.
type Status uint8

const (
	// StatusUnknown means the backend reported no usable status.
	StatusUnknown Status = iota

	// StatusClosed means the barrier is fully closed.
	StatusClosed

	// StatusOpen means the barrier is fully open.
	StatusOpen

	// StatusOpening means the barrier is moving toward open.
	StatusOpening

	// StatusClosing means the barrier is moving toward closed.
	StatusClosing

	// StatusStopped means movement halted before reaching an end position.
	StatusStopped
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusOpen:
		return "open"
	case StatusOpening:
		return "opening"
	case StatusClosing:
		return "closing"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Moving reports whether the barrier is in motion.
func (s Status) Moving() bool {
	return s == StatusOpening || s == StatusClosing
}

// ParseStatus maps a reported barrierStatus value to a Status.
// Unrecognized values map to StatusUnknown.
func ParseStatus(raw string) Status {
	switch raw {
	case "closed", "0":
		return StatusClosed
	case "open", "1":
		return StatusOpen
	case "opening", "2":
		return StatusOpening
	case "closing", "3":
		return StatusClosing
	case "stopped", "4":
		return StatusStopped
	default:
		return StatusUnknown
	}
}
