package log

// MultiLogger fans one event stream out to several destinations, typically
// a SlogAdapter on the console next to a FileLogger capture.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger builds a fan-out over the given loggers. Nil entries are
// dropped and nested MultiLoggers are flattened, so callers can compose
// optional sinks without guarding each one.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{sinks: make([]Logger, 0, len(loggers))}
	for _, l := range loggers {
		switch sink := l.(type) {
		case nil:
			// skip
		case *MultiLogger:
			m.sinks = append(m.sinks, sink.sinks...)
		default:
			m.sinks = append(m.sinks, sink)
		}
	}
	return m
}

// Log forwards the event to every sink in registration order.
func (m *MultiLogger) Log(event Event) {
	for _, sink := range m.sinks {
		sink.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
