package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Manager errors.
var (
	ErrConnectionClosed     = errors.New("connection manager closed")
	ErrAlreadyConnected     = errors.New("already connected")
	ErrRetriesExhausted     = errors.New("reconnect attempts exhausted")
	ErrProtocolFailureLimit = errors.New("too many consecutive protocol failures")
)

// Retry policy defaults.
const (
	// DefaultMaxAttempts is the reconnect attempt cap per outage.
	DefaultMaxAttempts = 20

	// DefaultMaxProtocolFailures is the consecutive protocol-failure cap.
	DefaultMaxProtocolFailures = 5

	// DefaultConnectTimeout bounds a single reconnect attempt.
	DefaultConnectTimeout = 30 * time.Second

	// NoLimit disables an attempt cap.
	NoLimit = -1
)

// ConnectFunc is called to establish a connection. It must perform the full
// dial-and-handshake sequence and return nil only once the connection is
// usable.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig customizes retry policy. Zero values take the defaults
// above; NoLimit disables a cap.
type ManagerConfig struct {
	// Backoff configures the delay schedule between attempts.
	Backoff BackoffConfig

	// MaxAttempts caps reconnect attempts within one outage. The counter
	// resets when a connection succeeds.
	MaxAttempts int

	// MaxProtocolFailures caps consecutive attempts failing with
	// protocol-class errors.
	MaxProtocolFailures int

	// ConnectTimeout bounds each reconnect attempt.
	ConnectTimeout time.Duration

	// Classify maps attempt errors to failure classes. Nil treats every
	// error as transient.
	Classify ClassifyFunc
}

// Manager manages connection lifecycle with automatic reconnection.
//
// Callbacks must be registered before StartReconnectLoop. They are invoked
// from the manager's goroutines and must not call Close.
type Manager struct {
	mu sync.RWMutex

	state State

	backoff   *Backoff
	connectFn ConnectFunc

	maxAttempts         int
	maxProtocolFailures int
	connectTimeout      time.Duration
	classify            ClassifyFunc

	autoReconnect bool

	// Root context cancelled on Close or terminal failure.
	ctx    context.Context
	cancel context.CancelFunc

	// Joins the reconnect goroutine.
	wg sync.WaitGroup

	// Signals the reconnect loop; buffered so triggers never block.
	reconnectCh chan struct{}

	onStateChange    func(oldState, newState State)
	onConnected      func()
	onConnectionLost func(err error)
	onReconnecting   func(attempt int, delay time.Duration)
	onRetryFailed    func(attempt int, err error)
	onTerminalError  func(err error)
}

// NewManager creates a manager with default retry policy.
func NewManager(connectFn ConnectFunc) *Manager {
	return NewManagerWithConfig(connectFn, ManagerConfig{})
}

// NewManagerWithConfig creates a manager with a custom retry policy.
func NewManagerWithConfig(connectFn ConnectFunc, cfg ManagerConfig) *Manager {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxProtocolFailures == 0 {
		cfg.MaxProtocolFailures = DefaultMaxProtocolFailures
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		state:               StateDisconnected,
		backoff:             NewBackoffWithConfig(cfg.Backoff),
		connectFn:           connectFn,
		maxAttempts:         cfg.MaxAttempts,
		maxProtocolFailures: cfg.MaxProtocolFailures,
		connectTimeout:      cfg.ConnectTimeout,
		classify:            cfg.Classify,
		autoReconnect:       true,
		ctx:                 ctx,
		cancel:              cancel,
		reconnectCh:         make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect enables or disables automatic reconnection.
// With reconnection disabled, a connection loss leaves the manager
// DISCONNECTED instead of retrying.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// BackoffAttempts returns the attempt count of the current outage.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

// Connect initiates the first connection: DISCONNECTED → CONNECTING →
// CONNECTED, or back to DISCONNECTED with the attempt's error. Initial
// connection failures are returned to the caller, not retried.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrConnectionClosed
	}

	oldState := m.state
	m.state = StateConnecting
	stateCb := m.onStateChange
	m.mu.Unlock()

	if stateCb != nil {
		stateCb(oldState, StateConnecting)
	}

	err := m.connectFn(ctx)

	m.mu.Lock()
	if err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		if stateCb != nil {
			stateCb(StateConnecting, StateDisconnected)
		}
		return err
	}

	m.state = StateConnected
	m.backoff.Reset()
	connectedCb := m.onConnected
	m.mu.Unlock()

	if stateCb != nil {
		stateCb(StateConnecting, StateConnected)
	}
	if connectedCb != nil {
		connectedCb()
	}

	return nil
}

// NotifyConnectionLost reports a detected connection loss (read failure,
// keepalive expiry). From CONNECTED it moves to RECONNECTING and kicks the
// reconnect loop; in any other state it is a no-op, so one outage produces
// exactly one transition however many failures the teardown generates.
func (m *Manager) NotifyConnectionLost(err error) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	oldState := m.state
	autoReconnect := m.autoReconnect

	if autoReconnect {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	newState := m.state
	stateCb := m.onStateChange
	lostCb := m.onConnectionLost
	m.mu.Unlock()

	if stateCb != nil {
		stateCb(oldState, newState)
	}
	if lostCb != nil {
		lostCb(err)
	}

	if autoReconnect {
		m.triggerReconnect()
	}
}

// StartReconnectLoop starts the background reconnection goroutine.
// Must be called exactly once before losses can be recovered.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go m.reconnectLoop()
}

// Close shuts down the manager: any state → CLOSED. It cancels in-flight
// backoff waits and joins the reconnect goroutine. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		m.cancel()
		m.wg.Wait()
		return
	}

	oldState := m.state
	m.state = StateClosed
	stateCb := m.onStateChange
	m.mu.Unlock()

	if stateCb != nil {
		stateCb(oldState, StateClosed)
	}

	m.cancel()
	m.wg.Wait()
}

// triggerReconnect signals that reconnection should be attempted.
func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

// attemptReconnect retries the connect function with backoff until success,
// a tripped cap, a fatal error, or Close.
func (m *Manager) attemptReconnect() {
	protocolRun := 0

	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()

		m.mu.RLock()
		reconnectingCb := m.onReconnecting
		retryFailedCb := m.onRetryFailed
		m.mu.RUnlock()

		if reconnectingCb != nil {
			reconnectingCb(attempt, delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		if m.State() != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.connectTimeout)
		err := m.connectFn(ctx)
		cancel()

		if err == nil {
			m.mu.Lock()
			if m.state != StateReconnecting {
				// Closed while the attempt was in flight.
				m.mu.Unlock()
				return
			}
			oldState := m.state
			m.state = StateConnected
			m.backoff.Reset()
			stateCb := m.onStateChange
			connectedCb := m.onConnected
			m.mu.Unlock()

			if stateCb != nil {
				stateCb(oldState, StateConnected)
			}
			if connectedCb != nil {
				connectedCb()
			}
			return
		}

		// The error is always reported; a silently swallowed retry
		// failure is the bug class this loop exists to prevent.
		if retryFailedCb != nil {
			retryFailedCb(attempt, err)
		}

		switch m.classifyErr(err) {
		case FailureFatal:
			m.terminate(err)
			return
		case FailureProtocol:
			protocolRun++
			if m.maxProtocolFailures != NoLimit && protocolRun >= m.maxProtocolFailures {
				m.terminate(fmt.Errorf("%w: %w", ErrProtocolFailureLimit, err))
				return
			}
		default:
			protocolRun = 0
		}

		if m.maxAttempts != NoLimit && attempt >= m.maxAttempts {
			m.terminate(fmt.Errorf("%w: %d attempts, last error: %w",
				ErrRetriesExhausted, attempt, err))
			return
		}
	}
}

func (m *Manager) classifyErr(err error) FailureClass {
	if m.classify == nil {
		return FailureTransient
	}
	return m.classify(err)
}

// terminate moves to CLOSED and surfaces err through the terminal-error
// callback. Runs on the reconnect goroutine, so it cancels without joining.
func (m *Manager) terminate(err error) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	m.state = StateClosed
	stateCb := m.onStateChange
	terminalCb := m.onTerminalError
	m.mu.Unlock()

	if stateCb != nil {
		stateCb(oldState, StateClosed)
	}
	if terminalCb != nil {
		terminalCb(err)
	}

	m.cancel()
}

// OnStateChange sets a callback for state transitions.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback for successful connection, initial or retried.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnConnectionLost sets a callback for detected connection losses.
func (m *Manager) OnConnectionLost(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnectionLost = fn
}

// OnReconnecting sets a callback fired before each reconnect wait.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// OnRetryFailed sets a callback fired after each failed reconnect attempt.
func (m *Manager) OnRetryFailed(fn func(attempt int, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRetryFailed = fn
}

// OnTerminalError sets a callback fired when retrying gives up and the
// manager closes itself.
func (m *Manager) OnTerminalError(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTerminalError = fn
}
