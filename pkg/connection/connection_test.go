package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fastBackoff keeps retry tests quick and deterministic.
func fastBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Millisecond,
		Max:        5 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     -1,
	}
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for state %s, stuck at %s", want, m.State())
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestFailureClassString(t *testing.T) {
	tests := []struct {
		class FailureClass
		want  string
	}{
		{FailureTransient, "transient"},
		{FailureProtocol, "protocol"},
		{FailureFatal, "fatal"},
		{FailureClass(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("FailureClass(%d).String() = %q, want %q", tt.class, got, tt.want)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff()

	if b.Peek() != InitialBackoff {
		t.Errorf("initial backoff = %v, want %v", b.Peek(), InitialBackoff)
	}
	if b.Attempts() != 0 {
		t.Errorf("attempts = %d, want 0", b.Attempts())
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    time.Second,
		Max:        4 * time.Second,
		Multiplier: 2.0,
		Jitter:     -1,
	})

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}

	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i+1, got, w)
		}
	}

	if b.Attempts() != len(want) {
		t.Errorf("attempts = %d, want %d", b.Attempts(), len(want))
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    time.Second,
		Max:        time.Second,
		Multiplier: 2.0,
		Jitter:     0.25,
	})

	for i := 0; i < 100; i++ {
		d := b.Next()
		lo := time.Duration(float64(time.Second) * 0.75)
		hi := time.Duration(float64(time.Second) * 1.25)
		if d < lo || d > hi {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, lo, hi)
		}
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoffWithConfig(fastBackoff())

	b.Next()
	b.Next()
	b.Reset()

	if b.Attempts() != 0 {
		t.Errorf("attempts after reset = %d, want 0", b.Attempts())
	}
	if b.Peek() != time.Millisecond {
		t.Errorf("delay after reset = %v, want %v", b.Peek(), time.Millisecond)
	}
}

func TestManagerInitialState(t *testing.T) {
	m := NewManager(func(ctx context.Context) error { return nil })
	defer m.Close()

	if m.State() != StateDisconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.State())
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true before Connect")
	}
}

func TestManagerConnect(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	defer m.Close()

	var transitions []string
	m.OnStateChange(func(oldState, newState State) {
		transitions = append(transitions, oldState.String()+">"+newState.String())
	})

	connected := make(chan struct{}, 1)
	m.OnConnected(func() { connected <- struct{}{} })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("OnConnected not invoked")
	}

	if !m.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if calls.Load() != 1 {
		t.Errorf("connect function called %d times, want 1", calls.Load())
	}

	want := []string{"DISCONNECTED>CONNECTING", "CONNECTING>CONNECTED"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i, w := range want {
		if transitions[i] != w {
			t.Errorf("transition #%d = %q, want %q", i, transitions[i], w)
		}
	}
}

func TestManagerConnectFailure(t *testing.T) {
	connectErr := errors.New("dial refused")
	m := NewManager(func(ctx context.Context) error { return connectErr })
	defer m.Close()

	err := m.Connect(context.Background())
	if !errors.Is(err, connectErr) {
		t.Fatalf("Connect() error = %v, want %v", err, connectErr)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state after failed Connect = %s, want DISCONNECTED", m.State())
	}
}

func TestManagerConnectWhenConnected(t *testing.T) {
	m := NewManager(func(ctx context.Context) error { return nil })
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

func TestManagerConnectAfterClose(t *testing.T) {
	m := NewManager(func(ctx context.Context) error { return nil })
	m.Close()

	if err := m.Connect(context.Background()); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Connect() after Close error = %v, want ErrConnectionClosed", err)
	}
}

func TestManagerReconnectsAfterLoss(t *testing.T) {
	var calls atomic.Int32
	m := NewManagerWithConfig(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, ManagerConfig{Backoff: fastBackoff()})
	defer m.Close()

	connected := make(chan struct{}, 2)
	m.OnConnected(func() { connected <- struct{}{} })

	lost := make(chan error, 1)
	m.OnConnectionLost(func(err error) { lost <- err })

	m.StartReconnectLoop()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	<-connected

	wsErr := errors.New("websocket: close 1006")
	m.NotifyConnectionLost(wsErr)

	select {
	case err := <-lost:
		if !errors.Is(err, wsErr) {
			t.Errorf("OnConnectionLost err = %v, want %v", err, wsErr)
		}
	case <-time.After(time.Second):
		t.Fatal("OnConnectionLost not invoked")
	}

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not reconnect")
	}

	if !m.IsConnected() {
		t.Errorf("state after reconnect = %s, want CONNECTED", m.State())
	}
	if calls.Load() != 2 {
		t.Errorf("connect function called %d times, want 2", calls.Load())
	}
}

// A burst of loss reports during one outage must produce exactly one
// RECONNECTING transition.
func TestManagerLossReportedOnce(t *testing.T) {
	block := make(chan struct{})
	m := NewManagerWithConfig(func(ctx context.Context) error {
		select {
		case <-block:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, ManagerConfig{Backoff: fastBackoff()})
	defer m.Close()

	// Lets exactly one pending connect attempt through.
	unblock := func() { block <- struct{}{} }

	var toReconnecting atomic.Int32
	m.OnStateChange(func(oldState, newState State) {
		if newState == StateReconnecting {
			toReconnecting.Add(1)
		}
	})

	lost := make(chan error, 4)
	m.OnConnectionLost(func(err error) { lost <- err })

	m.StartReconnectLoop()

	go unblock()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	readErr := errors.New("read: connection reset")
	m.NotifyConnectionLost(readErr)
	m.NotifyConnectionLost(readErr)
	m.NotifyConnectionLost(readErr)

	<-lost
	select {
	case <-lost:
		t.Fatal("OnConnectionLost invoked more than once for one outage")
	case <-time.After(50 * time.Millisecond):
	}

	if got := toReconnecting.Load(); got != 1 {
		t.Errorf("RECONNECTING transitions = %d, want 1", got)
	}

	go unblock()
	waitForState(t, m, StateConnected)
}

func TestManagerNotifyWhenNotConnected(t *testing.T) {
	m := NewManager(func(ctx context.Context) error { return nil })
	defer m.Close()

	m.NotifyConnectionLost(errors.New("spurious"))

	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want DISCONNECTED", m.State())
	}
}

func TestManagerAutoReconnectDisabled(t *testing.T) {
	m := NewManagerWithConfig(func(ctx context.Context) error { return nil },
		ManagerConfig{Backoff: fastBackoff()})
	defer m.Close()

	m.SetAutoReconnect(false)
	m.StartReconnectLoop()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	m.NotifyConnectionLost(errors.New("gone"))

	waitForState(t, m, StateDisconnected)
	time.Sleep(20 * time.Millisecond)
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want DISCONNECTED to persist", m.State())
	}
}

// Closing mid-backoff must reach CLOSED promptly without waiting out the
// delay and without further attempts.
func TestManagerCloseDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	m := NewManagerWithConfig(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return nil
		}
		return errors.New("still down")
	}, ManagerConfig{
		Backoff: BackoffConfig{
			Initial:    time.Hour,
			Max:        time.Hour,
			Multiplier: 2.0,
			Jitter:     -1,
		},
	})

	waiting := make(chan struct{}, 1)
	m.OnReconnecting(func(attempt int, delay time.Duration) {
		waiting <- struct{}{}
	})

	terminal := make(chan error, 1)
	m.OnTerminalError(func(err error) { terminal <- err })

	m.StartReconnectLoop()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	m.NotifyConnectionLost(errors.New("gone"))

	select {
	case <-waiting:
	case <-time.After(time.Second):
		t.Fatal("reconnect loop never reached the backoff wait")
	}

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() blocked on the backoff wait")
	}

	if m.State() != StateClosed {
		t.Errorf("state = %s, want CLOSED", m.State())
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("connect attempts = %d, want 1 (none after Close)", got)
	}

	select {
	case err := <-terminal:
		t.Errorf("OnTerminalError invoked on plain Close: %v", err)
	default:
	}
}

func TestManagerRetriesExhausted(t *testing.T) {
	attemptErr := errors.New("no route to host")
	var calls atomic.Int32
	m := NewManagerWithConfig(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return nil
		}
		return attemptErr
	}, ManagerConfig{
		Backoff:     fastBackoff(),
		MaxAttempts: 3,
	})
	defer m.Close()

	var failures atomic.Int32
	m.OnRetryFailed(func(attempt int, err error) {
		if !errors.Is(err, attemptErr) {
			t.Errorf("OnRetryFailed err = %v, want %v", err, attemptErr)
		}
		failures.Add(1)
	})

	terminal := make(chan error, 1)
	m.OnTerminalError(func(err error) { terminal <- err })

	m.StartReconnectLoop()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	m.NotifyConnectionLost(errors.New("gone"))

	select {
	case err := <-terminal:
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Errorf("terminal error = %v, want ErrRetriesExhausted", err)
		}
		if !errors.Is(err, attemptErr) {
			t.Errorf("terminal error = %v, want wrapped %v", err, attemptErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnTerminalError not invoked")
	}

	waitForState(t, m, StateClosed)

	if got := failures.Load(); got != 3 {
		t.Errorf("OnRetryFailed invoked %d times, want 3", got)
	}
}

func TestManagerFatalErrorTerminates(t *testing.T) {
	fatalErr := errors.New("credentials rejected")
	var calls atomic.Int32
	m := NewManagerWithConfig(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return nil
		}
		return fatalErr
	}, ManagerConfig{
		Backoff: fastBackoff(),
		Classify: func(err error) FailureClass {
			if errors.Is(err, fatalErr) {
				return FailureFatal
			}
			return FailureTransient
		},
	})
	defer m.Close()

	terminal := make(chan error, 1)
	m.OnTerminalError(func(err error) { terminal <- err })

	m.StartReconnectLoop()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	m.NotifyConnectionLost(errors.New("gone"))

	select {
	case err := <-terminal:
		if !errors.Is(err, fatalErr) {
			t.Errorf("terminal error = %v, want %v", err, fatalErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnTerminalError not invoked")
	}

	waitForState(t, m, StateClosed)

	if calls.Load() != 2 {
		t.Errorf("connect attempts = %d, want 2 (no retry after fatal)", calls.Load())
	}
}

func TestManagerProtocolFailureLimit(t *testing.T) {
	protoErr := errors.New("subscription acknowledgement missing")
	var calls atomic.Int32
	m := NewManagerWithConfig(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return nil
		}
		return protoErr
	}, ManagerConfig{
		Backoff:             fastBackoff(),
		MaxProtocolFailures: 2,
		Classify: func(err error) FailureClass {
			return FailureProtocol
		},
	})
	defer m.Close()

	terminal := make(chan error, 1)
	m.OnTerminalError(func(err error) { terminal <- err })

	m.StartReconnectLoop()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	m.NotifyConnectionLost(errors.New("gone"))

	select {
	case err := <-terminal:
		if !errors.Is(err, ErrProtocolFailureLimit) {
			t.Errorf("terminal error = %v, want ErrProtocolFailureLimit", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnTerminalError not invoked")
	}

	if calls.Load() != 3 {
		t.Errorf("connect attempts = %d, want 3 (initial + 2 protocol failures)", calls.Load())
	}
}

// A transient failure between protocol failures resets the consecutive
// counter, so the outage ends via the overall attempt cap instead.
func TestManagerProtocolRunResetByTransient(t *testing.T) {
	protoErr := errors.New("handshake rejected")
	transientErr := errors.New("i/o timeout")

	var calls atomic.Int32
	m := NewManagerWithConfig(func(ctx context.Context) error {
		n := calls.Add(1)
		switch {
		case n == 1:
			return nil
		case n%2 == 0:
			return protoErr
		default:
			return transientErr
		}
	}, ManagerConfig{
		Backoff:             fastBackoff(),
		MaxAttempts:         6,
		MaxProtocolFailures: 2,
		Classify: func(err error) FailureClass {
			if errors.Is(err, protoErr) {
				return FailureProtocol
			}
			return FailureTransient
		},
	})
	defer m.Close()

	terminal := make(chan error, 1)
	m.OnTerminalError(func(err error) { terminal <- err })

	m.StartReconnectLoop()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	m.NotifyConnectionLost(errors.New("gone"))

	select {
	case err := <-terminal:
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Errorf("terminal error = %v, want ErrRetriesExhausted", err)
		}
		if errors.Is(err, ErrProtocolFailureLimit) {
			t.Error("protocol failure limit tripped despite interleaved transient failures")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnTerminalError not invoked")
	}
}

func TestManagerBackoffResetAfterReconnect(t *testing.T) {
	var calls atomic.Int32
	m := NewManagerWithConfig(func(ctx context.Context) error {
		// Fail twice per outage, then succeed.
		if calls.Add(1)%3 == 0 {
			return nil
		}
		return errors.New("transient")
	}, ManagerConfig{Backoff: fastBackoff()})
	defer m.Close()

	connected := make(chan struct{}, 2)
	m.OnConnected(func() { connected <- struct{}{} })

	m.StartReconnectLoop()

	// Initial Connect fails; retriggering via the loop requires CONNECTED
	// first, so connect until it succeeds.
	for m.Connect(context.Background()) != nil {
	}
	<-connected

	m.NotifyConnectionLost(errors.New("gone"))

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not reconnect")
	}

	if got := m.BackoffAttempts(); got != 0 {
		t.Errorf("backoff attempts after reconnect = %d, want 0", got)
	}
}

func TestManagerCloseIdempotent(t *testing.T) {
	m := NewManagerWithConfig(func(ctx context.Context) error { return nil },
		ManagerConfig{Backoff: fastBackoff()})
	m.StartReconnectLoop()

	m.Close()
	m.Close()

	if m.State() != StateClosed {
		t.Errorf("state = %s, want CLOSED", m.State())
	}
}
