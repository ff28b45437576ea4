package transport

import (
	"context"
	"sync"
	"time"
)

// Watchdog constants.
const (
	// DefaultKeepAliveTimeout is the silence threshold after which the
	// connection is considered dead. The backend emits ka frames roughly
	// once a minute under load and far more often otherwise.
	DefaultKeepAliveTimeout = 60 * time.Second

	// DefaultReceiveTimeout is the per-read deadline backstopping the
	// watchdog. Slightly above the keep-alive timeout so the watchdog
	// fires first on a healthy-but-silent socket.
	DefaultReceiveTimeout = 70 * time.Second
)

// WatchdogConfig configures silence detection.
type WatchdogConfig struct {
	// Timeout is the silence threshold.
	Timeout time.Duration

	// CheckInterval is how often silence is evaluated.
	// Defaults to Timeout / 8.
	CheckInterval time.Duration
}

// DefaultWatchdogConfig returns the default watchdog configuration.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Timeout: DefaultKeepAliveTimeout,
	}
}

// Watchdog tracks inbound activity and reports staleness. Each received
// frame must be reported via Touch; if no touch arrives within the
// configured timeout, the stale callback fires. It fires at most once per
// silent period: a touch re-arms it.
type Watchdog struct {
	config  WatchdogConfig
	onStale func(silence time.Duration)

	mu           sync.Mutex
	lastActivity time.Time
	frames       uint64
	fired        bool
	running      bool
	stopCh       chan struct{}
}

// NewWatchdog creates a watchdog. The stale callback is invoked from the
// watchdog's goroutine.
func NewWatchdog(config WatchdogConfig, onStale func(silence time.Duration)) *Watchdog {
	if config.Timeout <= 0 {
		config.Timeout = DefaultKeepAliveTimeout
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = config.Timeout / 8
	}

	return &Watchdog{
		config:  config,
		onStale: onStale,
		stopCh:  make(chan struct{}),
	}
}

// Start begins silence monitoring. The activity clock starts now.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.lastActivity = time.Now()
	w.fired = false
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx)
}

// Stop stops silence monitoring.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.running = false
	close(w.stopCh)
}

// Touch records inbound activity and re-arms the watchdog.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastActivity = time.Now()
	w.frames++
	w.fired = false
}

// IsRunning returns true if monitoring is active.
func (w *Watchdog) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns current watchdog statistics.
func (w *Watchdog) Stats() WatchdogStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WatchdogStats{
		LastActivity: w.lastActivity,
		Frames:       w.frames,
		Stale:        w.fired,
	}
}

// WatchdogStats contains watchdog statistics.
type WatchdogStats struct {
	// LastActivity is the time of the most recent touch.
	LastActivity time.Time

	// Frames counts touches since creation.
	Frames uint64

	// Stale reports whether the current silent period was already flagged.
	Stale bool
}

func (w *Watchdog) loop(ctx context.Context) {
	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	w.mu.Lock()

	if w.fired {
		w.mu.Unlock()
		return
	}

	silence := time.Since(w.lastActivity)
	if silence < w.config.Timeout {
		w.mu.Unlock()
		return
	}

	w.fired = true
	cb := w.onStale
	w.mu.Unlock()

	if cb != nil {
		cb(silence)
	}
}
