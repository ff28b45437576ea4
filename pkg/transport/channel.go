package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gatewave/gatewave-go/pkg/wire"
)

// GraphQLWSProtocol is the WebSocket subprotocol the feed service speaks.
const GraphQLWSProtocol = "graphql-ws"

// Channel timeouts.
const (
	// DefaultHandshakeTimeout bounds connection_init → connection_ack.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultSubscribeTimeout bounds start → start_ack.
	DefaultSubscribeTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second
)

// ChannelConfig configures a feed channel.
type ChannelConfig struct {
	// HandshakeTimeout bounds the connection_init/connection_ack exchange.
	HandshakeTimeout time.Duration

	// SubscribeTimeout bounds the start/start_ack exchange.
	SubscribeTimeout time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// ReceiveTimeout is the per-read deadline. Keep it above the watchdog
	// timeout so silence is detected by the watchdog, not the socket.
	ReceiveTimeout time.Duration

	// Watchdog configures silent-disconnect detection.
	Watchdog WatchdogConfig

	// Dialer overrides the WebSocket dialer. Its Subprotocols and
	// HandshakeTimeout are managed by the channel.
	Dialer *websocket.Dialer
}

// DefaultChannelConfig returns the default channel configuration.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		HandshakeTimeout: DefaultHandshakeTimeout,
		SubscribeTimeout: DefaultSubscribeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		ReceiveTimeout:   DefaultReceiveTimeout,
		Watchdog:         DefaultWatchdogConfig(),
	}
}

// ChannelHandler receives channel events. Methods are called from the
// channel's read goroutine and must not block on channel methods.
type ChannelHandler interface {
	// OnFrame is called for data, error and complete frames belonging to
	// acknowledged subscriptions.
	OnFrame(frame *wire.Frame)

	// OnChannelError is called at most once, when the channel dies
	// unexpectedly: read failure, keep-alive expiry, or a session-level
	// error frame. It is not called after an intentional Close.
	OnChannelError(err error)
}

// Channel is one authenticated WebSocket connection to the feed service.
// It is bound to a single socket: once dead it cannot be reused, and a
// reconnecting caller dials a fresh one.
type Channel struct {
	config  ChannelConfig
	handler ChannelHandler
	auth    wire.Authorization

	conn     *websocket.Conn
	watchdog *Watchdog

	ctx    context.Context
	cancel context.CancelFunc

	// closing suppresses error reporting during intentional teardown.
	closing   atomic.Bool
	closeOnce sync.Once
	errOnce   sync.Once
	readDone  chan struct{}

	// Serializes frame writes.
	writeMu sync.Mutex

	// Guards pending subscription acknowledgements.
	mu      sync.Mutex
	pending map[string]chan *wire.Frame
}

// Dial connects to the feed endpoint with default configuration.
func Dial(ctx context.Context, endpoint string, auth wire.Authorization, handler ChannelHandler) (*Channel, error) {
	return DialWithConfig(ctx, endpoint, auth, handler, DefaultChannelConfig())
}

// DialWithConfig connects to the feed endpoint: WebSocket upgrade with the
// authorization header in the query string, then the connection_init
// handshake. On success the read loop and watchdog are running and the
// channel is ready for Subscribe.
func DialWithConfig(ctx context.Context, endpoint string, auth wire.Authorization, handler ChannelHandler, config ChannelConfig) (*Channel, error) {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.SubscribeTimeout <= 0 {
		config.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.ReceiveTimeout <= 0 {
		config.ReceiveTimeout = DefaultReceiveTimeout
	}

	u, err := dialURL(endpoint, auth)
	if err != nil {
		return nil, err
	}

	// Copy the dialer so shared instances are never mutated.
	var dialer websocket.Dialer
	if config.Dialer != nil {
		dialer = *config.Dialer
	} else {
		dialer = *websocket.DefaultDialer
	}
	dialer.Subprotocols = []string{GraphQLWSProtocol}
	dialer.HandshakeTimeout = config.HandshakeTimeout

	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial feed endpoint: %w", &UpgradeError{StatusCode: resp.StatusCode, Err: err})
		}
		return nil, fmt.Errorf("dial feed endpoint: %w", err)
	}

	chanCtx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		config:   config,
		handler:  handler,
		auth:     auth,
		conn:     conn,
		ctx:      chanCtx,
		cancel:   cancel,
		readDone: make(chan struct{}),
		pending:  make(map[string]chan *wire.Frame),
	}

	if err := c.handshake(ctx); err != nil {
		cancel()
		conn.Close()
		return nil, err
	}

	c.watchdog = NewWatchdog(config.Watchdog, c.onStale)
	c.watchdog.Start(chanCtx)
	go c.readLoop()

	return c, nil
}

// dialURL builds the upgrade URL: the endpoint plus the base64 authorization
// header and the fixed empty payload as query parameters.
func dialURL(endpoint string, auth wire.Authorization) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse feed endpoint: %w", err)
	}

	header, err := auth.EncodeHeader()
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("header", header)
	q.Set("payload", wire.EmptyPayload)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// handshake sends connection_init and waits for connection_ack. The backend
// may interleave ka frames; anything else before the ack is ignored.
func (c *Channel) handshake(ctx context.Context) error {
	if err := c.writeFrame(wire.NewConnectionInit()); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}

	deadline := time.Now().Add(c.config.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set handshake deadline: %w", err)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return ErrHandshakeTimeout
			}
			return fmt.Errorf("handshake read: %w", err)
		}

		frame, err := wire.DecodeFrame(data)
		if err != nil {
			continue
		}

		switch frame.Type {
		case wire.FrameConnectionAck:
			return nil
		case wire.FrameConnectionError:
			return &HandshakeError{Reason: wire.DecodeErrorPayload(frame.Payload)}
		default:
			// ka or early noise
		}
	}
}

// Subscribe starts a feed subscription and waits for the backend to
// acknowledge it. Returns the subscription ID used in subsequent data
// frames.
func (c *Channel) Subscribe(ctx context.Context, req wire.GraphQLRequest) (string, error) {
	id := uuid.NewString()

	start, err := wire.NewStart(id, req, c.auth)
	if err != nil {
		return "", err
	}

	ackCh := make(chan *wire.Frame, 1)
	c.mu.Lock()
	c.pending[id] = ackCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.writeFrame(start); err != nil {
		return "", fmt.Errorf("send start: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case frame := <-ackCh:
		if frame.Type == wire.FrameStartAck {
			return id, nil
		}
		return "", &SubscriptionError{ID: id, Reason: wire.DecodeErrorPayload(frame.Payload)}
	case <-timer.C:
		return "", fmt.Errorf("subscription %s: %w", id, ErrSubscribeTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.ctx.Done():
		return "", ErrChannelClosed
	}
}

// Unsubscribe cancels a subscription. The backend does not acknowledge
// stop frames, so this only fails if the write does.
func (c *Channel) Unsubscribe(id string) error {
	return c.writeFrame(wire.NewStop(id))
}

// Close tears the channel down intentionally. No channel error is
// reported, and it is safe to call more than once.
func (c *Channel) Close() error {
	c.closing.Store(true)

	// Best effort: tell the peer before dropping the socket.
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	c.shutdown()

	select {
	case <-c.readDone:
	case <-time.After(c.config.WriteTimeout):
	}
	return nil
}

// Done is closed when the channel is no longer usable, however it died.
func (c *Channel) Done() <-chan struct{} {
	return c.ctx.Done()
}

// KeepAliveStats reports watchdog statistics for the channel.
func (c *Channel) KeepAliveStats() WatchdogStats {
	return c.watchdog.Stats()
}

// shutdown releases the socket and every waiter exactly once.
func (c *Channel) shutdown() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.watchdog != nil {
			c.watchdog.Stop()
		}
		c.conn.Close()
	})
}

// fail tears the channel down after an unexpected failure and reports it
// unless the teardown was requested by Close. The report runs on its own
// goroutine: it is called from the read loop, and a handler reacting with
// Close must not wait for the read loop to exit.
func (c *Channel) fail(err error) {
	c.shutdown()

	if c.closing.Load() {
		return
	}
	c.errOnce.Do(func() {
		go c.handler.OnChannelError(err)
	})
}

// onStale is the watchdog callback. Closing the socket here unblocks the
// read loop, which then stays quiet because the error was already reported.
func (c *Channel) onStale(silence time.Duration) {
	c.errOnce.Do(func() {
		c.handler.OnChannelError(fmt.Errorf("%w: no frames for %v", ErrKeepAliveExpired, silence.Round(time.Millisecond)))
	})
	c.shutdown()
}

func (c *Channel) writeFrame(f *wire.Frame) error {
	data, err := wire.EncodeFrame(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop pumps frames until the socket dies. Every received frame feeds
// the watchdog; frame types the channel does not understand are dropped.
func (c *Channel) readLoop() {
	defer close(c.readDone)

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReceiveTimeout))

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() || c.ctx.Err() != nil {
				c.shutdown()
				return
			}
			c.fail(fmt.Errorf("read: %w", err))
			return
		}

		c.watchdog.Touch()

		frame, err := wire.DecodeFrame(data)
		if err != nil {
			continue
		}

		c.dispatchFrame(frame)
	}
}

func (c *Channel) dispatchFrame(frame *wire.Frame) {
	switch frame.Type {
	case wire.FrameKeepAlive:
		// Touch already recorded it.

	case wire.FrameStartAck, wire.FrameError:
		// An ack or error for an in-flight Subscribe completes it;
		// errors for live subscriptions go to the handler.
		c.mu.Lock()
		ackCh, waiting := c.pending[frame.ID]
		if waiting {
			delete(c.pending, frame.ID)
		}
		c.mu.Unlock()

		if waiting {
			ackCh <- frame
			return
		}
		if frame.Type == wire.FrameError {
			if frame.ID == "" {
				c.fail(fmt.Errorf("session error: %s", wire.DecodeErrorPayload(frame.Payload)))
				return
			}
			c.handler.OnFrame(frame)
		}

	case wire.FrameData, wire.FrameComplete:
		c.handler.OnFrame(frame)

	case wire.FrameConnectionError:
		c.fail(&HandshakeError{Reason: wire.DecodeErrorPayload(frame.Payload)})

	default:
		// Unknown frame types are ignored.
	}
}
