package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatewave/gatewave-go/pkg/auth"
	"github.com/gatewave/gatewave-go/pkg/barrier"
	"github.com/gatewave/gatewave-go/pkg/connection"
	"github.com/gatewave/gatewave-go/pkg/dispatch"
	"github.com/gatewave/gatewave-go/pkg/log"
	"github.com/gatewave/gatewave-go/pkg/transport"
	"github.com/gatewave/gatewave-go/pkg/wire"
)

// receiverSubs tracks the wire subscription IDs of one receiver. IDs are
// empty while disconnected; they are reissued on every (re)connect.
type receiverSubs struct {
	deviceSubID string
	eventsSubID string

	// attaching marks a receiver whose wire subscription is currently
	// being issued by the Subscribe call that registered it, so a
	// concurrent establish does not issue a second one.
	attaching bool
}

// Client is the Gatewave cloud client: authentication, the realtime feed
// channel with automatic reconnection, event fan-out, and the device
// command surface.
//
// A Client is safe for concurrent use. The usual sequence is New,
// Authenticate (or AuthenticateRefresh), AddListener, Subscribe, Connect;
// events then arrive on the registered listeners until Close.
type Client struct {
	config        Config
	authenticator auth.Authenticator
	httpClient    *http.Client
	logger        log.Logger

	dispatcher *dispatch.Dispatcher
	manager    *connection.Manager

	mu            sync.Mutex
	tokens        *auth.Tokens
	endpoints     *wire.Endpoints
	deviceChannel *transport.Channel
	eventsChannel *transport.Channel
	handler       *channelHandler
	receivers     map[string]*receiverSubs
	known         map[string]struct{}
	everConnected bool
	closed        bool

	termMu     sync.Mutex
	onTerminal func(err error)
}

// New creates a client. No network traffic happens until Authenticate.
func New(config Config) (*Client, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	authenticator := config.Authenticator
	if authenticator == nil {
		var err error
		authenticator, err = auth.NewSRPAuthenticator(auth.Config{
			Region:     config.Region,
			ClientID:   config.ClientID,
			PoolID:     config.PoolID,
			HTTPClient: config.HTTPClient,
		})
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		config:        config,
		authenticator: authenticator,
		httpClient:    config.HTTPClient,
		logger:        config.Logger,
		dispatcher:    dispatch.NewDispatcher(config.Logger),
		receivers:     make(map[string]*receiverSubs),
		known:         make(map[string]struct{}),
	}

	c.manager = connection.NewManagerWithConfig(c.establish, connection.ManagerConfig{
		Backoff:             config.Backoff,
		MaxAttempts:         config.MaxAttempts,
		MaxProtocolFailures: config.MaxProtocolFailures,
		Classify:            classifyFailure,
	})
	c.manager.OnStateChange(c.logStateChange)
	c.manager.OnConnected(c.handleConnected)
	c.manager.OnConnectionLost(c.handleConnectionLost)
	c.manager.OnRetryFailed(c.logRetryFailure)
	c.manager.OnTerminalError(c.handleTerminal)
	c.manager.StartReconnectLoop()

	return c, nil
}

// Authenticate performs the password flow and fetches the endpoints
// directory. The returned refresh token can be persisted and used with
// AuthenticateRefresh to skip the password next time.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	tokens, err := c.authenticator.Authenticate(ctx, username, password)
	if err != nil {
		return "", wrapAuthFailure(err)
	}
	if err := c.adoptTokens(ctx, tokens, ""); err != nil {
		return "", err
	}
	return tokens.RefreshToken, nil
}

// AuthenticateRefresh authenticates with a previously issued refresh
// token and fetches the endpoints directory.
func (c *Client) AuthenticateRefresh(ctx context.Context, refreshToken string) error {
	tokens, err := c.authenticator.Refresh(ctx, refreshToken)
	if err != nil {
		return wrapAuthFailure(err)
	}
	return c.adoptTokens(ctx, tokens, refreshToken)
}

// adoptTokens stores fresh tokens and the endpoints directory fetched with
// them. Refresh responses omit the refresh token; the original is kept.
func (c *Client) adoptTokens(ctx context.Context, tokens *auth.Tokens, refreshToken string) error {
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	if tokens.IssuedAt.IsZero() {
		tokens.IssuedAt = time.Now()
	}

	endpoints, err := c.fetchEndpoints(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tokens = tokens
	c.endpoints = endpoints
	c.mu.Unlock()

	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerClient,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityToken,
			NewState: "ISSUED",
		},
	})
	return nil
}

// fetchEndpoints retrieves the published service directory.
func (c *Client) fetchEndpoints(ctx context.Context) (*wire.Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.DiscoveryURL, nil)
	if err != nil {
		return nil, &ProtocolError{Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("fetch endpoints: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProtocolError{Err: fmt.Errorf("endpoints directory returned %s", resp.Status)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read endpoints: %w", err)}
	}
	endpoints, err := wire.DecodeEndpoints(body)
	if err != nil {
		return nil, &ProtocolError{Err: err}
	}
	return endpoints, nil
}

// Endpoints returns the cached service directory, or nil before
// authentication.
func (c *Client) Endpoints() *wire.Endpoints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints
}

// RefreshToken returns the current refresh token, for persisting between
// runs.
func (c *Client) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.RefreshToken
}

// Connect establishes the realtime channel and starts delivering events.
// It returns once connected; the receive loops run on library goroutines
// and the caller observes the feed through registered listeners. A later
// connection loss reconnects automatically.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.tokens == nil {
		c.mu.Unlock()
		return &AuthError{Err: ErrNotAuthenticated}
	}
	c.mu.Unlock()

	return c.manager.Connect(ctx)
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// AddListener registers an event listener. The filter scopes device
// events; connection-level events reach every listener. Returns the
// registration ID for RemoveListener. Listeners are durable: they survive
// reconnects without re-registration.
func (c *Client) AddListener(fn dispatch.Listener, filter dispatch.Filter) uint64 {
	return c.dispatcher.Register(fn, filter)
}

// RemoveListener unregisters an event listener.
func (c *Client) RemoveListener(id uint64) error {
	return c.dispatcher.Unregister(id)
}

// Snapshot returns the latest known state of a barrier.
func (c *Client) Snapshot(barrierID string) (barrier.State, bool) {
	return c.dispatcher.Snapshot(barrierID)
}

// Snapshots returns the latest known state of every observed barrier.
func (c *Client) Snapshots() map[string]barrier.State {
	return c.dispatcher.Snapshots()
}

// OnTerminalError registers a callback fired when reconnection gives up
// (retry caps exhausted or a fatal failure) and the client closes itself.
func (c *Client) OnTerminalError(fn func(err error)) {
	c.termMu.Lock()
	defer c.termMu.Unlock()
	c.onTerminal = fn
}

// Subscribe attaches the feeds for a receiver (the account or site
// identifier events are scoped to). Subscriptions are durable: they are
// re-established automatically after every reconnect until Unsubscribe.
// Subscribing while disconnected records the receiver; the wire
// subscription is issued when the connection comes up.
func (c *Client) Subscribe(ctx context.Context, receiverID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if _, exists := c.receivers[receiverID]; exists {
		c.mu.Unlock()
		return nil
	}
	deviceCh, eventsCh := c.deviceChannel, c.eventsChannel
	// Record the receiver before releasing the lock so an establish
	// running concurrently sees it and attaches it if we do not.
	c.receivers[receiverID] = &receiverSubs{attaching: deviceCh != nil}
	c.mu.Unlock()

	for deviceCh != nil {
		subs, err := subscribeReceiver(ctx, deviceCh, eventsCh, receiverID)
		if err != nil {
			c.mu.Lock()
			delete(c.receivers, receiverID)
			c.mu.Unlock()
			return wrapSubscribeFailure(err)
		}

		c.mu.Lock()
		cur, still := c.receivers[receiverID]
		if !still {
			// Unsubscribed while attaching.
			c.mu.Unlock()
			return nil
		}
		if cur.deviceSubID != "" {
			// A reconnect attached the receiver first; drop the duplicate.
			c.mu.Unlock()
			deviceCh.Unsubscribe(subs.deviceSubID)
			if eventsCh != nil && subs.eventsSubID != "" {
				eventsCh.Unsubscribe(subs.eventsSubID)
			}
			break
		}
		if c.deviceChannel == deviceCh {
			c.receivers[receiverID] = subs
			c.mu.Unlock()
			break
		}
		// The channel turned over mid-attach: retry on its successor,
		// or leave the receiver for the next establish to attach.
		deviceCh, eventsCh = c.deviceChannel, c.eventsChannel
		cur.attaching = deviceCh != nil
		c.mu.Unlock()
	}

	c.logSubscription(receiverID, "ACTIVE")
	return nil
}

// Unsubscribe detaches a receiver's feeds. Stop frames are best effort;
// the receiver is forgotten either way.
func (c *Client) Unsubscribe(receiverID string) error {
	c.mu.Lock()
	subs, exists := c.receivers[receiverID]
	if exists {
		delete(c.receivers, receiverID)
	}
	deviceCh, eventsCh := c.deviceChannel, c.eventsChannel
	c.mu.Unlock()

	if !exists {
		return nil
	}
	if deviceCh != nil && subs.deviceSubID != "" {
		deviceCh.Unsubscribe(subs.deviceSubID)
	}
	if eventsCh != nil && subs.eventsSubID != "" {
		eventsCh.Unsubscribe(subs.eventsSubID)
	}

	c.logSubscription(receiverID, "STOPPED")
	return nil
}

// Close shuts the client down: any state → CLOSED, channels released,
// reconnect loop joined. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	deviceCh, eventsCh, handler := c.deviceChannel, c.eventsChannel, c.handler
	c.deviceChannel, c.eventsChannel, c.handler = nil, nil, nil
	c.mu.Unlock()

	if handler != nil {
		handler.deactivate()
	}
	if deviceCh != nil {
		deviceCh.Close()
	}
	if eventsCh != nil {
		eventsCh.Close()
	}

	c.manager.Close()

	if !alreadyClosed {
		c.logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerClient,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				NewState: connection.StateClosed.String(),
				Reason:   "closed by caller",
			},
		})
	}
}

// establish is the manager's ConnectFunc: refresh the token if needed,
// dial the feed channels, re-subscribe every recorded receiver, and make
// the new channels current. Runs for the initial Connect and for every
// reconnect attempt.
func (c *Client) establish(ctx context.Context) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	tokens, endpoints := c.tokens, c.endpoints
	receiverIDs := make([]string, 0, len(c.receivers))
	for id := range c.receivers {
		receiverIDs = append(receiverIDs, id)
	}
	c.mu.Unlock()

	if tokens == nil || endpoints == nil {
		return &AuthError{Err: ErrNotAuthenticated}
	}

	devicePair, err := endpoints.Service(wire.ServiceDevice)
	if err != nil {
		return &ProtocolError{Err: err}
	}
	deviceHost, err := devicePair.Host()
	if err != nil {
		return &ProtocolError{Err: err}
	}

	connID := uuid.NewString()
	handler := &channelHandler{client: c, connID: connID}
	cfg := c.channelConfig()

	deviceCh, err := transport.DialWithConfig(ctx, devicePair.WSS,
		wire.Authorization{Token: tokens.IDToken, Host: deviceHost}, handler, cfg)
	if err != nil {
		return wrapDialFailure(err)
	}

	// The events feed is optional: older deployments publish only the
	// device service.
	var eventsCh *transport.Channel
	if eventsPair, svcErr := endpoints.Service(wire.ServiceEvents); svcErr == nil {
		eventsHost, hostErr := eventsPair.Host()
		if hostErr != nil {
			deviceCh.Close()
			return &ProtocolError{Err: hostErr}
		}
		eventsCh, err = transport.DialWithConfig(ctx, eventsPair.WSS,
			wire.Authorization{Token: tokens.IDToken, Host: eventsHost}, handler, cfg)
		if err != nil {
			deviceCh.Close()
			return wrapDialFailure(err)
		}
	}

	fresh := make(map[string]*receiverSubs, len(receiverIDs))
	for _, receiverID := range receiverIDs {
		subs, subErr := subscribeReceiver(ctx, deviceCh, eventsCh, receiverID)
		if subErr != nil {
			deviceCh.Close()
			if eventsCh != nil {
				eventsCh.Close()
			}
			return wrapSubscribeFailure(subErr)
		}
		fresh[receiverID] = subs
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		deviceCh.Close()
		if eventsCh != nil {
			eventsCh.Close()
		}
		return ErrClientClosed
	}
	c.deviceChannel, c.eventsChannel, c.handler = deviceCh, eventsCh, handler
	for id, subs := range fresh {
		if _, still := c.receivers[id]; still {
			c.receivers[id] = subs
		}
	}
	c.mu.Unlock()

	// Receivers recorded after the snapshot above have no wire
	// subscription yet; attach them before declaring the connection up.
	// Receivers recorded from here on see the installed channels and
	// attach themselves.
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			c.teardownChannels()
			return ErrClientClosed
		}
		var lateID string
		for id, subs := range c.receivers {
			if subs.deviceSubID == "" && !subs.attaching {
				lateID = id
				break
			}
		}
		c.mu.Unlock()
		if lateID == "" {
			break
		}

		subs, subErr := subscribeReceiver(ctx, deviceCh, eventsCh, lateID)
		if subErr != nil {
			c.teardownChannels()
			return wrapSubscribeFailure(subErr)
		}
		c.mu.Lock()
		if _, still := c.receivers[lateID]; still && c.handler == handler {
			c.receivers[lateID] = subs
		}
		c.mu.Unlock()
	}

	// A channel that died while it was being installed reported its error
	// to nobody; surface it now instead of declaring a dead connection up.
	if pending := handler.activate(); pending != nil {
		c.teardownChannels()
		return wrapChannelFailure(pending)
	}
	return nil
}

// ensureToken refreshes the session token when it is expired or close to
// it. Without a refresh token the stale token is presented as-is and the
// backend's rejection surfaces through the dial.
func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	tokens := c.tokens
	c.mu.Unlock()

	if tokens == nil {
		return &AuthError{Err: ErrNotAuthenticated}
	}
	if tokens.Valid() || tokens.RefreshToken == "" {
		return nil
	}

	fresh, err := c.authenticator.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return wrapAuthFailure(err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tokens.RefreshToken
	}
	if fresh.IssuedAt.IsZero() {
		fresh.IssuedAt = time.Now()
	}

	c.mu.Lock()
	c.tokens = fresh
	c.mu.Unlock()

	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerClient,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityToken,
			OldState: "EXPIRED",
			NewState: "ISSUED",
			Reason:   "refreshed before reconnect",
		},
	})
	return nil
}

// channelConfig translates client tunables into a channel configuration.
func (c *Client) channelConfig() transport.ChannelConfig {
	cfg := transport.DefaultChannelConfig()
	if c.config.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = c.config.HandshakeTimeout
	}
	if c.config.SubscribeTimeout > 0 {
		cfg.SubscribeTimeout = c.config.SubscribeTimeout
	}
	if c.config.ReceiveTimeout > 0 {
		cfg.ReceiveTimeout = c.config.ReceiveTimeout
	}
	if c.config.KeepAliveTimeout > 0 {
		cfg.Watchdog.Timeout = c.config.KeepAliveTimeout
	}
	return cfg
}

// subscribeReceiver issues the wire subscriptions for one receiver: the
// device-state feed, plus the events feed when that channel exists.
func subscribeReceiver(ctx context.Context, deviceCh, eventsCh *transport.Channel, receiverID string) (*receiverSubs, error) {
	deviceReq, err := wire.SubscribeRequest(wire.FeedDevice, receiverID)
	if err != nil {
		return nil, err
	}
	deviceSubID, err := deviceCh.Subscribe(ctx, deviceReq)
	if err != nil {
		return nil, err
	}

	subs := &receiverSubs{deviceSubID: deviceSubID}
	if eventsCh != nil {
		eventsReq, err := wire.SubscribeRequest(wire.FeedEvents, receiverID)
		if err != nil {
			return nil, err
		}
		subs.eventsSubID, err = eventsCh.Subscribe(ctx, eventsReq)
		if err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// teardownChannels drops the current channels without touching the
// connection state. Used on loss, before the reconnect loop dials fresh
// ones.
func (c *Client) teardownChannels() {
	c.mu.Lock()
	deviceCh, eventsCh, handler := c.deviceChannel, c.eventsChannel, c.handler
	c.deviceChannel, c.eventsChannel, c.handler = nil, nil, nil
	for _, subs := range c.receivers {
		subs.deviceSubID, subs.eventsSubID = "", ""
	}
	c.mu.Unlock()

	if handler != nil {
		handler.deactivate()
	}
	if deviceCh != nil {
		deviceCh.Close()
	}
	if eventsCh != nil {
		eventsCh.Close()
	}
}

// channelFailed is called by the handler when a current channel dies.
func (c *Client) channelFailed(h *channelHandler, err error) {
	c.mu.Lock()
	current := c.handler == h
	c.mu.Unlock()
	if !current {
		return
	}
	c.manager.NotifyConnectionLost(wrapChannelFailure(err))
}

// handleConnected runs after every successful connect, initial or retried.
func (c *Client) handleConnected() {
	c.mu.Lock()
	first := !c.everConnected
	c.everConnected = true
	c.mu.Unlock()

	if first {
		c.dispatcher.Dispatch(dispatch.ConnectedEvent{})
	} else {
		c.dispatcher.Dispatch(dispatch.ReconnectedEvent{})
	}
}

// handleConnectionLost runs once per outage, before reconnection starts.
func (c *Client) handleConnectionLost(err error) {
	c.teardownChannels()
	c.dispatcher.Dispatch(dispatch.ConnectionLostEvent{Err: err})
}

// handleTerminal runs when the reconnect loop gives up for good.
func (c *Client) handleTerminal(err error) {
	c.teardownChannels()

	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerClient,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerClient,
			Message: err.Error(),
			Context: "reconnection abandoned",
		},
	})

	c.termMu.Lock()
	fn := c.onTerminal
	c.termMu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) logStateChange(oldState, newState connection.State) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerClient,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
		},
	})
}

func (c *Client) logRetryFailure(attempt int, err error) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerClient,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerClient,
			Message: err.Error(),
			Context: fmt.Sprintf("reconnect attempt %d", attempt),
		},
	})
}

func (c *Client) logSubscription(receiverID, state string) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerClient,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			NewState: state,
			Reason:   "receiver " + receiverID,
		},
	})
}

// markKnown records barriers observed on the feed so commands can
// fail fast on identifiers the account has never seen.
func (c *Client) markKnown(barrierID string) {
	if barrierID == "" {
		return
	}
	c.mu.Lock()
	c.known[barrierID] = struct{}{}
	c.mu.Unlock()
}

// channelHandler routes channel callbacks into the client. One handler
// instance covers both feed channels of a connection attempt; errors
// reported before the attempt is installed are held back and collected by
// activate, errors after deactivate belong to a torn-down connection and
// are dropped.
type channelHandler struct {
	client *Client
	connID string

	mu      sync.Mutex
	active  bool
	dead    bool
	pending error
}

var _ transport.ChannelHandler = (*channelHandler)(nil)

func (h *channelHandler) activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = true
	return h.pending
}

func (h *channelHandler) deactivate() {
	h.mu.Lock()
	h.active = false
	h.mu.Unlock()
}

func (h *channelHandler) OnFrame(frame *wire.Frame) {
	c := h.client

	switch frame.Type {
	case wire.FrameData:
		c.logFrame(h.connID, frame)
		update, err := wire.DecodeFeedUpdate(frame.Payload)
		if err != nil {
			c.logger.Log(log.Event{
				Timestamp:    time.Now(),
				ConnectionID: h.connID,
				Direction:    log.DirectionIn,
				Layer:        log.LayerClient,
				Category:     log.CategoryError,
				Error: &log.ErrorEventData{
					Layer:   log.LayerClient,
					Message: err.Error(),
					Context: "decoding feed payload",
				},
			})
			return
		}
		if update.State != nil {
			c.markKnown(update.State.DeviceID)
		}
		c.dispatcher.HandleUpdate(update)

	case wire.FrameComplete:
		c.logFrame(h.connID, frame)

	case wire.FrameError:
		c.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: h.connID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: wire.DecodeErrorPayload(frame.Payload),
				Context: "subscription " + frame.ID,
			},
		})
	}
}

func (h *channelHandler) OnChannelError(err error) {
	h.mu.Lock()
	if h.dead {
		h.mu.Unlock()
		return
	}
	h.dead = true
	if !h.active {
		h.pending = err
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	h.client.channelFailed(h, err)
}

func (c *Client) logFrame(connID string, frame *wire.Frame) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryFrame,
		Frame: &log.FrameEvent{
			Type:           string(frame.Type),
			SubscriptionID: frame.ID,
			Size:           len(frame.Payload),
		},
	})
}

// classifyFailure maps connect-attempt errors to retry policy classes.
func classifyFailure(err error) connection.FailureClass {
	var authErr *AuthError
	if errors.As(err, &authErr) || errors.Is(err, ErrClientClosed) {
		return connection.FailureFatal
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return connection.FailureProtocol
	}
	return connection.FailureTransient
}

// wrapAuthFailure translates identity-provider errors into the public
// taxonomy. Credential problems are AuthError and never retried; anything
// else is a transport problem worth retrying.
func wrapAuthFailure(err error) error {
	var apiErr *auth.APIError
	if errors.Is(err, auth.ErrNotAuthorized) ||
		errors.Is(err, auth.ErrPasswordChangeRequired) ||
		errors.As(err, &apiErr) {
		return &AuthError{Err: err}
	}
	return &TransportError{Err: err}
}

// wrapDialFailure translates channel establishment errors.
func wrapDialFailure(err error) error {
	// An upgrade the backend answered with 401 or 403 means the token was
	// rejected: retrying with the same credential cannot succeed.
	var upgradeErr *transport.UpgradeError
	if errors.As(err, &upgradeErr) {
		switch upgradeErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{Err: err}
		}
	}
	var handshakeErr *transport.HandshakeError
	if errors.As(err, &handshakeErr) || errors.Is(err, transport.ErrHandshakeTimeout) {
		return &ProtocolError{Err: err}
	}
	return &TransportError{Err: err}
}

// wrapSubscribeFailure translates subscription errors.
func wrapSubscribeFailure(err error) error {
	var subErr *transport.SubscriptionError
	if errors.As(err, &subErr) {
		return &ProtocolError{Err: err}
	}
	if errors.Is(err, transport.ErrSubscribeTimeout) {
		return &ProtocolError{Err: &TimeoutError{Op: "feed subscription", Err: err}}
	}
	return &TransportError{Err: err}
}

// wrapChannelFailure translates a live channel's death.
func wrapChannelFailure(err error) error {
	if errors.Is(err, transport.ErrKeepAliveExpired) {
		return &TransportError{Err: &TimeoutError{Op: "channel keep-alive", Err: err}}
	}
	var handshakeErr *transport.HandshakeError
	if errors.As(err, &handshakeErr) {
		return &ProtocolError{Err: err}
	}
	return &TransportError{Err: err}
}
