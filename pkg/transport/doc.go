// Package transport implements the realtime channel to the Gatewave
// backend: a WebSocket connection speaking the graphql-ws subprotocol.
//
// # Channel Lifecycle
//
// A Channel is bound to a single WebSocket connection. Dial performs the
// full establishment sequence and returns a usable channel or an error;
// there is no half-open state. Reconnection is a concern of the caller
// (pkg/connection), which dials a fresh channel per attempt.
//
//	Dial
//	 ├─ WebSocket upgrade (authorization in query parameters)
//	 ├─ send  connection_init
//	 ├─ await connection_ack          (HandshakeTimeout)
//	 └─ start read loop + watchdog
//
// # Subscriptions
//
// Subscribe registers a GraphQL subscription on the open channel:
//
//	client                          backend
//	  │ ─── start {id, query} ───────▶ │
//	  │ ◀── start_ack {id} ─────────── │   (SubscribeTimeout)
//	  │ ◀── data {id, payload} ─────── │   (repeats)
//	  │ ─── stop {id} ───────────────▶ │
//
// Data and error frames for acknowledged subscriptions are delivered to
// the ChannelHandler. Subscriptions die with the channel; callers
// re-subscribe on a fresh channel after reconnecting.
//
// # Silent Disconnect Detection
//
// The backend sends periodic ka frames. Every received frame (ka or
// otherwise) feeds the Watchdog; if the channel stays silent past the
// keep-alive timeout the watchdog reports staleness exactly once, the
// socket is torn down, and the handler sees a single channel error. A
// read deadline slightly above the keep-alive timeout backstops the
// watchdog against a wedged socket.
package transport
