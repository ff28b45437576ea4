// Package client is the top-level Gatewave API: authentication, the
// resilient realtime feed, and the device command surface.
//
// # Usage
//
//	c, err := client.New(client.Config{Logger: logger})
//	refresh, err := c.Authenticate(ctx, username, password)
//
//	c.AddListener(func(event dispatch.Event) {
//		switch e := event.(type) {
//		case dispatch.BarrierStateEvent:
//			// e.State is the new snapshot
//		case dispatch.ObstructedEvent:
//			// movement blocked
//		}
//	}, dispatch.Filter{})
//
//	err = c.Subscribe(ctx, receiverID)
//	err = c.Connect(ctx)
//	...
//	c.Close()
//
// Connect returns once the channel is up; events flow on library
// goroutines from then on. A lost connection reconnects automatically
// with backoff, re-issuing every wire subscription; listeners and
// receivers never need re-registration. When retrying is hopeless
// (credentials rejected, caps exhausted) the client closes itself and
// reports through OnTerminalError.
//
// # Errors
//
// Failures surface as the typed errors in this package, matchable with
// errors.As: AuthError (never retried), TransportError and ProtocolError
// (retried with backoff at the connection level), CommandError and
// TimeoutError (per call, connection unaffected).
package client
