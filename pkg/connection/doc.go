// Package connection manages the realtime channel lifecycle.
//
// This package handles:
//   - Connection state tracking (the five-state machine below)
//   - Exponential backoff with jitter for reconnection attempts
//   - Automatic reconnection after a detected connection loss
//   - Failure classification (transient, protocol, fatal)
//
// # State Machine
//
//	DISCONNECTED → CONNECTING → CONNECTED → RECONNECTING → CONNECTED (loop)
//	            ↘ CLOSED (terminal, reachable from any state)
//
// Transitions are driven only by the Manager. Callers observe state through
// State() and the OnStateChange callback.
//
// # Reconnection Strategy
//
// When the transport reports a loss, the manager retries with exponential
// backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Reset to 1s on successful reconnection
//
// Jitter (up to 25% of the base delay) spreads retries when many clients
// reconnect at once:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Retry Caps
//
// Retries stop, the manager moves to CLOSED and the terminal-error callback
// fires when any of these trips:
//
//   - an attempt's error classifies as Fatal (credentials rejected)
//   - MaxAttempts reconnect attempts fail within one outage
//   - MaxProtocolFailures consecutive attempts fail with protocol errors
//
// Every failed attempt is reported through OnRetryFailed; no attempt's error
// is ever dropped.
package connection
