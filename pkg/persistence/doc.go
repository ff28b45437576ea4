// Package persistence stores the durable remainder of an authenticated
// session (refresh token, endpoint cache) between runs.
//
// The core client never touches disk; the bundled commands and embedders opt
// in. Session files hold a long-lived credential, so they are written
// atomically with owner-only permissions.
package persistence
