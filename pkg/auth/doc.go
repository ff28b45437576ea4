// Package auth implements the credential flows of the hosted identity
// provider.
//
// The primary flow is SRP over the 3072-bit group from RFC 5054: the password
// never crosses the wire. The client sends an ephemeral public value, receives
// the server ephemeral, salt and an opaque secret block, and proves possession
// of the password with an HMAC signature keyed by the derived session key.
// A stored refresh token skips the password proof entirely.
//
// Embedders that manage credentials themselves can satisfy Authenticator with
// StaticAuthenticator.
package auth
