package auth

import "time"

// DefaultExpiryMargin is subtracted from a token's lifetime when deciding
// whether it is still usable, leaving room for clock skew and in-flight
// requests.
const DefaultExpiryMargin = 5 * time.Minute

// Tokens is one set of session credentials issued by the identity provider.
//
// The ID token authorizes API and channel access. The refresh token outlives
// the session and can mint new tokens without the password; refresh responses
// leave RefreshToken empty, callers keep the original.
type Tokens struct {
	IDToken      string    `json:"id_token"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	IssuedAt     time.Time `json:"issued_at,omitempty"`
}

// ExpiresAt returns the end of the token lifetime, or the zero time when the
// lifetime is unknown.
func (t *Tokens) ExpiresAt() time.Time {
	if t.IssuedAt.IsZero() || t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Valid reports whether the ID token can still be presented. Tokens within
// DefaultExpiryMargin of expiry count as invalid so callers refresh before
// the provider starts rejecting them.
func (t *Tokens) Valid() bool {
	if t.IDToken == "" {
		return false
	}
	expiry := t.ExpiresAt()
	if expiry.IsZero() {
		return true
	}
	return time.Now().Before(expiry.Add(-DefaultExpiryMargin))
}
