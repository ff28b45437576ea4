package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// SRP protocol constants.
const (
	// derivedKeyInfo is the HKDF info string of the provider's key schedule.
	derivedKeyInfo = "Caldera Derived Key"

	// derivedKeySize is the size of the challenge signing key in bytes.
	derivedKeySize = 16
)

// ErrInvalidChallenge reports a verifier challenge the provider sent that the
// client cannot answer (malformed values or degenerate group elements).
var ErrInvalidChallenge = errors.New("invalid verifier challenge")

// Group parameters: the 3072-bit prime group from RFC 5054 with g = 2, and
// the derived multiplier k = H(N, g).
var (
	srpN = mustHexBigInt(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
			"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
			"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
			"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
			"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
			"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
			"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
			"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
			"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
			"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
			"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64" +
			"ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
			"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6B" +
			"F12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
			"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB31" +
			"43DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF")
	srpG = big.NewInt(2)
	srpK = hashToInt(padInt(srpN), padInt(srpG))
)

// mustHexBigInt parses a hex string to big.Int or panics.
func mustHexBigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("invalid hex string: " + s)
	}
	return n
}

// srpExchange holds the client side of one SRP handshake. An exchange is
// single-use: the ephemeral key pair must not be reused across logins.
type srpExchange struct {
	// a is the ephemeral private exponent.
	a *big.Int

	// bigA is the public value g^a mod N sent with the first request.
	bigA *big.Int
}

// newSRPExchange generates a fresh ephemeral key pair.
func newSRPExchange() (*srpExchange, error) {
	a, err := rand.Int(rand.Reader, srpN)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	bigA := new(big.Int).Exp(srpG, a, srpN)
	if bigA.Sign() == 0 {
		return nil, errors.New("ephemeral public value is zero")
	}
	return &srpExchange{a: a, bigA: bigA}, nil
}

// authParams returns the AuthParameters of the opening request.
func (e *srpExchange) authParams(username string) map[string]string {
	return map[string]string{
		"USERNAME": username,
		"SRP_A":    e.bigA.Text(16),
	}
}

// sessionKey derives the challenge signing key from the provider's verifier
// challenge. S = (B - k*g^x)^(a + u*x) mod N, keyed through HKDF with the
// scrambling parameter as salt.
func (e *srpExchange) sessionKey(poolName, userID, password, saltHex string, b *big.Int) ([]byte, error) {
	if new(big.Int).Mod(b, srpN).Sign() == 0 {
		return nil, fmt.Errorf("%w: server ephemeral is zero mod N", ErrInvalidChallenge)
	}
	u := scramble(e.bigA, b)
	if u.Sign() == 0 {
		return nil, fmt.Errorf("%w: scrambling parameter is zero", ErrInvalidChallenge)
	}
	x, err := passwordX(poolName, userID, password, saltHex)
	if err != nil {
		return nil, err
	}

	gx := new(big.Int).Exp(srpG, x, srpN)
	base := new(big.Int).Sub(b, new(big.Int).Mul(srpK, gx))
	base.Mod(base, srpN)
	exp := new(big.Int).Add(e.a, new(big.Int).Mul(u, x))
	s := new(big.Int).Exp(base, exp, srpN)

	return deriveKey(s, u), nil
}

// passwordX derives the private password exponent
// x = H(salt || H(poolName || userID || ":" || password)).
func passwordX(poolName, userID, password, saltHex string) (*big.Int, error) {
	credentials := sha256.Sum256([]byte(poolName + userID + ":" + password))
	salt, err := hexBytes(saltHex)
	if err != nil {
		return nil, fmt.Errorf("%w: salt: %w", ErrInvalidChallenge, err)
	}
	return hashToInt(salt, credentials[:]), nil
}

// scramble computes the SRP scrambling parameter u = H(A || B).
func scramble(bigA, bigB *big.Int) *big.Int {
	return hashToInt(padInt(bigA), padInt(bigB))
}

// deriveKey runs the provider's key schedule over the shared secret.
func deriveKey(s, u *big.Int) []byte {
	reader := hkdf.New(sha256.New, padInt(s), padInt(u), []byte(derivedKeyInfo))
	key := make([]byte, derivedKeySize)
	io.ReadFull(reader, key)
	return key
}

// signChallenge computes the password claim signature over the pool name,
// user id, secret block and timestamp.
func signChallenge(key []byte, poolName, userID string, secretBlock []byte, timestamp string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(poolName))
	mac.Write([]byte(userID))
	mac.Write(secretBlock)
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// timestampLayout is the form the provider's signature check expects: english
// weekday and month names, a non-padded day, always UTC.
const timestampLayout = "Mon Jan 2 15:04:05 UTC 2006"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// hashToInt hashes the concatenated parts and reads the digest as a positive
// integer.
func hashToInt(parts ...[]byte) *big.Int {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// padHex normalizes a hex string to the form the provider hashes: odd-length
// strings gain a leading zero, and values whose top bit is set gain a zero
// byte so they read as positive two's-complement.
func padHex(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	if len(s) > 0 && strings.IndexByte("89abcdefABCDEF", s[0]) >= 0 {
		return "00" + s
	}
	return s
}

// padInt is padHex applied to an integer's hex form, decoded to bytes.
func padInt(n *big.Int) []byte {
	b, _ := hex.DecodeString(padHex(n.Text(16)))
	return b
}

// hexBytes decodes a hex string after normalization.
func hexBytes(s string) ([]byte, error) {
	b, err := hex.DecodeString(padHex(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex value: %w", err)
	}
	return b, nil
}
