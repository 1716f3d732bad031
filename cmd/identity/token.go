package identity

import (
	"crypto/rand"
	"encoding/base64"

	"trustbridge/cmd/security/token"
)

// Token hashing hardening:
//
// English comment:
// - identity delegates session-token hashing to cmd/security/token as the single source of truth.
// - Output is always a 64-char hex string.
//
// Recommendation (prod):
// - Set TB_TOKEN_HMAC_KEY to a long random secret (>= 32 bytes).

// NewSessionToken returns a cryptographically random opaque bearer token.
// It is URL-safe (base64url) and SHOULD be stored only on the client.
// The server stores only a hash (see HashSessionTokenHex).
func NewSessionToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, no padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashTokenSHA256Hex returns a SHA-256 hex hash of the token.
func HashTokenSHA256Hex(tokenStr string) string { return token.HashSHA256Hex(tokenStr) }

// HashTokenHMACSHA256Hex returns an HMAC-SHA256 hex digest of token using key.
func HashTokenHMACSHA256Hex(tokenStr string, key []byte) string {
	return token.HashHMACSHA256Hex(tokenStr, key)
}

// HashSessionTokenHex returns the server-stored hash for session tokens.
// It uses HMAC-SHA256 if TB_TOKEN_HMAC_KEY is set; otherwise falls back to SHA-256.
func HashSessionTokenHex(tokenStr string) string { return token.HashSessionTokenHex(tokenStr) }
