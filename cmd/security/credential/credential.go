package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// Hash derives a deterministic credential hash from password using
// PBKDF2-SHA256 with the application-wide pepper. Output is lowercase hex.
//
// Determinism is a contract: for a fixed pepper the same plaintext always
// produces the same hash, so Verify is hash-equality (in constant time).
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}
	return c.hashRaw(password), nil
}

// Verify checks whether password matches the given hex-encoded credential hash.
// Returns (true, nil) for a match, (false, nil) for mismatch,
// and (false, ErrInvalidHash) for malformed hashes.
//
// Policy is intentionally NOT applied here: a stored hash may predate a
// stricter policy, and login must keep working for those accounts.
func (c Config) Verify(password, encodedHex string) (bool, error) {
	expected, err := hex.DecodeString(encodedHex)
	if err != nil || len(expected) == 0 {
		return false, ErrInvalidHash
	}

	key := c.deriveKey(password, len(expected))

	// Constant-time compare.
	if subtle.ConstantTimeCompare(key, expected) == 1 {
		return true, nil
	}
	return false, nil
}

func (c Config) hashRaw(password string) string {
	return hex.EncodeToString(c.deriveKey(password, c.keyLength()))
}

func (c Config) deriveKey(password string, keyLen int) []byte {
	return pbkdf2.Key([]byte(password), effectivePepper(), c.iterations(), keyLen, sha256.New)
}

func (c Config) iterations() int {
	if c.Params.Iterations <= 0 {
		return DefaultConfig().Params.Iterations
	}
	return c.Params.Iterations
}

func (c Config) keyLength() int {
	if c.Params.KeyLength <= 0 {
		return DefaultConfig().Params.KeyLength
	}
	return c.Params.KeyLength
}
