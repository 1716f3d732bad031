// Package credential provides password hashing and verification for TrustBridge.
//
// It implements a deterministic peppered PBKDF2-SHA256 hash and includes:
// - Configurable derivation parameters (via environment variables)
// - Password policy validation
// - Constant-time verification
//
// Security notes:
//   - The same plaintext always yields the same hash for a fixed pepper, so
//     equality is hash-equality. The pepper is an application-wide secret,
//     never a per-record salt.
//   - Hashes are never logged and never serialized to clients.
package credential
