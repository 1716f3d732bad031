// Package identity implements TrustBridge's account & session foundation.
//
// It contains the account model, security primitives (ULID, opaque session
// tokens, token hashing), and the store implementations used by the HTTP
// layer (in-memory for dev, Postgres for production).
//
// This package is intentionally dependency-light and security-first.
package identity
