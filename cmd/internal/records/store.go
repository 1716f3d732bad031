// Package records implements the per-account keyed record store ("transactions").
//
// Records are create-or-replace by key and strictly scoped to one account:
// callers resolve the account from an authenticated session before the store
// is ever touched, so cross-account visibility is structurally impossible.
package records

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one keyed entry in an account's record set.
// Payload is opaque JSON; the store never interprets it.
type Record struct {
	AccountID string
	Key       string
	Payload   json.RawMessage
	UpdatedAt time.Time
}

// UpsertInput describes a create-or-replace request.
type UpsertInput struct {
	AccountID string
	Key       string
	Payload   json.RawMessage
	Now       time.Time
}

// Store is the record persistence boundary.
//
// Contract (all implementations):
//   - Upsert replaces the payload and refreshes UpdatedAt when Key exists,
//     otherwise inserts; the whole cycle is atomic per account+key.
//   - Key uniqueness is per account; identical keys across accounts are
//     unrelated entries.
//   - List returns the account's records in insertion order (an upsert of an
//     existing key keeps its original position).
type Store interface {
	Upsert(ctx context.Context, in UpsertInput) (Record, error)
	List(ctx context.Context, accountID string) ([]Record, error)
}
