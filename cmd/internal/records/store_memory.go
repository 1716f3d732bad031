package records

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the dev/test fallback when DB is not configured.
//
// One mutex serializes every upsert's read-modify-write cycle; the per-account
// dedupe map and the ordered slice are always updated together under it.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*memRecords
}

type memRecords struct {
	byKey map[string]int // key -> index into ordered
	list  []Record       // insertion order
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*memRecords),
	}
}

// Upsert inserts or replaces the record keyed by in.Key for in.AccountID.
func (s *MemoryStore) Upsert(ctx context.Context, in UpsertInput) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(in.AccountID) == "" {
		return Record{}, ErrInvalidAccount
	}
	if strings.TrimSpace(in.Key) == "" {
		return Record{}, ErrInvalidKey
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rec := Record{
		AccountID: in.AccountID,
		Key:       in.Key,
		Payload:   append([]byte(nil), in.Payload...),
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.accounts[in.AccountID]
	if a == nil {
		a = &memRecords{byKey: make(map[string]int)}
		s.accounts[in.AccountID] = a
	}

	if idx, ok := a.byKey[in.Key]; ok {
		// Replace in place: the record keeps its position in the listing.
		a.list[idx] = rec
		return rec, nil
	}

	a.byKey[in.Key] = len(a.list)
	a.list = append(a.list, rec)
	return rec, nil
}

// List returns the account's records in insertion order.
// An account with no records yields an empty slice, never an error.
func (s *MemoryStore) List(ctx context.Context, accountID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrInvalidAccount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.accounts[accountID]
	if a == nil {
		return nil, nil
	}

	out := make([]Record, len(a.list))
	copy(out, a.list)
	return out, nil
}
