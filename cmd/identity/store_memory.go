package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the dev/test fallback when DB is not configured.
//
// Serialization model: one mutex guards every read-modify-write cycle, so
// register's uniqueness check, token rotation, and token clearing are atomic
// with respect to each other. The byToken index is updated under the same
// lock as the account record, which keeps the token -> account mapping
// injective at all times.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account // id -> account
	byNorm   map[string]string   // username_norm -> id
	byToken  map[string]string   // session_token_hash -> id
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		byNorm:   make(map[string]string),
		byToken:  make(map[string]string),
	}
}

// Create registers a new account, enforcing case-insensitive username uniqueness.
func (s *MemoryStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	username := strings.TrimSpace(in.Username)
	if !ValidUsername(username) {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "bad username format"}
	}
	if strings.TrimSpace(in.CredentialHash) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing credential hash"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	norm := NormalizeUsername(username)

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNorm[norm]; taken {
		return Account{}, ConflictError{Op: op, Field: "username"}
	}
	if in.SessionTokenHash != "" {
		if _, taken := s.byToken[in.SessionTokenHash]; taken {
			return Account{}, ConflictError{Op: op, Field: "session_token"}
		}
	}

	acct := Account{
		ID:               id,
		Username:         username,
		UsernameNorm:     norm,
		CredentialHash:   in.CredentialHash,
		SessionTokenHash: in.SessionTokenHash,
		CreatedAt:        now,
	}

	s.accounts[id] = &acct
	s.byNorm[norm] = id
	if acct.SessionTokenHash != "" {
		s.byToken[acct.SessionTokenHash] = id
	}

	return acct, nil
}

// FindByUsername resolves an account by case-insensitive username.
func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (Account, error) {
	const op = "identity.FindByUsername"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	norm := NormalizeUsername(username)
	if norm == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty username"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byNorm[norm]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return *s.accounts[id], nil
}

// FindByToken resolves an account by session token hash via the direct index.
// An empty hash never resolves.
func (s *MemoryStore) FindByToken(ctx context.Context, tokenHash string) (Account, error) {
	const op = "identity.FindByToken"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if tokenHash == "" {
		return Account{}, NotFoundError{Op: op, Resource: "session"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[tokenHash]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "session"}
	}
	return *s.accounts[id], nil
}

// RotateToken atomically replaces the account's session slot with newTokenHash.
// The previous token (if any) becomes permanently unresolvable.
func (s *MemoryStore) RotateToken(ctx context.Context, accountID, newTokenHash string, now time.Time) error {
	const op = "identity.RotateToken"

	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing account_id"}
	}
	if newTokenHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing token hash"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	if holder, taken := s.byToken[newTokenHash]; taken && holder != accountID {
		return ConflictError{Op: op, Field: "session_token"}
	}

	if acct.SessionTokenHash != "" {
		delete(s.byToken, acct.SessionTokenHash)
	}
	acct.SessionTokenHash = newTokenHash
	s.byToken[newTokenHash] = accountID

	return nil
}

// ClearToken empties the account's session slot. Idempotent.
func (s *MemoryStore) ClearToken(ctx context.Context, accountID string) error {
	const op = "identity.ClearToken"

	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing account_id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}

	if acct.SessionTokenHash != "" {
		delete(s.byToken, acct.SessionTokenHash)
		acct.SessionTokenHash = ""
	}
	return nil
}
