package identity

import (
	"context"
	"time"
)

// Account is TrustBridge's canonical security principal.
//
// SessionTokenHash is the single-slot session: non-empty means the account is
// currently logged in, and exactly one token resolves to it. A fresh login
// overwrites the slot (revoking the prior token); logout clears it.
// IMPORTANT: the plain token is never stored; only its hash.
type Account struct {
	ID           string
	Username     string
	UsernameNorm string

	CredentialHash   string
	SessionTokenHash string

	CreatedAt time.Time
}

// LoggedIn reports whether the account currently holds an active session slot.
func (a Account) LoggedIn() bool { return a.SessionTokenHash != "" }

// CreateAccountInput describes an account registration request.
// CredentialHash must already be derived (see cmd/security/credential);
// stores never see plaintext passwords.
type CreateAccountInput struct {
	Username         string
	CredentialHash   string
	SessionTokenHash string // optional: registration may log the account in atomically
	Now              time.Time
}

// Store is the account persistence boundary.
//
// Contract (all implementations):
//   - Create enforces case-insensitive username uniqueness atomically with the
//     insert (no check-then-act window) and assigns an immutable ULID.
//   - FindByToken is a direct token-hash index lookup, never a scan. The
//     token-hash -> account mapping is injective and is maintained
//     transactionally with the account record on every rotation/clear.
//   - RotateToken installs a new token hash, making any prior token for the
//     account permanently unresolvable in the same atomic step.
//   - ClearToken is idempotent: clearing an already-logged-out account is not
//     an error.
//   - No operation leaves partial state behind on failure.
type Store interface {
	Create(ctx context.Context, in CreateAccountInput) (Account, error)
	FindByUsername(ctx context.Context, username string) (Account, error)
	FindByToken(ctx context.Context, tokenHash string) (Account, error)
	RotateToken(ctx context.Context, accountID, newTokenHash string, now time.Time) error
	ClearToken(ctx context.Context, accountID string) error
}
