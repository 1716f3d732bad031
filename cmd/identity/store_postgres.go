package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements account persistence over PostgreSQL.
//
// English design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Session rotation/clearing are single-row UPDATEs, so the unique index on
//   session_token_hash keeps the token -> account mapping injective without
//   explicit locking.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the account store (default "trustbridge").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "trustbridge",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const accountColumns = `id, username, username_norm, credential_hash, session_token_hash, created_at`

// Create registers a new account.
func (s *PostgresStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
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

	accounts := pgIdent(s.schema, "accounts")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+accounts+` (
		     id, username, username_norm, credential_hash, session_token_hash, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6)`,
		id,
		username,
		norm,
		in.CredentialHash,
		emptyToNil(in.SessionTokenHash),
		now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}

	return Account{
		ID:               id,
		Username:         username,
		UsernameNorm:     norm,
		CredentialHash:   in.CredentialHash,
		SessionTokenHash: in.SessionTokenHash,
		CreatedAt:        now,
	}, nil
}

// FindByUsername resolves an account by case-insensitive username.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (Account, error) {
	const op = "identity.FindByUsername"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}

	norm := NormalizeUsername(username)
	if norm == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty username"}
	}

	accounts := pgIdent(s.schema, "accounts")

	return s.scanAccount(ctx, op,
		`SELECT `+accountColumns+` FROM `+accounts+` WHERE username_norm = $1`,
		norm,
	)
}

// FindByToken resolves an account by session token hash (unique index lookup).
func (s *PostgresStore) FindByToken(ctx context.Context, tokenHash string) (Account, error) {
	const op = "identity.FindByToken"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if tokenHash == "" {
		return Account{}, NotFoundError{Op: op, Resource: "session"}
	}

	accounts := pgIdent(s.schema, "accounts")

	return s.scanAccount(ctx, op,
		`SELECT `+accountColumns+` FROM `+accounts+` WHERE session_token_hash = $1`,
		tokenHash,
	)
}

// RotateToken installs a new session token hash for the account.
// The previous token becomes unresolvable in the same UPDATE.
func (s *PostgresStore) RotateToken(ctx context.Context, accountID, newTokenHash string, now time.Time) error {
	const op = "identity.RotateToken"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing account_id"}
	}
	if newTokenHash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing token hash"}
	}

	accounts := pgIdent(s.schema, "accounts")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+` SET session_token_hash = $2 WHERE id = $1`,
		accountID, newTokenHash,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// ClearToken empties the account's session slot. Idempotent for logged-out accounts.
func (s *PostgresStore) ClearToken(ctx context.Context, accountID string) error {
	const op = "identity.ClearToken"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(accountID) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing account_id"}
	}

	accounts := pgIdent(s.schema, "accounts")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+` SET session_token_hash = NULL WHERE id = $1`,
		accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func (s *PostgresStore) scanAccount(ctx context.Context, op, query string, args ...any) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	var (
		acct      Account
		tokenHash *string
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&acct.ID,
		&acct.Username,
		&acct.UsernameNorm,
		&acct.CredentialHash,
		&tokenHash,
		&acct.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}
	if tokenHash != nil {
		acct.SessionTokenHash = *tokenHash
	}
	return acct, nil
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// English comment:
	// Prefer stable schema constraint names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_accounts_username_norm":
		return "username", true
	case "uq_accounts_session_token_hash":
		return "session_token", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "token"):
			return "session_token", true
		default:
			return "unique", true
		}
	}
}
