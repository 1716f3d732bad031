package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require TB_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_Create_ConflictUsername_CaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.Create(ctx, CreateAccountInput{
		Username:       "Alice",
		CredentialHash: "hash-one",
		Now:            time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create account 1: %v", err)
	}

	// Same username (case-insensitive) should conflict.
	_, err = s.Create(ctx, CreateAccountInput{
		Username:       "aLiCe",
		CredentialHash: "hash-two",
		Now:            time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_TokenLifecycle(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyAccountSchema(t, pool, schema)

	s := mustNewAccountStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC()

	acct, err := s.Create(ctx, CreateAccountInput{
		Username:         "bob",
		CredentialHash:   "hash",
		SessionTokenHash: HashTokenSHA256Hex("plain-1"),
		Now:              now,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.FindByToken(ctx, HashTokenSHA256Hex("plain-1"))
	if err != nil {
		t.Fatalf("find by token: %v", err)
	}
	if got.ID != acct.ID {
		t.Fatalf("token resolved to %q, want %q", got.ID, acct.ID)
	}

	// Rotation makes the old token unresolvable.
	if err := s.RotateToken(ctx, acct.ID, HashTokenSHA256Hex("plain-2"), now); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := s.FindByToken(ctx, HashTokenSHA256Hex("plain-1")); !IsNotFound(err) {
		t.Fatalf("old token still resolves: %v", err)
	}
	if _, err := s.FindByToken(ctx, HashTokenSHA256Hex("plain-2")); err != nil {
		t.Fatalf("new token: %v", err)
	}

	// Clear is idempotent.
	if err := s.ClearToken(ctx, acct.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.ClearToken(ctx, acct.ID); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, err := s.FindByToken(ctx, HashTokenSHA256Hex("plain-2")); !IsNotFound(err) {
		t.Fatalf("cleared token still resolves: %v", err)
	}
}

// ---- helpers ----

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("TB_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: TB_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse TB_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (TB_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "context deadline exceeded")
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "tb_it_" + strings.ToLower(id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

func mustApplyAccountSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	accounts := pgIdent(schema, "accounts")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  username_norm TEXT NOT NULL,
  credential_hash TEXT NOT NULL,
  session_token_hash TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_accounts_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_accounts_username_norm UNIQUE (username_norm),
  CONSTRAINT uq_accounts_session_token_hash UNIQUE (session_token_hash),
  CONSTRAINT chk_accounts_token_hash_len CHECK (
    session_token_hash IS NULL OR char_length(session_token_hash) = 64
  )
);
`, accounts)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func mustNewAccountStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()

	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func pgxIdent1(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
