package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are opt-in and require TB_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_UpsertReplaceAndOrder(t *testing.T) {
	t.Parallel()

	pool := mustOpenRecordsTestPool(t)
	defer pool.Close()

	schema := mustCreateRecordsTestSchema(t, pool)
	t.Cleanup(func() { mustDropRecordsSchema(t, pool, schema) })
	mustApplyRecordSchema(t, pool, schema)

	s := mustNewRecordStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	t0 := time.Now().UTC().Truncate(time.Microsecond)
	for _, k := range []string{"tx-a", "tx-b", "tx-c"} {
		if _, err := s.Upsert(ctx, UpsertInput{
			AccountID: "acct-1",
			Key:       k,
			Payload:   json.RawMessage(`{"v":1}`),
			Now:       t0,
		}); err != nil {
			t.Fatalf("seed %q: %v", k, err)
		}
	}

	// Replace the middle key; listing order must not change.
	t1 := t0.Add(time.Minute)
	if _, err := s.Upsert(ctx, UpsertInput{
		AccountID: "acct-1",
		Key:       "tx-b",
		Payload:   json.RawMessage(`{"v":2}`),
		Now:       t1,
	}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := s.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("listed %d records, want 3", len(got))
	}
	wantOrder := []string{"tx-a", "tx-b", "tx-c"}
	for i, k := range wantOrder {
		if got[i].Key != k {
			t.Fatalf("position %d has key %q, want %q", i, got[i].Key, k)
		}
	}
	if !bytes.Equal(got[1].Payload, []byte(`{"v":2}`)) {
		t.Fatalf("replaced payload = %s, want {\"v\":2}", got[1].Payload)
	}
	if !got[1].UpdatedAt.Equal(t1) {
		t.Fatalf("replaced UpdatedAt = %v, want %v", got[1].UpdatedAt, t1)
	}
}

func TestPostgresStore_AccountIsolation(t *testing.T) {
	t.Parallel()

	pool := mustOpenRecordsTestPool(t)
	defer pool.Close()

	schema := mustCreateRecordsTestSchema(t, pool)
	t.Cleanup(func() { mustDropRecordsSchema(t, pool, schema) })
	mustApplyRecordSchema(t, pool, schema)

	s := mustNewRecordStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if _, err := s.Upsert(ctx, UpsertInput{
		AccountID: "acct-1", Key: "shared", Payload: json.RawMessage(`{"owner":"one"}`), Now: now,
	}); err != nil {
		t.Fatalf("upsert acct-1: %v", err)
	}
	if _, err := s.Upsert(ctx, UpsertInput{
		AccountID: "acct-2", Key: "shared", Payload: json.RawMessage(`{"owner":"two"}`), Now: now,
	}); err != nil {
		t.Fatalf("upsert acct-2: %v", err)
	}

	one, err := s.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list acct-1: %v", err)
	}
	if len(one) != 1 || !bytes.Equal(one[0].Payload, []byte(`{"owner":"one"}`)) {
		t.Fatalf("acct-1 sees wrong records: %+v", one)
	}

	two, err := s.List(ctx, "acct-2")
	if err != nil {
		t.Fatalf("list acct-2: %v", err)
	}
	if len(two) != 1 || !bytes.Equal(two[0].Payload, []byte(`{"owner":"two"}`)) {
		t.Fatalf("acct-2 sees wrong records: %+v", two)
	}
}

// ---- helpers ----

func mustOpenRecordsTestPool(t *testing.T) *pgxpool.Pool {
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

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if recordsShouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (TB_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func recordsShouldSkipIntegration(err error) bool {
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

func mustCreateRecordsTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "tb_it_" + strings.ToLower(ulid.Make().String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropRecordsSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplyRecordSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	recs := pgIdent(schema, "account_records")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  seq BIGINT GENERATED ALWAYS AS IDENTITY,
  account_id TEXT NOT NULL,
  record_key TEXT NOT NULL,
  payload JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT pk_account_records PRIMARY KEY (account_id, record_key)
);
`, recs)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func mustNewRecordStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()

	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}
