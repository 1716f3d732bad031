package records

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements record persistence over PostgreSQL.
//
// Upserts are single INSERT ... ON CONFLICT statements, so the replace cycle
// is atomic without explicit locking. The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the record store (default "trustbridge").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("records: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("records: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
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
		return nil, fmt.Errorf("records: nil pool")
	}
	return st, nil
}

// Upsert inserts or replaces the record keyed by in.Key for in.AccountID.
func (s *PostgresStore) Upsert(ctx context.Context, in UpsertInput) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrInvalidAccount
	}
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

	recs := pgIdent(s.schema, "account_records")

	// seq keeps insertion order stable across replacements: ON CONFLICT only
	// touches payload + updated_at, never the original seq.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+recs+` (account_id, record_key, payload, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, record_key)
		 DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		in.AccountID, in.Key, []byte(in.Payload), now,
	)
	if err != nil {
		return Record{}, err
	}

	return Record{
		AccountID: in.AccountID,
		Key:       in.Key,
		Payload:   append([]byte(nil), in.Payload...),
		UpdatedAt: now,
	}, nil
}

// List returns the account's records in insertion order.
func (s *PostgresStore) List(ctx context.Context, accountID string) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, ErrInvalidAccount
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrInvalidAccount
	}

	recs := pgIdent(s.schema, "account_records")

	rows, err := s.pool.Query(ctx,
		`SELECT account_id, record_key, payload, updated_at
		   FROM `+recs+`
		  WHERE account_id = $1
		  ORDER BY seq ASC`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			payload []byte
		)
		if err := rows.Scan(&r.AccountID, &r.Key, &payload, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Payload = payload
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
