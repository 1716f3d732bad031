package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_UpsertThenList_InsertionOrder(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	keys := []string{"tx-3", "tx-1", "tx-2"}
	for _, k := range keys {
		if _, err := s.Upsert(ctx, UpsertInput{
			AccountID: "acct-1",
			Key:       k,
			Payload:   json.RawMessage(`{"k":"` + k + `"}`),
			Now:       now,
		}); err != nil {
			t.Fatalf("upsert %q: %v", k, err)
		}
	}

	got, err := s.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(keys) {
		t.Fatalf("listed %d records, want %d", len(got), len(keys))
	}
	for i, k := range keys {
		if got[i].Key != k {
			t.Fatalf("position %d has key %q, want %q", i, got[i].Key, k)
		}
	}
}

func TestMemoryStore_Upsert_ReplaceKeepsPosition(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	for _, k := range []string{"a", "b", "c"} {
		if _, err := s.Upsert(ctx, UpsertInput{
			AccountID: "acct-1",
			Key:       k,
			Payload:   json.RawMessage(`{"v":1}`),
			Now:       t0,
		}); err != nil {
			t.Fatalf("seed %q: %v", k, err)
		}
	}

	// Replacing "b" must keep it in the middle, with the new payload + time.
	if _, err := s.Upsert(ctx, UpsertInput{
		AccountID: "acct-1",
		Key:       "b",
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
	if got[1].Key != "b" {
		t.Fatalf("middle record is %q, want %q", got[1].Key, "b")
	}
	if !bytes.Equal(got[1].Payload, []byte(`{"v":2}`)) {
		t.Fatalf("replaced payload = %s, want {\"v\":2}", got[1].Payload)
	}
	if !got[1].UpdatedAt.Equal(t1) {
		t.Fatalf("replaced UpdatedAt = %v, want %v", got[1].UpdatedAt, t1)
	}
	if !got[0].UpdatedAt.Equal(t0) || !got[2].UpdatedAt.Equal(t0) {
		t.Fatalf("untouched records changed their UpdatedAt")
	}
}

func TestMemoryStore_AccountIsolation(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	// Same key in two accounts: unrelated entries.
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
	two, err := s.List(ctx, "acct-2")
	if err != nil {
		t.Fatalf("list acct-2: %v", err)
	}
	if len(one) != 1 || len(two) != 1 {
		t.Fatalf("lists = %d and %d records, want 1 and 1", len(one), len(two))
	}
	if !bytes.Equal(one[0].Payload, []byte(`{"owner":"one"}`)) {
		t.Fatalf("acct-1 payload leaked: %s", one[0].Payload)
	}
	if !bytes.Equal(two[0].Payload, []byte(`{"owner":"two"}`)) {
		t.Fatalf("acct-2 payload leaked: %s", two[0].Payload)
	}
}

func TestMemoryStore_List_UnknownAccountIsEmpty(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	got, err := s.List(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("listed %d records for unknown account, want 0", len(got))
	}
}

func TestMemoryStore_Upsert_RejectsBadInput(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	cases := []struct {
		name    string
		in      UpsertInput
		wantErr error
	}{
		{"empty account", UpsertInput{AccountID: "", Key: "k"}, ErrInvalidAccount},
		{"blank account", UpsertInput{AccountID: "   ", Key: "k"}, ErrInvalidAccount},
		{"empty key", UpsertInput{AccountID: "acct-1", Key: ""}, ErrInvalidKey},
		{"blank key", UpsertInput{AccountID: "acct-1", Key: "  "}, ErrInvalidKey},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := s.Upsert(ctx, tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestMemoryStore_Upsert_CopiesPayload(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	buf := []byte(`{"v":1}`)
	if _, err := s.Upsert(ctx, UpsertInput{
		AccountID: "acct-1", Key: "k", Payload: buf, Now: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Mutating the caller's buffer must not reach the stored record.
	buf[5] = '9'

	got, err := s.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !bytes.Equal(got[0].Payload, []byte(`{"v":1}`)) {
		t.Fatalf("stored payload aliased caller buffer: %s", got[0].Payload)
	}
}

func TestMemoryStore_ConcurrentUpserts_SameKey(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, _ = s.Upsert(ctx, UpsertInput{
				AccountID: "acct-1",
				Key:       "contended",
				Payload:   json.RawMessage(fmt.Sprintf(`{"writer":%d}`, i)),
				Now:       time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	got, err := s.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("key duplicated under contention: %d records", len(got))
	}
	if !json.Valid(got[0].Payload) {
		t.Fatalf("stored payload corrupted: %s", got[0].Payload)
	}
}
