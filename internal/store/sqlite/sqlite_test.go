package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wirecall/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewWithSetup(":memory:", Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetCallRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	connected := created.Add(5 * time.Second)
	rec := &store.CallRecord{
		ID:          "call-1",
		Direction:   "outgoing",
		Address:     "bob@example.com",
		OneToOne:    true,
		Reason:      "remote_left",
		CreatedAt:   created,
		ConnectedAt: &connected,
		EndedAt:     created.Add(time.Minute),
	}
	if err := s.SaveCallRecord(ctx, rec); err != nil {
		t.Fatalf("SaveCallRecord failed: %v", err)
	}

	got, err := s.GetCallRecord(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetCallRecord failed: %v", err)
	}
	if got.Direction != "outgoing" || got.Address != "bob@example.com" || !got.OneToOne || got.Reason != "remote_left" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.CreatedAt.Equal(created) || !got.EndedAt.Equal(rec.EndedAt) {
		t.Fatalf("timestamps mismatch: created=%v ended=%v", got.CreatedAt, got.EndedAt)
	}
	if got.ConnectedAt == nil || !got.ConnectedAt.Equal(connected) {
		t.Fatalf("expected connected_at %v, got %v", connected, got.ConnectedAt)
	}
}

func TestGetCallRecordNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCallRecord(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListCallRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := &store.CallRecord{
			ID:         id,
			Direction:  "incoming",
			Reason:     "error",
			ReasonCode: "endedByLocus",
			CreatedAt:  base,
			EndedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveCallRecord(ctx, rec); err != nil {
			t.Fatalf("SaveCallRecord(%s) failed: %v", id, err)
		}
	}

	tests := []struct {
		name     string
		limit    int
		expected []string
	}{
		{name: "all", limit: 0, expected: []string{"c", "b", "a"}},
		{name: "limited", limit: 2, expected: []string{"c", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := s.ListCallRecords(ctx, tt.limit)
			if err != nil {
				t.Fatalf("ListCallRecords failed: %v", err)
			}
			if len(records) != len(tt.expected) {
				t.Fatalf("expected %d records, got %d", len(tt.expected), len(records))
			}
			for i, rec := range records {
				if rec.ID != tt.expected[i] {
					t.Errorf("record %d: expected %s, got %s", i, tt.expected[i], rec.ID)
				}
				if rec.ConnectedAt != nil {
					t.Errorf("record %s: expected no connected_at", rec.ID)
				}
			}
		})
	}
}

func TestSaveCallRecordReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &store.CallRecord{ID: "x", Direction: "incoming", Reason: "other_declined", CreatedAt: time.Now(), EndedAt: time.Now()}
	if err := s.SaveCallRecord(ctx, rec); err != nil {
		t.Fatalf("SaveCallRecord failed: %v", err)
	}
	rec.Reason = "local_decline"
	if err := s.SaveCallRecord(ctx, rec); err != nil {
		t.Fatalf("SaveCallRecord failed: %v", err)
	}

	records, err := s.ListCallRecords(ctx, 0)
	if err != nil {
		t.Fatalf("ListCallRecords failed: %v", err)
	}
	if len(records) != 1 || records[0].Reason != "local_decline" {
		t.Fatalf("expected one replaced record, got %+v", records)
	}
}

func TestNewWithSetupError(t *testing.T) {
	_, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec("NOT SQL")
		return err
	})
	if err == nil {
		t.Fatal("expected setup error")
	}
}
