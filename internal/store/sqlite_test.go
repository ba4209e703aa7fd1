package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "chatty.db"), slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordInbound(ctx, "twitch:chan", "alice", "hello"); err != nil {
		t.Fatalf("RecordInbound: %v", err)
	}
	if err := s.RecordOutbound(ctx, "twitch:chan", "Chatty", "hi alice"); err != nil {
		t.Fatalf("RecordOutbound: %v", err)
	}
	if err := s.RecordInbound(ctx, "discord:other", "bob", "elsewhere"); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Recent(ctx, "twitch:chan", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Author != "alice" || entries[0].Direction != "in" {
		t.Fatalf("oldest entry = %+v", entries[0])
	}
	if entries[1].Author != "Chatty" || entries[1].Direction != "out" {
		t.Fatalf("newest entry = %+v", entries[1])
	}
}

func TestRecentLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.RecordInbound(ctx, "c", "u", "msg"); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.Recent(ctx, "c", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordInbound(ctx, "c", "u", "old enough"); err != nil {
		t.Fatal(err)
	}
	n, err := s.Purge(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d rows, want 1", n)
	}
	entries, _ := s.Recent(ctx, "c", 10)
	if len(entries) != 0 {
		t.Fatalf("%d entries survived purge", len(entries))
	}
}
