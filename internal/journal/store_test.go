package journal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "journal.db"), logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClaim_OnlyFirstCallerWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "C1:100.1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}

	ok, err = s.Claim(ctx, "C1:100.1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second claim for the same key should fail")
	}

	if ok, _ := s.Claim(ctx, "C1:100.2"); !ok {
		t.Fatal("a different key should be claimable")
	}
}

func TestClaim_Concurrent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(ctx, "C1:200.1")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	if won.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", won.Load())
	}
}

func TestClaim_IndependentOfRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, Entry{Key: "C1:300.1", Kind: "message", Outcome: "answered"}); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Claim(ctx, "C1:300.1"); err != nil || !ok {
		t.Fatalf("recording an entry must not claim its key: ok=%v err=%v", ok, err)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := s.Record(ctx, Entry{Key: key, Kind: "message", Outcome: "answered"}); err != nil {
			t.Fatal(err)
		}
	}
	// Redelivery is journaled again, not merged.
	if err := s.Record(ctx, Entry{Key: "a", Kind: "message", Outcome: "duplicate"}); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Key != "a" || entries[0].Outcome != "duplicate" {
		t.Errorf("expected newest redelivery first, got %+v", entries[0])
	}
	if entries[2].Key != "b" {
		t.Errorf("expected b last, got %s", entries[2].Key)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("created_at should be set")
	}
}
