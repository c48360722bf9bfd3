package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/albapepper/matchstats/internal/stats"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Migrate twice to make sure it is idempotent.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	return s
}

func record(id string, endedAt time.Time) stats.StatRecord {
	return stats.NewRecord(stats.MatchID(id), "Skyblock", "Alice", 2, endedAt, []stats.PlayerStatRecord{
		{PlayerName: "Bob", PlayerID: "uuid-b", Fields: stats.FieldsOf("deaths", 4, "kills", 1)},
		{PlayerName: "Alice", PlayerID: "uuid-a", Fields: stats.FieldsOf("kills", 7, "blocksPlaced", 120, "deaths", 0)},
		{PlayerName: "Spectator"},
	})
}

func TestSQLiteSaveGetPreservesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := record("m1", time.UnixMilli(1_700_000_000_000))

	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("Get() = %s\nwant %s", got, want)
	}
}

func TestSQLiteDuplicateMatchIgnored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	first := record("dup", time.UnixMilli(1000))
	if err := s.Save(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := first
	second.Winner = "Bob"
	second.Players = nil
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := s.Get(ctx, "dup")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(first) {
		t.Errorf("duplicate overwrote the first record: %s", got)
	}
}

func TestSQLiteGetUnknown(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRecentNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, record(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].MatchID != "c" || got[1].MatchID != "b" {
		t.Fatalf("Recent(2) = %v", got)
	}
	if len(got[0].Players) != 3 || got[0].Players[0].PlayerName != "Bob" {
		t.Errorf("players not loaded: %+v", got[0].Players)
	}

	all, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("Recent(0) returned %d, want 3", len(all))
	}
}

func TestSQLitePurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.UnixMilli(1000)
	fresh := time.UnixMilli(1_700_000_000_000)
	for id, at := range map[string]time.Time{"old1": old, "old2": old, "fresh": fresh} {
		if err := s.Save(ctx, record(id, at)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Purge(ctx, time.UnixMilli(2000))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("Purge() = %d, want 2", n)
	}
	if _, err := s.Get(ctx, "old1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old1 still present: %v", err)
	}
	if _, err := s.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh purged: %v", err)
	}

	// Saving a purged id again starts clean.
	if err := s.Save(ctx, record("old1", fresh)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "old1")
	if err != nil || len(got.Players) != 3 || got.Players[1].Fields.Len() != 3 {
		t.Errorf("re-saved record = %+v, %v", got, err)
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{-1: DefaultRecentLimit, 0: DefaultRecentLimit, 5: 5, 1000: MaxRecentLimit} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
