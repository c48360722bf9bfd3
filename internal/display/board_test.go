package display

import (
	"slices"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBoard() (*Board, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	b := NewBoard()
	b.now = c.now
	return b, c
}

var (
	spawn = Location{World: "lobby", X: 0.5, Y: 64, Z: -3}
	arena = Location{World: "lobby", X: 10, Y: 70, Z: 4}
)

func TestShowWithDurationExpires(t *testing.T) {
	b, c := newTestBoard()
	b.Show([]string{"a", "b"}, []Location{spawn, arena}, 30)

	got := b.Current()
	if len(got) != 2 {
		t.Fatalf("Current() has %d entries, want 2", len(got))
	}
	if !slices.Equal(got[0].Lines, []string{"a", "b"}) || got[0].ExpiresAt == nil {
		t.Errorf("entry = %+v", got[0])
	}

	c.t = c.t.Add(31 * time.Second)
	if got := b.Current(); len(got) != 0 {
		t.Errorf("expired entries still visible: %+v", got)
	}
	if n := b.Evict(); n != 2 {
		t.Errorf("Evict() = %d, want 2", n)
	}
}

func TestShowWithoutDurationPersistsUntilReplaced(t *testing.T) {
	b, c := newTestBoard()
	b.Show([]string{"first"}, []Location{spawn}, 0)
	c.t = c.t.Add(48 * time.Hour)

	got := b.Current()
	if len(got) != 1 || got[0].Lines[0] != "first" || got[0].ExpiresAt != nil {
		t.Fatalf("Current() = %+v", got)
	}

	b.Show([]string{"second"}, []Location{spawn}, -1)
	if got := b.Current(); got[0].Lines[0] != "second" {
		t.Errorf("not replaced: %+v", got)
	}
	if n := b.Evict(); n != 0 {
		t.Errorf("Evict() = %d, want 0", n)
	}
}

func TestShowCopiesLines(t *testing.T) {
	b, _ := newTestBoard()
	lines := []string{"x"}
	b.Show(lines, []Location{spawn}, 0)
	lines[0] = "mutated"
	if b.Current()[0].Lines[0] != "x" {
		t.Error("board shares caller's slice")
	}
}

func TestStats(t *testing.T) {
	b, c := newTestBoard()
	b.Show([]string{"a"}, []Location{spawn}, 5)
	b.Show([]string{"b"}, []Location{arena}, 0)
	c.t = c.t.Add(10 * time.Second)
	s := b.Stats()
	if s["active_locations"] != 1 || s["expired_locations"] != 1 {
		t.Errorf("Stats() = %v", s)
	}
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation(" lobby:0.5:64:-3 ")
	if err != nil {
		t.Fatal(err)
	}
	if loc != spawn {
		t.Errorf("loc = %+v", loc)
	}
	for _, bad := range []string{"", "lobby:1:2", ":1:2:3", "lobby:x:2:3"} {
		if _, err := ParseLocation(bad); err == nil {
			t.Errorf("ParseLocation(%q) should fail", bad)
		}
	}
}
