package stats

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestFieldsPreserveInsertionOrder(t *testing.T) {
	var f Fields
	f.Set("score", 10)
	f.Set("kills", 3)
	f.Set("deaths", 1)
	f.Set("kills", 4) // overwrite keeps position

	want := []string{"score", "kills", "deaths"}
	if got := f.Keys(); !slices.Equal(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if v, _ := f.Get("kills"); v != 4 {
		t.Errorf("kills = %d, want 4", v)
	}
	if f.Len() != 3 {
		t.Errorf("Len() = %d, want 3", f.Len())
	}
}

func TestFieldsEqualIsOrderSensitive(t *testing.T) {
	a := FieldsOf("kills", 1, "deaths", 2)
	b := FieldsOf("deaths", 2, "kills", 1)
	if a.Equal(b) {
		t.Error("fields with different order should not be equal")
	}
	if !a.Equal(a.Clone()) {
		t.Error("clone should equal original")
	}
}

func TestFieldsCloneIsIndependent(t *testing.T) {
	a := FieldsOf("kills", 1)
	b := a.Clone()
	b.Set("kills", 9)
	if v, _ := a.Get("kills"); v != 1 {
		t.Errorf("original mutated through clone: kills = %d", v)
	}
}

func TestFieldsJSONKeepsOrder(t *testing.T) {
	f := FieldsOf("zeta", 1, "alpha", -2)
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"zeta":1,"alpha":-2}` {
		t.Fatalf("marshal = %s", data)
	}

	var back Fields
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(f) {
		t.Errorf("unmarshal = %v, want %v", back.Keys(), f.Keys())
	}
}

func TestNewRecordCopiesPlayers(t *testing.T) {
	players := []PlayerStatRecord{{PlayerName: "Bob", Fields: FieldsOf("score", 42)}}
	at := time.UnixMilli(1700000000123)
	rec := NewRecord("m-1", "Skyblock", "Bob", 4, at, players)

	players[0].Fields.Set("score", 0)
	if v, _ := rec.Players[0].Fields.Get("score"); v != 42 {
		t.Errorf("record shares state with input: score = %d", v)
	}
	if rec.Timestamp != 1700000000123 {
		t.Errorf("Timestamp = %d", rec.Timestamp)
	}
	if !rec.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", rec.Time(), at)
	}
}

func TestNewMatchIDUnique(t *testing.T) {
	seen := make(map[MatchID]bool)
	for range 100 {
		id := NewMatchID()
		if seen[id] {
			t.Fatalf("duplicate match id %s", id)
		}
		seen[id] = true
	}
}
