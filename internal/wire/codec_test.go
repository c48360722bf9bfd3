package wire

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/albapepper/matchstats/internal/stats"
)

func sampleRecords() map[string]stats.StatRecord {
	return map[string]stats.StatRecord{
		"zero players": {
			MatchID: "m-0", GameName: "BedWars", Winner: "", PlayerCount: 0, Timestamp: 1,
		},
		"one player no fields": {
			MatchID: "m-1", GameName: "BedWars", Winner: "Amy", PlayerCount: 1, Timestamp: 1700000000000,
			Players: []stats.PlayerStatRecord{{PlayerName: "Amy", PlayerID: "u1"}},
		},
		"disjoint field sets": {
			MatchID: "m-2", GameName: "SkyWars", Winner: "Bob", PlayerCount: 9, Timestamp: -5,
			Players: []stats.PlayerStatRecord{
				{PlayerName: "Bob", PlayerID: "", Fields: stats.FieldsOf("kills", 5, "deaths", 0)},
				{PlayerName: "Cäcilie", PlayerID: "u3", Fields: stats.FieldsOf("beds_broken", 2, "score", -40)},
				{PlayerName: "Dan", PlayerID: "u4", Fields: stats.FieldsOf("z", 2147483647, "a", -2147483648)},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	codec := NewCodec(Dynamic)
	for name, rec := range sampleRecords() {
		t.Run(name, func(t *testing.T) {
			data, err := codec.Encode(rec)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !got.Equal(rec) {
				t.Errorf("round trip mismatch:\n got %v\nwant %v", got, rec)
			}
		})
	}
}

func TestRoundTripSkyblock(t *testing.T) {
	rec := stats.StatRecord{
		MatchID: "m-1", GameName: "Skyblock", Winner: "Bob", PlayerCount: 4, Timestamp: 1700000000000,
		Players: []stats.PlayerStatRecord{{PlayerName: "Bob", PlayerID: "", Fields: stats.FieldsOf("score", 42)}},
	}
	codec := NewCodec(Dynamic)
	data, err := codec.Encode(rec)
	if err != nil {
		t.Fatal(err)
	}
	got, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(rec) {
		t.Fatalf("got %v, want %v", got, rec)
	}
	if v, _ := got.Players[0].Fields.Get("score"); v != 42 {
		t.Errorf("score = %d", v)
	}
}

func TestEncodingIsBigEndianLengthPrefixed(t *testing.T) {
	data, err := NewCodec(Dynamic).Encode(stats.StatRecord{MatchID: "ab", PlayerCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 2, 'a', 'b'}
	for i, b := range want {
		if data[i] != b {
			t.Fatalf("prefix = % x, want % x", data[:len(want)], want)
		}
	}
	// matchId(6) + gameName(4) + winner(4) → playerCount
	if pc := binary.BigEndian.Uint32(data[14:18]); pc != 3 {
		t.Errorf("playerCount bytes decode to %d", pc)
	}
}

func TestEveryStrictPrefixIsMalformed(t *testing.T) {
	codec := NewCodec(Dynamic)
	for name, rec := range sampleRecords() {
		data, err := codec.Encode(rec)
		if err != nil {
			t.Fatal(err)
		}
		for n := 0; n < len(data); n++ {
			got, err := codec.Decode(data[:n])
			if !errors.Is(err, ErrMalformedMessage) {
				t.Fatalf("%s: prefix %d/%d err = %v, want ErrMalformedMessage", name, n, len(data), err)
			}
			if got.MatchID != "" || got.Players != nil {
				t.Fatalf("%s: prefix %d returned partial record %v", name, n, got)
			}
		}
	}
}

func TestNegativeCountsAreMalformed(t *testing.T) {
	w := &writer{}
	w.string("m")
	w.string("g")
	w.string("w")
	w.int32(1)
	w.int64(0)
	w.int32(-1)
	if _, err := NewCodec(Dynamic).Decode(w.buf); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("negative entry count err = %v", err)
	}

	w = &writer{}
	w.string("m")
	w.string("g")
	w.string("w")
	w.int32(1)
	w.int64(0)
	w.int32(1)
	w.string("Amy")
	w.string("")
	w.int32(-3)
	if _, err := NewCodec(Dynamic).Decode(w.buf); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("negative field count err = %v", err)
	}

	w = &writer{}
	w.int32(-7)
	if _, err := NewCodec(Dynamic).Decode(w.buf); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("negative string length err = %v", err)
	}
}

func TestRepeatedFieldNameIsMalformed(t *testing.T) {
	w := &writer{}
	w.string("m")
	w.string("g")
	w.string("w")
	w.int32(1)
	w.int64(0)
	w.int32(1)
	w.string("Amy")
	w.string("u1")
	w.int32(2)
	w.string("kills")
	w.int32(1)
	w.string("kills")
	w.int32(9)
	got, err := NewCodec(Dynamic).Decode(w.buf)
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("err = %v, want ErrMalformedMessage", err)
	}
	if got.MatchID != "" || got.Players != nil {
		t.Errorf("partial record %v", got)
	}
}

func TestHugeCountIsRejectedBeforeAllocation(t *testing.T) {
	w := &writer{}
	w.string("m")
	w.string("g")
	w.string("w")
	w.int32(1)
	w.int64(0)
	w.int32(2147483647)
	if _, err := NewCodec(Dynamic).Decode(w.buf); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("err = %v, want ErrMalformedMessage", err)
	}
}

func TestTrailingBytesAreMalformed(t *testing.T) {
	data, err := NewCodec(Dynamic).Encode(sampleRecords()["zero players"])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewCodec(Dynamic).Decode(append(data, 0)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("err = %v, want ErrMalformedMessage", err)
	}
}

func TestLegacyFormat(t *testing.T) {
	rec := stats.StatRecord{
		MatchID: "m-9", GameName: "Duels", Winner: "Eve", PlayerCount: 2, Timestamp: 42,
		Players: []stats.PlayerStatRecord{
			{PlayerName: "Eve", PlayerID: "u5", Fields: stats.FieldsOf("kills", 3, "deaths", 1, "assists", 0, "score", 30)},
			{PlayerName: "Fay", PlayerID: "u6", Fields: stats.FieldsOf("score", 7, "beds", 1)},
		},
	}
	codec := NewCodec(Legacy)
	data, err := codec.Encode(rec)
	if err != nil {
		t.Fatal(err)
	}
	got, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Players[0].Equal(rec.Players[0]) {
		t.Errorf("legacy player 0 = %v", got.Players[0].Fields.Keys())
	}
	want := stats.FieldsOf("kills", 0, "deaths", 0, "assists", 0, "score", 7)
	if !got.Players[1].Fields.Equal(want) {
		t.Errorf("legacy player 1 fields = %v", got.Players[1].Fields.Keys())
	}

	// A legacy buffer read by a dynamic decoder must not be silently accepted
	// as the same record.
	if other, err := NewCodec(Dynamic).Decode(data); err == nil && other.Equal(got) {
		t.Error("dynamic decoder accepted legacy bytes as an identical record")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": Dynamic, "Dynamic": Dynamic, " legacy ": Legacy} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("v3"); err == nil {
		t.Error("ParseFormat(v3) should fail")
	}
}
