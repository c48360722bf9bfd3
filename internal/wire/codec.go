// Package wire encodes match-end statistics for the trip from the game process
// to the lobby process.
//
// All integers are big-endian. Strings are an int32 byte length followed by
// that many UTF-8 bytes. The canonical (dynamic) layout is:
//
//	matchId      string
//	gameName     string
//	winner       string
//	playerCount  int32
//	timestamp    int64
//	entryCount   int32
//	entryCount × {
//	    playerName string
//	    playerId   string   // "" when unknown
//	    fieldCount int32
//	    fieldCount × { name string; value int32 }
//	}
//
// The legacy layout shares the header but carries exactly four unnamed int32
// values per player (kills, deaths, assists, score). The two layouts cannot
// be told apart from the bytes alone, so both ends of a deployment must be
// configured with the same Format.
package wire

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/albapepper/matchstats/internal/stats"
)

// ErrMalformedMessage is wrapped by every decode failure.
var ErrMalformedMessage = errors.New("malformed statistics message")

// Format selects the per-player layout.
type Format int

const (
	Dynamic Format = iota
	Legacy
)

// LegacyFields are the field names the legacy layout carries, in wire order.
var LegacyFields = []string{"kills", "deaths", "assists", "score"}

func (f Format) String() string {
	switch f {
	case Dynamic:
		return "dynamic"
	case Legacy:
		return "legacy"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat resolves a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "dynamic":
		return Dynamic, nil
	case "legacy":
		return Legacy, nil
	}
	return 0, fmt.Errorf("unknown wire format %q (want dynamic or legacy)", name)
}

// Codec converts between StatRecord and bytes in one Format.
type Codec struct {
	format Format
}

// NewCodec returns a codec for the given format.
func NewCodec(f Format) Codec {
	return Codec{format: f}
}

// Format returns the codec's layout.
func (c Codec) Format() Format { return c.format }

// Encode serializes r. It fails only when a value does not fit its wire type.
func (c Codec) Encode(r stats.StatRecord) ([]byte, error) {
	if r.PlayerCount > math.MaxInt32 || r.PlayerCount < math.MinInt32 {
		return nil, fmt.Errorf("encode: player count %d out of int32 range", r.PlayerCount)
	}
	if len(r.Players) > math.MaxInt32 {
		return nil, fmt.Errorf("encode: too many player entries (%d)", len(r.Players))
	}

	w := &writer{}
	w.string(string(r.MatchID))
	w.string(r.GameName)
	w.string(r.Winner)
	w.int32(int32(r.PlayerCount))
	w.int64(r.Timestamp)
	w.int32(int32(len(r.Players)))
	for _, p := range r.Players {
		w.string(p.PlayerName)
		w.string(p.PlayerID)
		switch c.format {
		case Legacy:
			for _, name := range LegacyFields {
				v, _ := p.Fields.Get(name)
				w.int32(v)
			}
		default:
			w.int32(int32(p.Fields.Len()))
			for name, v := range p.Fields.All() {
				w.string(name)
				w.int32(v)
			}
		}
	}
	if w.err != nil {
		return nil, fmt.Errorf("encode: %w", w.err)
	}
	return w.buf, nil
}

// Decode parses a complete message. Any structural problem (truncation,
// negative counts, a field name repeated within one player, trailing bytes) yields an error wrapping
// ErrMalformedMessage and a zero record.
func (c Codec) Decode(data []byte) (stats.StatRecord, error) {
	r := &reader{buf: data}
	var rec stats.StatRecord
	rec.MatchID = stats.MatchID(r.string("matchId"))
	rec.GameName = r.string("gameName")
	rec.Winner = r.string("winner")
	rec.PlayerCount = int(r.int32("playerCount"))
	rec.Timestamp = r.int64("timestamp")

	// Smallest possible entry: two empty strings plus one int32.
	minEntry := 4 + 4 + 4
	if c.format == Legacy {
		minEntry = 4 + 4 + 4*len(LegacyFields)
	}
	entries := r.count("entryCount", minEntry)
	if r.err == nil {
		rec.Players = make([]stats.PlayerStatRecord, 0, entries)
	}
	for i := 0; i < entries && r.err == nil; i++ {
		p := stats.PlayerStatRecord{
			PlayerName: r.string("playerName"),
			PlayerID:   r.string("playerId"),
		}
		switch c.format {
		case Legacy:
			for _, name := range LegacyFields {
				v := r.int32(name)
				p.Fields.Set(name, v)
			}
		default:
			n := r.count("fieldCount", 4+4)
			for j := 0; j < n && r.err == nil; j++ {
				name := r.string("fieldName")
				v := r.int32("fieldValue")
				if _, dup := p.Fields.Get(name); dup && r.err == nil {
					r.fail("duplicate fieldName "+strconv.Quote(name), len(name))
					break
				}
				p.Fields.Set(name, v)
			}
		}
		rec.Players = append(rec.Players, p)
	}

	if r.err == nil && r.off != len(r.buf) {
		r.fail("trailing data", len(r.buf)-r.off)
	}
	if r.err != nil {
		return stats.StatRecord{}, r.err
	}
	return rec, nil
}
