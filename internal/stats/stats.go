// Package stats holds the match-statistics data model shared by the game and
// lobby processes: one StatRecord per finished match, carrying an ordered list
// of players and, per player, an ordered set of named integer fields.
package stats

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel and topic the match-end message travels on.
const (
	Channel = "minigame_statistics"
	Topic   = "game_end"
)

// MatchID identifies one match. Generated once on the producing side and
// reused as the persistence primary key.
type MatchID string

// NewMatchID returns a fresh random match identifier.
func NewMatchID() MatchID {
	return MatchID(uuid.NewString())
}

func (id MatchID) String() string { return string(id) }

// StatRecord is the finalized statistics of one match.
//
// PlayerCount is informational and may differ from len(Players), e.g. when
// spectators were counted.
type StatRecord struct {
	MatchID     MatchID            `json:"match_id"`
	GameName    string             `json:"game_name"`
	Winner      string             `json:"winner"`
	PlayerCount int                `json:"player_count"`
	Timestamp   int64              `json:"timestamp"` // epoch millis
	Players     []PlayerStatRecord `json:"players"`
}

// PlayerStatRecord is one player's fields within a match. An empty PlayerID
// means the id is unknown.
type PlayerStatRecord struct {
	PlayerName string `json:"player_name"`
	PlayerID   string `json:"player_id"`
	Fields     Fields `json:"fields"`
}

// NewRecord builds a record stamped with the given time. Players are copied.
func NewRecord(id MatchID, gameName, winner string, playerCount int, at time.Time, players []PlayerStatRecord) StatRecord {
	return StatRecord{
		MatchID:     id,
		GameName:    gameName,
		Winner:      winner,
		PlayerCount: playerCount,
		Timestamp:   at.UnixMilli(),
		Players:     clonePlayers(players),
	}
}

// Time returns the record timestamp as a time.Time.
func (r StatRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Equal reports whether two records are identical field for field, including
// player order and per-player field order.
func (r StatRecord) Equal(o StatRecord) bool {
	if r.MatchID != o.MatchID || r.GameName != o.GameName || r.Winner != o.Winner ||
		r.PlayerCount != o.PlayerCount || r.Timestamp != o.Timestamp ||
		len(r.Players) != len(o.Players) {
		return false
	}
	for i := range r.Players {
		if !r.Players[i].Equal(o.Players[i]) {
			return false
		}
	}
	return true
}

// String matches the log format used for received and sent statistics.
func (r StatRecord) String() string {
	return fmt.Sprintf("StatRecord{match=%s game=%q winner=%q players=%d entries=%d ts=%d}",
		r.MatchID, r.GameName, r.Winner, r.PlayerCount, len(r.Players), r.Timestamp)
}

// Equal reports whether two player records have the same identity and the
// same fields in the same order.
func (p PlayerStatRecord) Equal(o PlayerStatRecord) bool {
	return p.PlayerName == o.PlayerName && p.PlayerID == o.PlayerID && p.Fields.Equal(o.Fields)
}

// Clone returns a deep copy.
func (p PlayerStatRecord) Clone() PlayerStatRecord {
	p.Fields = p.Fields.Clone()
	return p
}

func clonePlayers(players []PlayerStatRecord) []PlayerStatRecord {
	if players == nil {
		return nil
	}
	out := make([]PlayerStatRecord, len(players))
	for i, p := range players {
		out[i] = p.Clone()
	}
	return out
}
