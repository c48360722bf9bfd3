// Package store persists finalized match statistics. Player order and
// per-player field order are kept through explicit position/ordinal columns.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/albapepper/matchstats/internal/stats"
)

var (
	// ErrStorage is wrapped by every I/O failure.
	ErrStorage = errors.New("statistics storage failure")
	// ErrNotFound is returned by Get for an unknown match id.
	ErrNotFound = errors.New("match not found")
)

// Sink is the write side the lobby receiver needs.
type Sink interface {
	Save(ctx context.Context, rec stats.StatRecord) error
}

// Store is a complete statistics repository.
type Store interface {
	Sink
	Get(ctx context.Context, id stats.MatchID) (stats.StatRecord, error)
	Recent(ctx context.Context, limit int) ([]stats.StatRecord, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// Default and maximum page size for Recent.
const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return min(limit, MaxRecentLimit)
}

// schema is portable between Postgres and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS match_statistics (
		match_id     TEXT PRIMARY KEY,
		game_name    TEXT NOT NULL,
		winner       TEXT NOT NULL,
		player_count INTEGER NOT NULL,
		ended_at     BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_statistics_ended_at ON match_statistics (ended_at)`,
	`CREATE TABLE IF NOT EXISTS match_player_statistics (
		match_id    TEXT NOT NULL,
		position    INTEGER NOT NULL,
		player_name TEXT NOT NULL,
		player_id   TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (match_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS match_player_fields (
		match_id    TEXT NOT NULL,
		position    INTEGER NOT NULL,
		ordinal     INTEGER NOT NULL,
		field_name  TEXT NOT NULL,
		field_value INTEGER NOT NULL,
		PRIMARY KEY (match_id, position, ordinal)
	)`,
}

// playerRow and fieldRow are the scanned child rows of one match, already in
// position/ordinal order.
type playerRow struct {
	position int
	name     string
	id       string
}

type fieldRow struct {
	position int
	name     string
	value    int32
}

func assemble(rec *stats.StatRecord, players []playerRow, fields []fieldRow) {
	byPos := make(map[int]int, len(players))
	rec.Players = make([]stats.PlayerStatRecord, 0, len(players))
	for _, p := range players {
		byPos[p.position] = len(rec.Players)
		rec.Players = append(rec.Players, stats.PlayerStatRecord{PlayerName: p.name, PlayerID: p.id})
	}
	for _, f := range fields {
		if i, ok := byPos[f.position]; ok {
			rec.Players[i].Fields.Set(f.name, f.value)
		}
	}
}
