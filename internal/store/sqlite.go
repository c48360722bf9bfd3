package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/albapepper/matchstats/internal/stats"
)

// SQLite stores statistics in a local database file, for lobbies running
// without Postgres.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrStorage, pragma, err)
		}
	}
	return &SQLite{db: db}, nil
}

// Migrate creates the schema.
func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", ErrStorage, err)
		}
	}
	return nil
}

// Ping verifies the database is usable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStorage, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() {
	s.db.Close()
}

// Save writes rec in one transaction. A match id that already exists is
// left untouched.
func (s *SQLite) Save(ctx context.Context, rec stats.StatRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO match_statistics (match_id, game_name, winner, player_count, ended_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO NOTHING`,
		string(rec.MatchID), rec.GameName, rec.Winner, rec.PlayerCount, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: insert match %s: %v", ErrStorage, rec.MatchID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for pos, pl := range rec.Players {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO match_player_statistics (match_id, position, player_name, player_id)
			VALUES (?, ?, ?, ?)`,
			string(rec.MatchID), pos, pl.PlayerName, pl.PlayerID); err != nil {
			return fmt.Errorf("%w: insert player %q of %s: %v", ErrStorage, pl.PlayerName, rec.MatchID, err)
		}
		ordinal := 0
		for name, v := range pl.Fields.All() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO match_player_fields (match_id, position, ordinal, field_name, field_value)
				VALUES (?, ?, ?, ?, ?)`,
				string(rec.MatchID), pos, ordinal, name, v); err != nil {
				return fmt.Errorf("%w: insert field %q of %s: %v", ErrStorage, name, rec.MatchID, err)
			}
			ordinal++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrStorage, rec.MatchID, err)
	}
	return nil
}

// Get loads one match.
func (s *SQLite) Get(ctx context.Context, id stats.MatchID) (stats.StatRecord, error) {
	rec := stats.StatRecord{MatchID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT game_name, winner, player_count, ended_at
		FROM match_statistics WHERE match_id = ?`, string(id)).
		Scan(&rec.GameName, &rec.Winner, &rec.PlayerCount, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.StatRecord{}, ErrNotFound
	}
	if err != nil {
		return stats.StatRecord{}, fmt.Errorf("%w: get match %s: %v", ErrStorage, id, err)
	}
	if err := s.loadPlayers(ctx, &rec); err != nil {
		return stats.StatRecord{}, err
	}
	return rec, nil
}

// Recent returns the newest matches first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]stats.StatRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, game_name, winner, player_count, ended_at
		FROM match_statistics ORDER BY ended_at DESC, match_id LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: recent matches: %v", ErrStorage, err)
	}
	var out []stats.StatRecord
	for rows.Next() {
		var rec stats.StatRecord
		var id string
		if err := rows.Scan(&id, &rec.GameName, &rec.Winner, &rec.PlayerCount, &rec.Timestamp); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan match: %v", ErrStorage, err)
		}
		rec.MatchID = stats.MatchID(id)
		out = append(out, rec)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: recent matches: %v", ErrStorage, err)
	}

	// Child rows are loaded after the cursor is closed: the pool holds a
	// single connection.
	for i := range out {
		if err := s.loadPlayers(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLite) loadPlayers(ctx context.Context, rec *stats.StatRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, player_name, player_id
		FROM match_player_statistics WHERE match_id = ? ORDER BY position`, string(rec.MatchID))
	if err != nil {
		return fmt.Errorf("%w: players of %s: %v", ErrStorage, rec.MatchID, err)
	}
	var players []playerRow
	for rows.Next() {
		var r playerRow
		if err := rows.Scan(&r.position, &r.name, &r.id); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scan player of %s: %v", ErrStorage, rec.MatchID, err)
		}
		players = append(players, r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("%w: players of %s: %v", ErrStorage, rec.MatchID, err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT position, field_name, field_value
		FROM match_player_fields WHERE match_id = ? ORDER BY position, ordinal`, string(rec.MatchID))
	if err != nil {
		return fmt.Errorf("%w: fields of %s: %v", ErrStorage, rec.MatchID, err)
	}
	defer rows.Close()
	var fields []fieldRow
	for rows.Next() {
		var r fieldRow
		if err := rows.Scan(&r.position, &r.name, &r.value); err != nil {
			return fmt.Errorf("%w: scan field of %s: %v", ErrStorage, rec.MatchID, err)
		}
		fields = append(fields, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: fields of %s: %v", ErrStorage, rec.MatchID, err)
	}

	assemble(rec, players, fields)
	return nil
}

// Purge deletes matches that ended before the given time.
func (s *SQLite) Purge(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixMilli()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin purge: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM match_player_fields WHERE match_id IN (SELECT match_id FROM match_statistics WHERE ended_at < ?)`,
		`DELETE FROM match_player_statistics WHERE match_id IN (SELECT match_id FROM match_statistics WHERE ended_at < ?)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, cutoff); err != nil {
			return 0, fmt.Errorf("%w: purge: %v", ErrStorage, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM match_statistics WHERE ended_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %v", ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit purge: %v", ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
