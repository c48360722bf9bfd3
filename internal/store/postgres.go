package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchstats/internal/stats"
)

const (
	pgMatchByID = `SELECT game_name, winner, player_count, ended_at
		FROM match_statistics WHERE match_id = $1`
	pgRecentMatches = `SELECT match_id, game_name, winner, player_count, ended_at
		FROM match_statistics ORDER BY ended_at DESC, match_id LIMIT $1`
	pgMatchPlayers = `SELECT position, player_name, player_id
		FROM match_player_statistics WHERE match_id = $1 ORDER BY position`
	pgMatchFields = `SELECT position, field_name, field_value
		FROM match_player_fields WHERE match_id = $1 ORDER BY position, ordinal`
)

// Postgres stores statistics through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool. The pool stays owned by the caller.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", ErrStorage, err)
		}
	}
	return nil
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStorage, err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (p *Postgres) Close() {}

// Save writes rec in one transaction. A match id that already exists is
// left untouched.
func (p *Postgres) Save(ctx context.Context, rec stats.StatRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO match_statistics (match_id, game_name, winner, player_count, ended_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id) DO NOTHING`,
		string(rec.MatchID), rec.GameName, rec.Winner, rec.PlayerCount, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: insert match %s: %v", ErrStorage, rec.MatchID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for pos, pl := range rec.Players {
		batch.Queue(`
			INSERT INTO match_player_statistics (match_id, position, player_name, player_id)
			VALUES ($1, $2, $3, $4)`,
			string(rec.MatchID), pos, pl.PlayerName, pl.PlayerID)
		ordinal := 0
		for name, v := range pl.Fields.All() {
			batch.Queue(`
				INSERT INTO match_player_fields (match_id, position, ordinal, field_name, field_value)
				VALUES ($1, $2, $3, $4, $5)`,
				string(rec.MatchID), pos, ordinal, name, v)
			ordinal++
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("%w: insert players of %s: %v", ErrStorage, rec.MatchID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrStorage, rec.MatchID, err)
	}
	return nil
}

// Get loads one match.
func (p *Postgres) Get(ctx context.Context, id stats.MatchID) (stats.StatRecord, error) {
	rec := stats.StatRecord{MatchID: id}
	err := p.pool.QueryRow(ctx, pgMatchByID, string(id)).
		Scan(&rec.GameName, &rec.Winner, &rec.PlayerCount, &rec.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats.StatRecord{}, ErrNotFound
	}
	if err != nil {
		return stats.StatRecord{}, fmt.Errorf("%w: get match %s: %v", ErrStorage, id, err)
	}
	if err := p.loadPlayers(ctx, &rec); err != nil {
		return stats.StatRecord{}, err
	}
	return rec, nil
}

// Recent returns the newest matches first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]stats.StatRecord, error) {
	rows, err := p.pool.Query(ctx, pgRecentMatches, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: recent matches: %v", ErrStorage, err)
	}
	defer rows.Close()

	var out []stats.StatRecord
	for rows.Next() {
		var rec stats.StatRecord
		var id string
		if err := rows.Scan(&id, &rec.GameName, &rec.Winner, &rec.PlayerCount, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan match: %v", ErrStorage, err)
		}
		rec.MatchID = stats.MatchID(id)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: recent matches: %v", ErrStorage, err)
	}

	for i := range out {
		if err := p.loadPlayers(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Postgres) loadPlayers(ctx context.Context, rec *stats.StatRecord) error {
	rows, err := p.pool.Query(ctx, pgMatchPlayers, string(rec.MatchID))
	if err != nil {
		return fmt.Errorf("%w: players of %s: %v", ErrStorage, rec.MatchID, err)
	}
	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (playerRow, error) {
		var r playerRow
		err := row.Scan(&r.position, &r.name, &r.id)
		return r, err
	})
	if err != nil {
		return fmt.Errorf("%w: scan players of %s: %v", ErrStorage, rec.MatchID, err)
	}

	rows, err = p.pool.Query(ctx, pgMatchFields, string(rec.MatchID))
	if err != nil {
		return fmt.Errorf("%w: fields of %s: %v", ErrStorage, rec.MatchID, err)
	}
	fields, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (fieldRow, error) {
		var r fieldRow
		err := row.Scan(&r.position, &r.name, &r.value)
		return r, err
	})
	if err != nil {
		return fmt.Errorf("%w: scan fields of %s: %v", ErrStorage, rec.MatchID, err)
	}

	assemble(rec, players, fields)
	return nil
}

// Purge deletes matches that ended before the given time.
func (p *Postgres) Purge(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixMilli()
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin purge: %v", ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`DELETE FROM match_player_fields WHERE match_id IN (SELECT match_id FROM match_statistics WHERE ended_at < $1)`,
		`DELETE FROM match_player_statistics WHERE match_id IN (SELECT match_id FROM match_statistics WHERE ended_at < $1)`,
	} {
		if _, err := tx.Exec(ctx, stmt, cutoff); err != nil {
			return 0, fmt.Errorf("%w: purge: %v", ErrStorage, err)
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM match_statistics WHERE ended_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %v", ErrStorage, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit purge: %v", ErrStorage, err)
	}
	return tag.RowsAffected(), nil
}
