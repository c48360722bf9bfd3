// Package db opens the Postgres pool shared by the statistics store and the
// pg_notify publisher. Connections are tagged with the service name so a
// lobby or game server can be told apart in pg_stat_activity.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchstats/internal/config"
)

// Pool is the service's connection pool. It also satisfies the publisher
// side of transport.PGNotify.
type Pool struct {
	*pgxpool.Pool
}

// stmtHealthCheck is the only statement prepared per connection. Statistics
// queries are not prepared: connections open before the store migrates.
const stmtHealthCheck = "health_check"

// New opens the pool described by cfg and pings it once.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	if cfg.ServiceName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = "matchstats:" + cfg.ServiceName
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Prepare(ctx, stmtHealthCheck, "SELECT 1"); err != nil {
			return fmt.Errorf("prepare %q: %w", stmtHealthCheck, err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// HealthCheck runs the prepared health query.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, stmtHealthCheck).Scan(&n)
}
