// Package app builds the shared runtime pieces (database pool, transport,
// statistics store, codec, scoreboard settings) from a loaded Config, so the
// binaries under cmd/ only wire them together.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/albapepper/matchstats/internal/config"
	"github.com/albapepper/matchstats/internal/db"
	"github.com/albapepper/matchstats/internal/scoreboard"
	"github.com/albapepper/matchstats/internal/store"
	"github.com/albapepper/matchstats/internal/transport"
	"github.com/albapepper/matchstats/internal/wire"
)

// OpenPool connects to Postgres when the role needs it and returns nil
// otherwise.
func OpenPool(ctx context.Context, cfg *config.Config, role config.Role, logger *slog.Logger) (*db.Pool, error) {
	if !cfg.NeedsDatabase(role) {
		return nil, nil
	}
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.HealthCheck(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("health check: %w", err)
	}
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)
	return pool, nil
}

// OpenTransport returns the configured channel transport. pool is required
// for the postgres transport.
func OpenTransport(cfg *config.Config, pool *db.Pool, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportPostgres:
		if pool == nil {
			return nil, fmt.Errorf("%w: postgres transport without a database pool", config.ErrConfiguration)
		}
		return transport.NewPGNotify(pool, cfg.DatabaseURL, cfg.ServiceName, logger), nil
	case config.TransportWebsocket:
		c, err := transport.NewWebsocketClient(cfg.BrokerURL, cfg.ServiceName, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: BROKER_URL: %v", config.ErrConfiguration, err)
		}
		return c, nil
	case config.TransportMemory:
		logger.Warn("Using in-process transport: messages never leave this process")
		return transport.NewBus().Endpoint(cfg.ServiceName), nil
	}
	return nil, fmt.Errorf("%w: unknown transport %q", config.ErrConfiguration, cfg.Transport)
}

// OpenStore returns the configured statistics store.
func OpenStore(ctx context.Context, cfg *config.Config, pool *db.Pool) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		if pool == nil {
			return nil, fmt.Errorf("%w: postgres store without a database pool", config.ErrConfiguration)
		}
		return store.NewPostgres(pool.Pool), nil
	case config.StoreSQLite:
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrConfiguration, cfg.StoreDriver)
}

// Codec returns the configured wire codec.
func Codec(cfg *config.Config) (wire.Codec, error) {
	f, err := wire.ParseFormat(cfg.WireFormat)
	if err != nil {
		return wire.Codec{}, fmt.Errorf("%w: WIRE_FORMAT: %v", config.ErrConfiguration, err)
	}
	return wire.NewCodec(f), nil
}

// Scoreboard resolves the scoreboard settings. An unknown merge mode falls
// back to MAX and a broken field list to no overrides; both are logged and
// never fatal.
func Scoreboard(cfg *config.Config, logger *slog.Logger) scoreboard.Config {
	sb := scoreboard.Config{Enabled: cfg.ScoreboardEnabled, Policy: scoreboard.Max}
	if p, err := scoreboard.ParsePolicy(cfg.ScoreboardMergeMode); err != nil {
		logger.Warn("Invalid SCOREBOARD_MERGE_MODE, using MAX", "value", cfg.ScoreboardMergeMode, "error", err)
	} else {
		sb.Policy = p
	}
	if cfg.ScoreboardFieldModes != "" {
		overrides, err := scoreboard.ParseOverrides(cfg.ScoreboardFieldModes)
		if err != nil {
			logger.Warn("Invalid SCOREBOARD_FIELD_MODES, ignoring", "value", cfg.ScoreboardFieldModes, "error", err)
		} else {
			sb.Overrides = overrides
		}
	}
	return sb
}
