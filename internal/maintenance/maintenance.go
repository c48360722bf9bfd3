// Package maintenance runs periodic background tasks on the lobby as Go
// tickers: retention cleanup of stored matches and eviction of expired
// display entries.
package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes stored matches older than a cutoff.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Evictor drops expired display entries.
type Evictor interface {
	Evict() int
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	RetentionInterval time.Duration // how often to purge
	Retention         time.Duration // age past which matches are purged
	EvictInterval     time.Duration // display board eviction
}

// DefaultConfig returns sensible production defaults for the given
// retention in days. Zero days disables the purge.
func DefaultConfig(retentionDays int) Config {
	cfg := Config{
		RetentionInterval: 6 * time.Hour,
		Retention:         time.Duration(retentionDays) * 24 * time.Hour,
		EvictInterval:     time.Minute,
	}
	if retentionDays <= 0 {
		cfg.RetentionInterval = 0
	}
	return cfg
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`. Either task target may be nil.
func Start(ctx context.Context, purger Purger, evictor Evictor, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"retention", cfg.Retention,
		"retention_interval", cfg.RetentionInterval,
		"evict_interval", cfg.EvictInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if purger != nil && cfg.RetentionInterval > 0 && cfg.Retention > 0 {
		// One pass at startup so a lobby that restarts often still purges.
		PurgeExpired(ctx, purger, cfg.Retention, logger)
		t := time.NewTicker(cfg.RetentionInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { PurgeExpired(ctx, purger, cfg.Retention, logger) })
	}

	if evictor != nil && cfg.EvictInterval > 0 {
		t := time.NewTicker(cfg.EvictInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { EvictDisplays(evictor, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// PurgeExpired removes matches that ended more than retention ago.
func PurgeExpired(ctx context.Context, p Purger, retention time.Duration, logger *slog.Logger) int64 {
	start := time.Now()
	n, err := p.Purge(ctx, start.Add(-retention))
	if err != nil {
		logger.Warn("Retention: failed to purge old matches", "error", err)
		return 0
	}
	if n > 0 {
		logger.Info("Retention: purged old matches", "count", n,
			"duration", time.Since(start).Round(time.Millisecond))
	}
	return n
}

// EvictDisplays drops expired display entries.
func EvictDisplays(e Evictor, logger *slog.Logger) int {
	n := e.Evict()
	if n > 0 {
		logger.Debug("Display: evicted expired entries", "count", n)
	}
	return n
}
