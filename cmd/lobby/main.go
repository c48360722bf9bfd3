// Command lobby receives match-end statistics on a lobby server: it listens
// on the statistics channel, stores every match and shows the rendered
// result on the configured lobby displays.
//
// Usage:
//
//	matchstats-lobby
//	SERVICE_NAME=Lobby-2 STORE_DRIVER=sqlite TRANSPORT=websocket matchstats-lobby
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/matchstats/internal/api"
	"github.com/albapepper/matchstats/internal/app"
	"github.com/albapepper/matchstats/internal/config"
	"github.com/albapepper/matchstats/internal/display"
	"github.com/albapepper/matchstats/internal/lobby"
	"github.com/albapepper/matchstats/internal/maintenance"
	"github.com/albapepper/matchstats/internal/render"
	"github.com/albapepper/matchstats/internal/stats"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load(config.RoleLobby)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	// A broken display file disables custom layout only.
	layout, err := config.LoadDisplay(cfg.DisplayConfigFile)
	if err != nil {
		logger.Warn("Display configuration ignored, using defaults", "file", cfg.DisplayConfigFile, "error", err)
	}
	if len(layout.Locations) == 0 {
		logger.Warn("No display locations configured; statistics are stored but not shown")
	}

	codec, err := app.Codec(cfg)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := app.OpenPool(ctx, cfg, config.RoleLobby, logger)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	st, err := app.OpenStore(ctx, cfg, pool)
	if err != nil {
		logger.Error("Failed to open statistics store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		logger.Error("Failed to migrate statistics store", "error", err)
		os.Exit(1)
	}
	logger.Info("Statistics store ready", "driver", cfg.StoreDriver)

	tr, err := app.OpenTransport(cfg, pool, logger)
	if err != nil {
		logger.Error("Failed to open transport", "transport", cfg.Transport, "error", err)
		os.Exit(1)
	}
	defer tr.Close()

	// Persistence queue drains on shutdown, after the listener stops.
	queue := lobby.NewQueue(st, cfg.PersistQueueSize, logger)
	queue.Start(ctx, cfg.PersistWorkers)
	defer queue.Close()

	board := display.NewBoard()
	renderer := render.New(layout.Templates)
	receiver := lobby.NewReceiver(lobby.Options{
		Codec:           codec,
		Renderer:        renderer,
		Persist:         queue,
		Dedupe:          lobby.NewDedupe(cfg.DedupeCapacity),
		Display:         board,
		Locations:       layout.Locations,
		DurationSeconds: layout.DurationSeconds,
		Logger:          logger,
	})

	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		if err := tr.Listen(ctx, stats.Channel, receiver); err != nil {
			logger.Error("Statistics listener stopped", "error", err)
		}
	}()
	logger.Info("Listening for game statistics",
		"channel", stats.Channel, "service", cfg.ServiceName, "transport", cfg.Transport, "wire", codec.Format())

	// Retention purge and display eviction
	go maintenance.Start(ctx, st, board, maintenance.DefaultConfig(cfg.RetentionDays), logger)

	router := api.NewLobbyRouter(api.LobbyDeps{
		Matches:  st,
		Board:    board,
		Receiver: receiver,
		Logger:   logger,
	}, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting lobby statistics API",
			"addr", addr,
			"environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	<-listenDone
	logger.Info("Server stopped", "pending_saves", queue.Pending())
}
