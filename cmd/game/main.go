// Command game runs next to a minigame server. It accumulates scoreboard
// reads for the running match and, on gameend, publishes the match
// statistics to the lobby and sends the players back.
//
// Usage:
//
//	matchstats-game
//	SERVICE_NAME=BedWars-3 LOBBY_SERVER=Lobby-2 matchstats-game
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
	"github.com/albapepper/matchstats/internal/game"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load(config.RoleGame)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	codec, err := app.Codec(cfg)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := app.OpenPool(ctx, cfg, config.RoleGame, logger)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	tr, err := app.OpenTransport(cfg, pool, logger)
	if err != nil {
		logger.Error("Failed to open transport", "transport", cfg.Transport, "error", err)
		os.Exit(1)
	}
	defer tr.Close()

	sb := app.Scoreboard(cfg, logger)
	ctl := game.NewController(game.Options{
		Scoreboard:    sb,
		Codec:         codec,
		Publisher:     tr,
		GameName:      cfg.GameName(),
		LobbyServer:   cfg.LobbyServer,
		ProxyService:  cfg.ProxyService,
		TeleportDelay: cfg.TeleportDelay,
		Logger:        logger,
	})
	defer ctl.Close()
	logger.Info("Game statistics controller ready",
		"game", cfg.GameName(),
		"lobby", cfg.LobbyServer,
		"proxy", cfg.ProxyService,
		"scoreboard", sb.Enabled,
		"merge_mode", sb.Policy.String(),
		"wire", codec.Format())

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewGameRouter(ctl, cfg, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting game statistics API", "addr", addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
