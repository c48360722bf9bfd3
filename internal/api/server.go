package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/albapepper/matchstats/internal/api/handler"
	"github.com/albapepper/matchstats/internal/config"
	"github.com/albapepper/matchstats/internal/display"
	"github.com/albapepper/matchstats/internal/game"
	"github.com/albapepper/matchstats/internal/lobby"
	"github.com/albapepper/matchstats/internal/render"
)

// LobbyDeps are what the lobby router serves from.
type LobbyDeps struct {
	Matches  handler.Matches
	Board    *display.Board
	Receiver *lobby.Receiver
	Renderer *render.Renderer
	Logger   *slog.Logger
}

func newBaseRouter(cfg *config.Config, logger *slog.Logger, methods []string) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   methods,
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"ETag", "X-Request-Id"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}
	return r
}

// NewLobbyRouter serves stored matches and the live display board.
func NewLobbyRouter(deps LobbyDeps, cfg *config.Config) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := newBaseRouter(cfg, logger, []string{http.MethodGet, http.MethodHead, http.MethodOptions})

	// /lines uses the receiver's templates unless a renderer is given.
	renderer := deps.Renderer
	if renderer == nil && deps.Receiver != nil {
		renderer = deps.Receiver.Renderer()
	}
	if renderer == nil {
		renderer = render.New(render.DefaultTemplates())
	}
	h := handler.NewLobby(cfg.ServiceName, deps.Matches, deps.Board, deps.Receiver, renderer)

	// --- Routes ---
	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", handler.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/display", h.GetDisplay)
		r.Get("/matches", h.ListMatches)
		r.Get("/matches/{matchID}", h.GetMatch)
		r.Get("/matches/{matchID}/lines", h.GetMatchLines)
	})

	return r
}

// NewGameRouter serves the running match on a game server.
func NewGameRouter(ctl *game.Controller, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	r := newBaseRouter(cfg, logger, []string{
		http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions,
	})
	h := handler.NewGame(ctl)

	r.Get("/health", handler.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/scoreboard", h.GetScoreboard)
		r.Post("/scoreboard", h.PostScoreboard)
		r.Delete("/scoreboard", h.DeleteScoreboard)
		r.Post("/gameend", h.PostGameEnd)
	})

	return r
}
