// Package handler provides HTTP handlers for the lobby and game surfaces.
// Lobby handlers read stored matches and the live display board; game
// handlers drive the running match.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/matchstats/internal/api/respond"
	"github.com/albapepper/matchstats/internal/display"
	"github.com/albapepper/matchstats/internal/lobby"
	"github.com/albapepper/matchstats/internal/render"
	"github.com/albapepper/matchstats/internal/stats"
	"github.com/albapepper/matchstats/internal/store"
)

// matchTTL is how long clients may cache a stored match.
const matchTTL = 24 * time.Hour

// Matches is the read side of the statistics store the lobby needs.
type Matches interface {
	Get(ctx context.Context, id stats.MatchID) (stats.StatRecord, error)
	Recent(ctx context.Context, limit int) ([]stats.StatRecord, error)
	Ping(ctx context.Context) error
}

// Lobby holds shared dependencies for lobby endpoints.
type Lobby struct {
	service  string
	matches  Matches
	board    *display.Board
	receiver *lobby.Receiver
	renderer *render.Renderer
}

// NewLobby creates lobby handlers. renderer formats /lines responses.
func NewLobby(service string, matches Matches, board *display.Board, receiver *lobby.Receiver, renderer *render.Renderer) *Lobby {
	return &Lobby{service: service, matches: matches, board: board, receiver: receiver, renderer: renderer}
}

// Root serves service info at /.
func (h *Lobby) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Match Statistics Lobby",
		"service": h.service,
		"status":  "running",
		"channel": stats.Channel,
		"topic":   stats.Topic,
	})
}

// HealthCheck returns basic health status.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies the statistics store is reachable.
func (h *Lobby) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.matches.Ping(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetDisplay lists what every lobby display currently shows.
func (h *Lobby) GetDisplay(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"displays": h.board.Current(),
		"board":    h.board.Stats(),
	}
	if h.receiver != nil {
		body["received"] = h.receiver.Counters()
		if last, ok := h.receiver.Last(); ok {
			body["last_match"] = last
			body["last_match_at"] = last.Time().UTC().Format(time.RFC3339)
		}
	}
	respond.WriteJSONObject(w, http.StatusOK, body)
}

// ListMatches returns the newest stored matches. ?limit= caps the count.
func (h *Lobby) ListMatches(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", raw)
			return
		}
		limit = n
	}

	recs, err := h.matches.Recent(r.Context(), limit)
	if err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Could not load matches")
		return
	}
	if recs == nil {
		recs = []stats.StatRecord{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"matches": recs,
		"count":   len(recs),
	})
}

// GetMatch returns one stored match.
func (h *Lobby) GetMatch(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadMatch(w, r)
	if !ok {
		return
	}
	respond.WriteImmutable(w, r, rec, matchTTL)
}

// GetMatchLines renders a stored match with the lobby's templates.
func (h *Lobby) GetMatchLines(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadMatch(w, r)
	if !ok {
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"match_id": rec.MatchID,
		"lines":    h.renderer.Render(rec),
		"summary":  render.Summary(rec),
	})
}

func (h *Lobby) loadMatch(w http.ResponseWriter, r *http.Request) (stats.StatRecord, bool) {
	id := chi.URLParam(r, "matchID")
	rec, err := h.matches.Get(r.Context(), stats.MatchID(id))
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteErrorDetail(w, http.StatusNotFound, "MATCH_NOT_FOUND", "No statistics for this match", id)
		return stats.StatRecord{}, false
	}
	if err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Could not load match")
		return stats.StatRecord{}, false
	}
	return rec, true
}
