package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/albapepper/matchstats/internal/api/respond"
	"github.com/albapepper/matchstats/internal/game"
	"github.com/albapepper/matchstats/internal/scoreboard"
)

// maxBody caps request bodies on the game surface.
const maxBody = 1 << 20

// Game holds dependencies for game-server endpoints.
type Game struct {
	ctl *game.Controller
}

// NewGame creates game handlers.
func NewGame(ctl *game.Controller) *Game {
	return &Game{ctl: ctl}
}

// GetScoreboard returns the running match state.
func (h *Game) GetScoreboard(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.ctl.Peek())
}

// PostScoreboard merges one scoreboard read: a JSON array of observations.
func (h *Game) PostScoreboard(w http.ResponseWriter, r *http.Request) {
	var obs []scoreboard.Observation
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&obs); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Expected a JSON array of observations", err.Error())
		return
	}
	n := h.ctl.Snapshot(obs)
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"observed": n,
		"state":    h.ctl.Peek(),
	})
}

// DeleteScoreboard discards the running match state.
func (h *Game) DeleteScoreboard(w http.ResponseWriter, r *http.Request) {
	h.ctl.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// PostGameEnd ends the match: {"args": ["winner", "8", "name:id:kills=1"]}.
func (h *Game) PostGameEnd(w http.ResponseWriter, r *http.Request) {
	var req game.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Expected {\"args\": [...]}", err.Error())
		return
	}
	res, err := h.ctl.EndGame(r.Context(), req)
	if errors.Is(err, game.ErrMissingWinner) {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "MISSING_WINNER", "A winner is required", err.Error())
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "GAME_END_FAILED", err.Error())
		return
	}
	// The match is over even when the lobby could not be reached; the
	// result says so in published/publish_error.
	respond.WriteJSONObject(w, http.StatusOK, res)
}
