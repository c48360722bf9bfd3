// Package game runs the game-server side of match-end statistics: it owns the
// scoreboard accumulator for the running match, turns a gameend command into
// a StatRecord, publishes it to the lobby and sends players back afterwards.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/matchstats/internal/scoreboard"
	"github.com/albapepper/matchstats/internal/stats"
	"github.com/albapepper/matchstats/internal/transport"
	"github.com/albapepper/matchstats/internal/wire"
)

// Proxy command channel used for teleports.
const (
	CommandChannel = "service_command"
	CommandTopic   = "run"
)

// Where the statistics came from.
const (
	SourceManual     = "manual"
	SourceScoreboard = "scoreboard"
	SourceNone       = "none"
)

// Options wires a Controller.
type Options struct {
	Scoreboard    scoreboard.Config
	Codec         wire.Codec
	Publisher     transport.Publisher
	GameName      string
	LobbyServer   string
	ProxyService  string
	TeleportDelay time.Duration
	Logger        *slog.Logger
}

// Request ends a match. Final, when present, is merged into the scoreboard
// before it is read.
type Request struct {
	Args  []string                 `json:"args"`
	Final []scoreboard.Observation `json:"final,omitempty"`
}

// Result describes one EndGame call.
type Result struct {
	MatchID      stats.MatchID            `json:"match_id"`
	GameName     string                   `json:"game_name"`
	Winner       string                   `json:"winner"`
	PlayerCount  int                      `json:"player_count"`
	Entries      int                      `json:"entries"`
	Players      []stats.PlayerStatRecord `json:"players"`
	Source       string                   `json:"source"`
	Warnings     []string                 `json:"warnings,omitempty"`
	Published    bool                     `json:"published"`
	PublishError string                   `json:"publish_error,omitempty"`
	Teleporting  int                      `json:"teleporting"`
}

// ScoreboardState is a read-only view of the running match.
type ScoreboardState struct {
	Enabled bool                     `json:"enabled"`
	Policy  string                   `json:"policy"`
	Players int                      `json:"players"`
	Entries []stats.PlayerStatRecord `json:"entries"`
}

// Controller serializes access to the match state; it is safe for
// concurrent use.
type Controller struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	acc *scoreboard.Accumulator

	tmu     sync.Mutex
	timers  map[*time.Timer]struct{}
	running sync.WaitGroup
	closed  bool
}

// NewController creates a controller with an empty scoreboard.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GameName == "" {
		opts.GameName = "Unknown"
	}
	return &Controller{
		opts:   opts,
		logger: logger,
		now:    time.Now,
		acc:    scoreboard.New(opts.Scoreboard),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Snapshot merges one scoreboard read.
func (c *Controller) Snapshot(obs []scoreboard.Observation) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc.Snapshot(obs)
}

// Peek returns the accumulated state without clearing it.
func (c *Controller) Peek() ScoreboardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ScoreboardState{
		Enabled: c.acc.Enabled(),
		Policy:  c.acc.Policy().String(),
		Players: c.acc.PlayerCount(),
		Entries: c.acc.BuildStatistics(),
	}
}

// Reset discards the running match state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acc.Clear()
}

// Configure changes scoreboard settings. It fails with
// scoreboard.ErrMatchInProgress while the current match has data.
func (c *Controller) Configure(cfg scoreboard.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc.Configure(cfg)
}

// EndGame finishes the match. Manual player tokens take precedence; without
// them the scoreboard state is attached when there is any. The scoreboard is
// cleared either way. A publish failure is reported in the Result, and the
// teleport is scheduled regardless. The only error is a missing winner.
func (c *Controller) EndGame(ctx context.Context, req Request) (Result, error) {
	args, err := ParseArgs(req.Args)
	if err != nil {
		return Result{}, err
	}
	for _, w := range args.Warnings {
		c.logger.Warn(w)
	}

	c.mu.Lock()
	if len(req.Final) > 0 {
		c.acc.Snapshot(req.Final)
	}
	players, source := args.Players, SourceManual
	if len(players) == 0 {
		source = SourceNone
		if c.acc.HasData() {
			players, source = c.acc.BuildStatistics(), SourceScoreboard
			c.logger.Info("Auto-attached scoreboard data",
				"players", len(players), "mode", c.acc.Policy().String())
		}
	}
	tracked := c.acc.PlayerCount()
	roster := mergeNames(c.acc.Names(), players)
	c.acc.Clear()
	c.mu.Unlock()

	playerCount := args.PlayerCount
	if playerCount < 0 {
		playerCount = tracked
		if playerCount == 0 {
			playerCount = len(players)
		}
	}

	rec := stats.NewRecord(stats.NewMatchID(), c.opts.GameName, args.Winner, playerCount, c.now(), players)
	res := Result{
		MatchID:     rec.MatchID,
		GameName:    rec.GameName,
		Winner:      rec.Winner,
		PlayerCount: rec.PlayerCount,
		Entries:     len(rec.Players),
		Players:     rec.Players,
		Source:      source,
		Warnings:    args.Warnings,
	}
	c.logger.Info("Ending game", "winner", rec.Winner, "players", rec.PlayerCount,
		"entries", len(rec.Players), "source", source)

	if err := c.publish(ctx, rec); err != nil {
		res.PublishError = err.Error()
		c.logger.Error("Failed to send statistics", "match_id", rec.MatchID, "error", err)
	} else {
		res.Published = true
		c.logger.Info("Statistics sent", "record", rec.String(), "lobby", c.opts.LobbyServer)
	}

	res.Teleporting = c.scheduleTeleport(roster)
	return res, nil
}

func (c *Controller) publish(ctx context.Context, rec stats.StatRecord) error {
	if c.opts.Publisher == nil {
		return fmt.Errorf("%w: no transport configured", transport.ErrTransport)
	}
	payload, err := c.opts.Codec.Encode(rec)
	if err != nil {
		return err
	}
	return c.opts.Publisher.Publish(ctx, transport.Message{
		Channel: stats.Channel,
		Topic:   stats.Topic,
		Target:  c.opts.LobbyServer,
		Payload: payload,
	})
}

// mergeNames returns names followed by any record player not already in it.
func mergeNames(names []string, players []stats.PlayerStatRecord) []string {
	seen := make(map[string]bool, len(names)+len(players))
	out := make([]string, 0, len(names)+len(players))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, p := range players {
		if !seen[p.PlayerName] {
			seen[p.PlayerName] = true
			out = append(out, p.PlayerName)
		}
	}
	return out
}
