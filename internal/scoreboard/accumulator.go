// Package scoreboard accumulates per-player scoreboard values observed during a
// match and turns them into the player records attached to the match-end
// statistics.
//
// An Accumulator is single-writer: one match controller owns it and calls it
// from one goroutine at a time. It is not safe for concurrent use.
package scoreboard

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/albapepper/matchstats/internal/stats"
)

// ErrMatchInProgress is returned by Configure when state has already been
// recorded for the current match.
var ErrMatchInProgress = errors.New("scoreboard: cannot reconfigure while a match has data")

// Config controls accumulation.
type Config struct {
	Policy    Policy
	Enabled   bool
	Overrides map[string]Policy // per-field policy, takes precedence over Policy
}

// Sample is one observed field value. Value is the raw scoreboard text; it
// is parsed as a base-10 int32 and the sample is skipped if that fails.
type Sample struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Int returns a Sample for an already numeric value.
func Int(key string, v int) Sample {
	return Sample{Key: key, Value: strconv.Itoa(v)}
}

// Observation is one player's line in a scoreboard read.
type Observation struct {
	PlayerName string   `json:"player_name"`
	PlayerID   string   `json:"player_id"`
	Fields     []Sample `json:"fields"`
}

type playerState struct {
	name   string
	id     string
	keys   []string
	values map[string]int64
}

// Accumulator merges repeated scoreboard snapshots into one set of fields per
// player.
type Accumulator struct {
	cfg     Config
	order   []string
	players map[string]*playerState
}

// New returns an empty accumulator with the given configuration.
func New(cfg Config) *Accumulator {
	a := &Accumulator{}
	a.cfg = copyConfig(cfg)
	a.Clear()
	return a
}

// Configure replaces the configuration. It fails with ErrMatchInProgress if
// anything was recorded since the last Clear; the caller should apply it at
// the next match boundary instead.
func (a *Accumulator) Configure(cfg Config) error {
	if a.HasData() {
		return ErrMatchInProgress
	}
	a.cfg = copyConfig(cfg)
	return nil
}

// Enabled reports whether accumulation is turned on.
func (a *Accumulator) Enabled() bool { return a.cfg.Enabled }

// Policy returns the default merge policy.
func (a *Accumulator) Policy() Policy { return a.cfg.Policy }

// Snapshot merges one scoreboard read and returns the number of players it
// contained. Observations without a player name and samples with an empty
// key or a non-integer value are skipped individually.
func (a *Accumulator) Snapshot(observations []Observation) int {
	if !a.cfg.Enabled {
		return 0
	}
	observed := 0
	for _, obs := range observations {
		name := strings.TrimSpace(obs.PlayerName)
		if name == "" {
			continue
		}
		observed++
		ps := a.player(name, obs.PlayerID)
		for _, s := range obs.Fields {
			if s.Key == "" {
				continue
			}
			v, err := strconv.ParseInt(strings.TrimSpace(s.Value), 10, 32)
			if err != nil {
				continue
			}
			a.record(ps, s.Key, v)
		}
	}
	return observed
}

func (a *Accumulator) player(name, id string) *playerState {
	ps, ok := a.players[name]
	if !ok {
		ps = &playerState{name: name, values: make(map[string]int64)}
		a.players[name] = ps
		a.order = append(a.order, name)
	}
	if ps.id == "" {
		ps.id = id
	}
	return ps
}

func (a *Accumulator) record(ps *playerState, key string, v int64) {
	old, seen := ps.values[key]
	if !seen {
		ps.keys = append(ps.keys, key)
		ps.values[key] = v
		return
	}
	ps.values[key] = a.policyFor(key).merge(old, v)
}

func (a *Accumulator) policyFor(key string) Policy {
	if p, ok := a.cfg.Overrides[key]; ok {
		return p
	}
	return a.cfg.Policy
}

// HasData reports whether at least one (player, field) value is recorded.
func (a *Accumulator) HasData() bool {
	if !a.cfg.Enabled {
		return false
	}
	for _, ps := range a.players {
		if len(ps.keys) > 0 {
			return true
		}
	}
	return false
}

// PlayerCount returns the number of distinct players seen since the last
// Clear.
func (a *Accumulator) PlayerCount() int {
	if !a.cfg.Enabled {
		return 0
	}
	return len(a.order)
}

// Names returns every player seen since the last Clear, in first-seen order,
// including players that never produced a valid field.
func (a *Accumulator) Names() []string {
	if !a.cfg.Enabled {
		return nil
	}
	return append([]string(nil), a.order...)
}

// BuildStatistics returns the accumulated state as player records in
// first-seen player order with first-seen field order. Players that never
// produced a valid field are omitted. State is left untouched.
func (a *Accumulator) BuildStatistics() []stats.PlayerStatRecord {
	if !a.cfg.Enabled {
		return []stats.PlayerStatRecord{}
	}
	out := make([]stats.PlayerStatRecord, 0, len(a.order))
	for _, name := range a.order {
		ps := a.players[name]
		if len(ps.keys) == 0 {
			continue
		}
		rec := stats.PlayerStatRecord{PlayerName: ps.name, PlayerID: ps.id}
		for _, k := range ps.keys {
			rec.Fields.Set(k, clamp32(ps.values[k]))
		}
		out = append(out, rec)
	}
	return out
}

// Clear drops all accumulated state.
func (a *Accumulator) Clear() {
	a.order = nil
	a.players = make(map[string]*playerState)
}

func clamp32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

func copyConfig(cfg Config) Config {
	overrides := make(map[string]Policy, len(cfg.Overrides))
	for k, v := range cfg.Overrides {
		overrides[k] = v
	}
	cfg.Overrides = overrides
	return cfg
}
