// Package display holds the lines currently shown at each lobby display
// location. It is the display sink the lobby receiver feeds rendered match
// statistics into.
package display

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Location is a point in the lobby where a display is placed.
type Location struct {
	World string  `json:"world" yaml:"world"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
}

// Key identifies the location in logs and maps.
func (l Location) Key() string {
	return fmt.Sprintf("%s:%g:%g:%g", l.World, l.X, l.Y, l.Z)
}

// ParseLocation reads "world:x:y:z".
func ParseLocation(s string) (Location, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 || parts[0] == "" {
		return Location{}, fmt.Errorf("location %q: want world:x:y:z", s)
	}
	var coords [3]float64
	for i, p := range parts[1:] {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Location{}, fmt.Errorf("location %q: %w", s, err)
		}
		coords[i] = v
	}
	return Location{World: parts[0], X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

// Sink receives rendered lines for a set of locations. A duration of zero or
// less keeps the lines until the next Show replaces them.
type Sink interface {
	Show(lines []string, locations []Location, durationSeconds int)
}

type entry struct {
	lines     []string
	shownAt   time.Time
	expiresAt time.Time // zero = until replaced
}

func (e entry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// Shown is one live display.
type Shown struct {
	Location  Location   `json:"location"`
	Lines     []string   `json:"lines"`
	ShownAt   time.Time  `json:"shown_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Board is a thread-safe Sink keeping the latest lines per location.
type Board struct {
	mu      sync.RWMutex
	entries map[string]entry
	places  map[string]Location
	now     func() time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		entries: make(map[string]entry),
		places:  make(map[string]Location),
		now:     time.Now,
	}
}

// Show replaces the lines at every location.
func (b *Board) Show(lines []string, locations []Location, durationSeconds int) {
	now := b.now()
	e := entry{lines: append([]string(nil), lines...), shownAt: now}
	if durationSeconds > 0 {
		e.expiresAt = now.Add(time.Duration(durationSeconds) * time.Second)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, loc := range locations {
		k := loc.Key()
		b.entries[k] = e
		b.places[k] = loc
	}
}

// Current returns every live display, sorted by location key.
func (b *Board) Current() []Shown {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := b.now()
	out := make([]Shown, 0, len(b.entries))
	for k, e := range b.entries {
		if !e.live(now) {
			continue
		}
		s := Shown{Location: b.places[k], Lines: append([]string(nil), e.lines...), ShownAt: e.shownAt}
		if !e.expiresAt.IsZero() {
			exp := e.expiresAt
			s.ExpiresAt = &exp
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location.Key() < out[j].Location.Key() })
	return out
}

// Stats returns board statistics.
func (b *Board) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	active := 0
	now := b.now()
	for _, e := range b.entries {
		if e.live(now) {
			active++
		}
	}
	return map[string]interface{}{
		"total_locations":   len(b.entries),
		"active_locations":  active,
		"expired_locations": len(b.entries) - active,
	}
}

// Evict removes expired entries and returns how many were dropped.
func (b *Board) Evict() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	n := 0
	for k, e := range b.entries {
		if !e.live(now) {
			delete(b.entries, k)
			delete(b.places, k)
			n++
		}
	}
	return n
}
