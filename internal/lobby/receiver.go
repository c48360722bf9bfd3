// Package lobby handles match-end statistics arriving at a lobby server:
// decode, drop repeats, persist in the background, render and show.
package lobby

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/albapepper/matchstats/internal/display"
	"github.com/albapepper/matchstats/internal/render"
	"github.com/albapepper/matchstats/internal/stats"
	"github.com/albapepper/matchstats/internal/transport"
	"github.com/albapepper/matchstats/internal/wire"
)

// Persister accepts records for asynchronous storage. *Queue implements it.
type Persister interface {
	Submit(rec stats.StatRecord) bool
}

// Options wires a Receiver. Persist, Dedupe and Display may be nil.
type Options struct {
	Codec           wire.Codec
	Renderer        *render.Renderer
	Persist         Persister
	Dedupe          *Dedupe
	Display         display.Sink
	Locations       []display.Location
	DurationSeconds int
	Logger          *slog.Logger
}

// Counters are the receiver's running totals.
type Counters struct {
	Received   int64 `json:"received"`
	Malformed  int64 `json:"malformed"`
	Duplicates int64 `json:"duplicates"`
	Displayed  int64 `json:"displayed"`
	Queued     int64 `json:"queued"`
	Dropped    int64 `json:"dropped"`
}

// Receiver is the handler registered for stats.Channel.
type Receiver struct {
	opts Options

	received, malformed, duplicates atomic.Int64
	displayed, queued, dropped      atomic.Int64

	mu   sync.RWMutex
	last *stats.StatRecord
}

// NewReceiver builds a receiver. A nil Renderer falls back to the default
// templates.
func NewReceiver(opts Options) *Receiver {
	if opts.Renderer == nil {
		opts.Renderer = render.New(render.DefaultTemplates())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Locations = append([]display.Location(nil), opts.Locations...)
	return &Receiver{opts: opts}
}

// HandleMessage processes one message. Anything other than a game_end on
// the statistics channel is ignored; a payload that does not decode is
// logged and dropped.
func (r *Receiver) HandleMessage(ctx context.Context, msg transport.Message) {
	if msg.Channel != stats.Channel || msg.Topic != stats.Topic {
		return
	}
	r.received.Add(1)
	log := r.opts.Logger

	rec, err := r.opts.Codec.Decode(msg.Payload)
	if err != nil {
		r.malformed.Add(1)
		log.Warn("Dropping malformed statistics message",
			"channel", msg.Channel, "topic", msg.Topic, "bytes", len(msg.Payload), "error", err)
		return
	}
	if r.opts.Dedupe.Seen(rec.MatchID) {
		r.duplicates.Add(1)
		log.Warn("Dropping duplicate statistics message", "match_id", rec.MatchID)
		return
	}

	log.Info("Received game statistics", "record", rec.String())
	r.mu.Lock()
	r.last = &rec
	r.mu.Unlock()

	if r.opts.Persist != nil {
		if r.opts.Persist.Submit(rec) {
			r.queued.Add(1)
		} else {
			r.dropped.Add(1)
		}
	}

	lines := r.opts.Renderer.Render(rec)
	if r.opts.Display != nil {
		r.opts.Display.Show(lines, r.opts.Locations, r.opts.DurationSeconds)
		r.displayed.Add(1)
	}
	log.Info(render.Summary(rec), "match_id", rec.MatchID, "lines", len(lines), "locations", len(r.opts.Locations))
}

// Last returns the most recent accepted record.
func (r *Receiver) Last() (stats.StatRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return stats.StatRecord{}, false
	}
	return *r.last, true
}

// Counters returns a snapshot of the running totals.
func (r *Receiver) Counters() Counters {
	return Counters{
		Received:   r.received.Load(),
		Malformed:  r.malformed.Load(),
		Duplicates: r.duplicates.Load(),
		Displayed:  r.displayed.Load(),
		Queued:     r.queued.Load(),
		Dropped:    r.dropped.Load(),
	}
}

// Renderer returns the renderer in use.
func (r *Receiver) Renderer() *render.Renderer { return r.opts.Renderer }
