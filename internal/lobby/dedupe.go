package lobby

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/albapepper/matchstats/internal/stats"
)

// falsePositiveRate bounds how often a fresh match is mistaken for a repeat.
const falsePositiveRate = 0.0001

// Dedupe remembers match ids already handled. It is approximate: a small
// fraction of new ids reads as seen, never the other way round.
type Dedupe struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewDedupe sizes the filter for capacity ids. A capacity below one returns
// nil, which disables deduplication.
func NewDedupe(capacity int) *Dedupe {
	if capacity < 1 {
		return nil
	}
	return &Dedupe{filter: bloom.NewWithEstimates(uint(capacity), falsePositiveRate)}
}

// Seen records id and reports whether it had been recorded before.
func (d *Dedupe) Seen(id stats.MatchID) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter.TestAndAddString(string(id))
}
