package custody

import (
	"sync"

	"github.com/hdtn-go/bpcore/bpv6"
	"github.com/hdtn-go/bpcore/fragset"
)

// ACSGenerator accumulates custody IDs to acknowledge and coalesces them
// into one or more AggregateCustodySignal contents, bounded so no single
// signal's wire encoding grows unbounded (spec.md §4.4).
type ACSGenerator struct {
	mu               sync.Mutex
	succeeded        bool
	reasonCode       uint8
	fills            *fragset.Set
	maxIntervalsPerSignal int
}

// DefaultMaxIntervalsPerSignal bounds the number of fill-set intervals a
// single generated ACS carries before Generate splits the remainder into
// additional signals.
const DefaultMaxIntervalsPerSignal = 64

// NewACSGenerator returns a generator for custody signals of the given
// succeeded/reasonCode pair. maxIntervalsPerSignal <= 0 selects
// DefaultMaxIntervalsPerSignal.
func NewACSGenerator(succeeded bool, reasonCode uint8, maxIntervalsPerSignal int) *ACSGenerator {
	if maxIntervalsPerSignal <= 0 {
		maxIntervalsPerSignal = DefaultMaxIntervalsPerSignal
	}
	return &ACSGenerator{
		succeeded:             succeeded,
		reasonCode:            reasonCode,
		fills:                 fragset.New(),
		maxIntervalsPerSignal: maxIntervalsPerSignal,
	}
}

// AddContiguous inserts [first,last] into the pending fill set and
// returns the number of disjoint intervals in the set afterward, which
// the caller uses to decide whether to flush via Generate.
func (g *ACSGenerator) AddContiguous(first, last uint64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fills.Insert(fragset.Interval{Begin: first, End: last})
	return g.fills.Len()
}

// Add is shorthand for AddContiguous(id, id).
func (g *ACSGenerator) Add(id uint64) int {
	return g.AddContiguous(id, id)
}

// Pending reports the number of disjoint intervals currently queued.
func (g *ACSGenerator) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fills.Len()
}

// Generate drains every pending interval into one or more
// AggregateCustodySignal values, each holding at most
// maxIntervalsPerSignal intervals, and resets the generator to empty.
// Returns nil if nothing is pending.
func (g *ACSGenerator) Generate() []*bpv6.AggregateCustodySignal {
	g.mu.Lock()
	defer g.mu.Unlock()
	intervals := g.fills.Intervals()
	if len(intervals) == 0 {
		return nil
	}
	g.fills = fragset.New()

	var out []*bpv6.AggregateCustodySignal
	for len(intervals) > 0 {
		n := g.maxIntervalsPerSignal
		if n > len(intervals) {
			n = len(intervals)
		}
		chunk := fragset.New()
		for _, iv := range intervals[:n] {
			chunk.Insert(iv)
		}
		out = append(out, &bpv6.AggregateCustodySignal{
			Succeeded:  g.succeeded,
			ReasonCode: g.reasonCode,
			Fills:      chunk,
		})
		intervals = intervals[n:]
	}
	return out
}
