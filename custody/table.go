// Package custody implements the custody/ACS engine (spec.md §4.4): a
// table mapping monotonically-assigned custody IDs to outstanding bundle
// references, aggregate-custody-signal generation with fill coalescing,
// and a timeout-driven re-forward path. The persistent bundle store is
// an external collaborator (spec.md §1); this package only holds the
// reference a caller gives it, it never reads or writes bundle bytes.
package custody

import (
	"sync"
	"time"

	"github.com/hdtn-go/bpcore/clog"
	"github.com/hdtn-go/bpcore/fragset"
)

// obligation is one outstanding custody acceptance.
type obligation[T any] struct {
	ref      T
	deadline time.Time
}

// Table tracks outstanding custody obligations for bundle references of
// type T (typically a bundle UUID or storage key; the bundle bytes
// themselves live in the external storage collaborator). It is safe for
// concurrent use: acceptance happens on ingress, discharge on ACS
// arrival, expiry on a timer, potentially from different goroutines.
type Table[T any] struct {
	mu          sync.Mutex
	log         clog.Clog
	nextID      uint64
	obligations map[uint64]obligation[T]
}

// NewTable returns an empty custody table. log may be the zero Clog
// (clog.Nop()) if the caller does not want custody events logged.
func NewTable[T any](log clog.Clog) *Table[T] {
	return &Table[T]{
		log:         log,
		obligations: make(map[uint64]obligation[T]),
	}
}

// Accept allocates the next custody ID, records ref as outstanding until
// timeout elapses, and returns the ID — the caller attaches it to a CTEB
// on the outgoing bundle.
func (t *Table[T]) Accept(ref T, timeout time.Duration) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.obligations[id] = obligation[T]{ref: ref, deadline: time.Now().Add(timeout)}
	t.log.Debug("custody accepted: id=%d timeout=%s", id, timeout)
	return id
}

// Outstanding reports the number of obligations not yet discharged or
// expired.
func (t *Table[T]) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.obligations)
}

// Discharge removes every obligation whose custody ID is covered by
// fills — the bookkeeping side of consuming an incoming ACS — and
// returns the discharged IDs. Storage may now delete those bundles; this
// package does not do so itself.
func (t *Table[T]) Discharge(fills *fragset.Set) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var discharged []uint64
	for id := range t.obligations {
		if fills.ContainsValue(id) {
			discharged = append(discharged, id)
			delete(t.obligations, id)
		}
	}
	if len(discharged) > 0 {
		t.log.Debug("custody discharged: %d obligation(s)", len(discharged))
	}
	return discharged
}

// Expire looks up id's obligation. If it exists and its deadline has
// passed, the obligation is removed and shouldReforward is true. If it
// exists but has not yet timed out, it is left in place and
// shouldReforward is false. If id is unknown (already discharged or
// expired), the zero value of T is returned with shouldReforward false.
func (t *Table[T]) Expire(id uint64) (ref T, shouldReforward bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ob, ok := t.obligations[id]
	if !ok {
		var zero T
		return zero, false
	}
	if time.Now().Before(ob.deadline) {
		return ob.ref, false
	}
	delete(t.obligations, id)
	t.log.Warn("custody obligation %d expired, reforwarding", id)
	return ob.ref, true
}
