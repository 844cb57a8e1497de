// Package fragset implements the interval-set algebra shared by fragment
// sets (reassembly bookkeeping) and aggregate-custody-signal fill sets: an
// ordered set of closed integer intervals [Begin, End] where no two
// intervals overlap or are contiguous — anything that would abut is
// merged into a single interval on insert.
//
// The comparator used to keep the backing slice sorted treats two
// intervals as equal whenever they overlap or abut (see overlapsOrAbuts
// and lowerBound);
// this is what lets Insert find every neighbour a new interval must merge
// with via a single binary search, mirroring the "SimulateSetKeyFind"
// comparator in the reference implementation's std::set<data_fragment_t>.
package fragset

import "sort"

// Interval is a closed range [Begin, End]; Begin <= End always holds for
// any interval stored in a Set.
type Interval struct {
	Begin uint64
	End   uint64
}

// overlapsOrAbuts reports whether a and b should be merged into one
// interval: they overlap, or the end of one is exactly one less than the
// begin of the other.
func overlapsOrAbuts(a, b Interval) bool {
	if a.Begin > b.Begin {
		a, b = b, a
	}
	if a.End >= b.Begin {
		return true // overlap (or a contains b)
	}
	return a.End+1 == b.Begin // abut
}

// Set is a union of closed intervals, kept sorted by Begin with the
// closure invariant: no two stored intervals overlap or abut.
type Set struct {
	items []Interval
}

// New returns an empty Set.
func New() *Set { return &Set{} }

// Intervals returns the set's intervals in ascending order. The returned
// slice is owned by the caller; Set retains its own copy.
func (s *Set) Intervals() []Interval {
	out := make([]Interval, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of disjoint intervals currently stored.
func (s *Set) Len() int { return len(s.items) }

// Empty reports whether the set has no intervals.
func (s *Set) Empty() bool { return len(s.items) == 0 }

// lowerBound returns the index of the first stored interval that is not
// strictly less than k under overlapsOrAbuts (i.e. the first interval
// that might need merging with k, or the insertion point if none does).
func (s *Set) lowerBound(k Interval) int {
	return sort.Search(len(s.items), func(i int) bool {
		it := s.items[i]
		if overlapsOrAbuts(it, k) {
			return true
		}
		return it.Begin >= k.Begin
	})
}

// Insert merges k into the set: every stored interval that overlaps or
// abuts k is absorbed, and the result is a single interval spanning their
// union. Insert is a no-op extension when k is already entirely covered.
func (s *Set) Insert(k Interval) {
	if k.Begin > k.End {
		return
	}
	lo := s.lowerBound(k)
	hi := lo
	merged := k
	for hi < len(s.items) && overlapsOrAbuts(s.items[hi], merged) {
		it := s.items[hi]
		if it.Begin < merged.Begin {
			merged.Begin = it.Begin
		}
		if it.End > merged.End {
			merged.End = it.End
		}
		hi++
	}
	// items[lo:hi] are all absorbed into merged; splice it in.
	s.items = append(s.items[:lo], append([]Interval{merged}, s.items[hi:]...)...)
}

// InsertValue is shorthand for Insert(Interval{v, v}).
func (s *Set) InsertValue(v uint64) { s.Insert(Interval{v, v}) }

// ContainsEntirely reports whether some stored interval fully covers k.
func (s *Set) ContainsEntirely(k Interval) bool {
	i := sort.Search(len(s.items), func(i int) bool {
		return s.items[i].End >= k.Begin
	})
	if i == len(s.items) {
		return false
	}
	return s.items[i].Begin <= k.Begin && s.items[i].End >= k.End
}

// ContainsValue reports whether v falls inside some stored interval.
func (s *Set) ContainsValue(v uint64) bool {
	return s.ContainsEntirely(Interval{v, v})
}

// Remove deletes exactly the points in k from the set, splitting a
// covering interval into two, shrinking an interval's endpoint, or
// deleting intervals entirely contained in k.
func (s *Set) Remove(k Interval) {
	if k.Begin > k.End {
		return
	}
	var out []Interval
	for _, it := range s.items {
		if it.End < k.Begin || it.Begin > k.End {
			// disjoint from k, unaffected
			out = append(out, it)
			continue
		}
		if it.Begin < k.Begin {
			out = append(out, Interval{it.Begin, k.Begin - 1})
		}
		if it.End > k.End {
			out = append(out, Interval{k.End + 1, it.End})
		}
		// otherwise it is entirely covered by k and is dropped
	}
	s.items = out
}

// RemoveValue is shorthand for Remove(Interval{v, v}).
func (s *Set) RemoveValue(v uint64) { s.Remove(Interval{v, v}) }
