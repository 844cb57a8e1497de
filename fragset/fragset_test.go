package fragset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertMergesOverlapAndAbut(t *testing.T) {
	s := New()
	s.Insert(Interval{10, 20})
	s.Insert(Interval{30, 40})
	s.Insert(Interval{20, 30}) // touches both neighbours, should fuse all three

	assert.Equal(t, []Interval{{10, 40}}, s.Intervals())
}

func TestRemoveSplits(t *testing.T) {
	s := New()
	s.Insert(Interval{10, 20})
	s.Insert(Interval{30, 40})
	s.Insert(Interval{20, 30})
	assert.Equal(t, []Interval{{10, 40}}, s.Intervals())

	s.Remove(Interval{15, 35})
	assert.Equal(t, []Interval{{10, 14}, {36, 40}}, s.Intervals())
}

func TestInsertDisjointStaysSeparate(t *testing.T) {
	s := New()
	s.Insert(Interval{1, 2})
	s.Insert(Interval{10, 12})
	assert.Equal(t, []Interval{{1, 2}, {10, 12}}, s.Intervals())
}

func TestInsertAbuttingMergesWithoutGap(t *testing.T) {
	s := New()
	s.Insert(Interval{1, 5})
	s.Insert(Interval{6, 10}) // abuts, no overlap
	assert.Equal(t, []Interval{{1, 10}}, s.Intervals())
}

func TestInsertNearlyAbuttingStaysSeparate(t *testing.T) {
	s := New()
	s.Insert(Interval{1, 5})
	s.Insert(Interval{7, 10}) // gap of one, must not merge
	assert.Equal(t, []Interval{{1, 5}, {7, 10}}, s.Intervals())
}

func TestContainsEntirely(t *testing.T) {
	s := New()
	s.Insert(Interval{10, 40})
	assert.True(t, s.ContainsEntirely(Interval{15, 35}))
	assert.True(t, s.ContainsEntirely(Interval{10, 40}))
	assert.False(t, s.ContainsEntirely(Interval{5, 15}))
	assert.False(t, s.ContainsEntirely(Interval{35, 45}))
}

func TestRemoveEntireInterval(t *testing.T) {
	s := New()
	s.Insert(Interval{1, 2})
	s.Insert(Interval{10, 12})
	s.Remove(Interval{1, 2})
	assert.Equal(t, []Interval{{10, 12}}, s.Intervals())
}

func TestRemoveShrinksFromEdges(t *testing.T) {
	s := New()
	s.Insert(Interval{10, 20})
	s.Remove(Interval{10, 12})
	assert.Equal(t, []Interval{{13, 20}}, s.Intervals())
	s.Remove(Interval{18, 25})
	assert.Equal(t, []Interval{{13, 17}}, s.Intervals())
}

func TestInsertValueAndContainsValue(t *testing.T) {
	s := New()
	s.InsertValue(5)
	s.InsertValue(6)
	s.InsertValue(8)
	assert.Equal(t, []Interval{{5, 6}, {8, 8}}, s.Intervals())
	assert.True(t, s.ContainsValue(5))
	assert.True(t, s.ContainsValue(8))
	assert.False(t, s.ContainsValue(7))
}

func TestClosureInvariantUnderRandomSequence(t *testing.T) {
	s := New()
	ops := []Interval{
		{0, 3}, {10, 13}, {5, 8}, {3, 5}, {20, 20}, {21, 21}, {8, 9},
	}
	for _, op := range ops {
		s.Insert(op)
	}
	items := s.Intervals()
	for i := 1; i < len(items); i++ {
		assert.Greater(t, items[i].Begin, items[i-1].End+1, "intervals %v and %v overlap or abut", items[i-1], items[i])
	}
}
