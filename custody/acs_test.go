package custody

import (
	"testing"

	"github.com/hdtn-go/bpcore/fragset"
	"github.com/stretchr/testify/require"
)

func TestACSGeneratorCoalescesAdjacentIDs(t *testing.T) {
	g := NewACSGenerator(true, 0, 0)
	require.Equal(t, 1, g.Add(5))
	require.Equal(t, 1, g.Add(6)) // abuts, merges
	require.Equal(t, 2, g.Add(8)) // disjoint, new interval

	signals := g.Generate()
	require.Len(t, signals, 1)
	require.Equal(t, []fragset.Interval{{Begin: 5, End: 6}, {Begin: 8, End: 8}}, signals[0].Fills.Intervals())
	require.Equal(t, 0, g.Pending())
}

func TestACSGeneratorSplitsAcrossMaxIntervals(t *testing.T) {
	g := NewACSGenerator(true, 0, 2)
	// each ID is three apart so none merge: 1, 4, 7, 10 -> 4 disjoint intervals
	for _, id := range []uint64{1, 4, 7, 10} {
		g.Add(id)
	}

	signals := g.Generate()
	require.Len(t, signals, 2)
	require.Len(t, signals[0].Fills.Intervals(), 2)
	require.Len(t, signals[1].Fills.Intervals(), 2)
}

func TestACSGeneratorGenerateEmptyReturnsNil(t *testing.T) {
	g := NewACSGenerator(true, 0, 0)
	require.Nil(t, g.Generate())
}

func TestACSGeneratorAddContiguous(t *testing.T) {
	g := NewACSGenerator(false, 3, 0)
	n := g.AddContiguous(100, 199)
	require.Equal(t, 1, n)
	signals := g.Generate()
	require.Len(t, signals, 1)
	require.False(t, signals[0].Succeeded)
	require.EqualValues(t, 3, signals[0].ReasonCode)
}
