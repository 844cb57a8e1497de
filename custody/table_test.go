package custody

import (
	"testing"
	"time"

	"github.com/hdtn-go/bpcore/clog"
	"github.com/hdtn-go/bpcore/fragset"
	"github.com/stretchr/testify/require"
)

func TestAcceptAllocatesMonotonicIDs(t *testing.T) {
	tab := NewTable[string](clog.Nop())
	id1 := tab.Accept("bundle-a", time.Minute)
	id2 := tab.Accept("bundle-b", time.Minute)
	require.Less(t, id1, id2)
	require.Equal(t, 2, tab.Outstanding())
}

func TestDischargeRemovesCoveredObligations(t *testing.T) {
	tab := NewTable[string](clog.Nop())
	id1 := tab.Accept("a", time.Minute)
	id2 := tab.Accept("b", time.Minute)
	id3 := tab.Accept("c", time.Minute)

	fills := fragset.New()
	fills.Insert(fragset.Interval{Begin: id1, End: id2})

	discharged := tab.Discharge(fills)
	require.ElementsMatch(t, []uint64{id1, id2}, discharged)
	require.Equal(t, 1, tab.Outstanding())

	_, reforward := tab.Expire(id3)
	require.False(t, reforward)
}

func TestExpireReportsReforwardOnlyAfterDeadline(t *testing.T) {
	tab := NewTable[string](clog.Nop())
	id := tab.Accept("a", -time.Second) // already expired

	ref, reforward := tab.Expire(id)
	require.True(t, reforward)
	require.Equal(t, "a", ref)
	require.Equal(t, 0, tab.Outstanding())

	// already expired once; a second Expire finds nothing left.
	_, reforward = tab.Expire(id)
	require.False(t, reforward)
}

func TestExpireLeavesUnexpiredObligationInPlace(t *testing.T) {
	tab := NewTable[string](clog.Nop())
	id := tab.Accept("a", time.Hour)

	ref, reforward := tab.Expire(id)
	require.False(t, reforward)
	require.Equal(t, "a", ref)
	require.Equal(t, 1, tab.Outstanding())
}

func TestExpireUnknownIDIsNoop(t *testing.T) {
	tab := NewTable[string](clog.Nop())
	_, reforward := tab.Expire(999)
	require.False(t, reforward)
}
