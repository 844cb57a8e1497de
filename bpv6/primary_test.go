package bpv6

import (
	"testing"

	"github.com/hdtn-go/bpcore/eid"
	"github.com/stretchr/testify/require"
)

func TestPrimaryBlockRoundTrip(t *testing.T) {
	p := PrimaryBlock{
		Flags:           FlagCustodyRequested | FlagSingleton,
		Destination:     eid.EID{Node: 2, Service: 1},
		Source:          eid.EID{Node: 1, Service: 1},
		ReportTo:        eid.Null,
		Custodian:       eid.EID{Node: 1, Service: 0},
		Creation:        eid.CreationTimestamp{Seconds: 700000000, Sequence: 0},
		LifetimeSeconds: 3600,
	}

	buf, err := p.Serialize(nil)
	require.NoError(t, err)

	var got PrimaryBlock
	n, err := got.Deserialize(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.True(t, p.Equal(&got))
}

func TestPrimaryBlockFragmentFieldsRoundTrip(t *testing.T) {
	p := PrimaryBlock{
		Flags:           FlagIsFragment,
		Destination:     eid.EID{Node: 2, Service: 1},
		Source:          eid.EID{Node: 1, Service: 1},
		ReportTo:        eid.Null,
		Custodian:       eid.Null,
		Creation:        eid.CreationTimestamp{Seconds: 1, Sequence: 2},
		LifetimeSeconds: 100,
		FragmentOffset:  512,
		TotalADULength:  4096,
	}

	buf, err := p.Serialize(nil)
	require.NoError(t, err)

	var got PrimaryBlock
	_, err = got.Deserialize(buf)
	require.NoError(t, err)
	require.True(t, p.Equal(&got))
	require.True(t, got.HasFragmentation())
	require.EqualValues(t, 512, got.FragmentOffset)
	require.EqualValues(t, 4096, got.TotalADULength)
}

func TestPrimaryBlockRejectsWrongVersion(t *testing.T) {
	p := PrimaryBlock{Creation: eid.CreationTimestamp{Seconds: 1}}
	buf, err := p.Serialize(nil)
	require.NoError(t, err)
	buf[0] = 7

	var got PrimaryBlock
	_, err = got.Deserialize(buf)
	require.Error(t, err)
}

func TestPrimaryBlockRejectsNonZeroDictionaryByte(t *testing.T) {
	p := PrimaryBlock{Creation: eid.CreationTimestamp{Seconds: 1}}
	buf, err := p.Serialize(nil)
	require.NoError(t, err)

	var zero PrimaryBlock
	_, err = zero.Deserialize(buf)
	require.NoError(t, err)

	// corrupt the dictionary-length byte (the one that must read 0); with
	// no fragment fields it is the block's final byte.
	buf[len(buf)-1] = 1
	_, err = zero.Deserialize(buf)
	require.Error(t, err)
}

func TestValidateAggregateReportsBothFragmentFlags(t *testing.T) {
	p := PrimaryBlock{Flags: FlagIsFragment | FlagNoFragment}
	err := p.ValidateAggregate()
	require.Error(t, err)
}

func TestValidateAggregateReportsStrayFragmentFields(t *testing.T) {
	p := PrimaryBlock{FragmentOffset: 10}
	err := p.ValidateAggregate()
	require.Error(t, err)
}

func TestValidateAggregateAcceptsConsistentBlock(t *testing.T) {
	p := PrimaryBlock{Flags: FlagIsFragment, FragmentOffset: 1, TotalADULength: 2}
	require.NoError(t, p.ValidateAggregate())
}
