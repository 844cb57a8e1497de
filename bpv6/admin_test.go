package bpv6

import (
	"testing"

	"github.com/hdtn-go/bpcore/eid"
	"github.com/hdtn-go/bpcore/fragset"
	"github.com/hdtn-go/bpcore/sdnv"
	"github.com/stretchr/testify/require"
)

func TestCustodySignalRoundTrip(t *testing.T) {
	rec := &AdministrativeRecord{
		Type:       AdminRecordCustodySignal,
		IsFragment: false,
		Content: &CustodySignal{
			Succeeded:       true,
			ReasonCode:      3,
			SignalTime:      DTNTime{Seconds: 123, Nanoseconds: 456},
			SubjectCreation: eid.CreationTimestamp{Seconds: 700000000, Sequence: 7},
			SubjectSource:   "ipn:1.1",
		},
	}

	buf := rec.SerializeData(nil)

	var got AdministrativeRecord
	require.NoError(t, got.DeserializeExtensionData(buf))
	require.True(t, rec.EqualData(&got))
}

func TestCustodySignalFragmentFieldsRoundTrip(t *testing.T) {
	rec := &AdministrativeRecord{
		Type:       AdminRecordCustodySignal,
		IsFragment: true,
		Content: &CustodySignal{
			Succeeded:       false,
			ReasonCode:      1,
			FragmentOffset:  100,
			FragmentLength:  50,
			SignalTime:      DTNTime{Seconds: 1},
			SubjectCreation: eid.CreationTimestamp{Seconds: 2},
			SubjectSource:   "ipn:3.4",
		},
	}

	buf := rec.SerializeData(nil)

	var got AdministrativeRecord
	require.NoError(t, got.DeserializeExtensionData(buf))
	require.True(t, got.IsFragment)
	cs, ok := got.Content.(*CustodySignal)
	require.True(t, ok)
	require.EqualValues(t, 100, cs.FragmentOffset)
	require.EqualValues(t, 50, cs.FragmentLength)
}

func TestStatusReportRoundTrip(t *testing.T) {
	rec := &AdministrativeRecord{
		Type: AdminRecordStatusReport,
		Content: &StatusReport{
			Flags:           StatusReceived | StatusDelivered,
			ReasonCode:      0,
			ReceivedAt:      DTNTime{Seconds: 10, Nanoseconds: 1},
			DeliveredAt:     DTNTime{Seconds: 20, Nanoseconds: 2},
			SubjectCreation: eid.CreationTimestamp{Seconds: 700000000, Sequence: 1},
			SubjectSource:   "ipn:2.2",
		},
	}

	buf := rec.SerializeData(nil)

	var got AdministrativeRecord
	require.NoError(t, got.DeserializeExtensionData(buf))
	require.True(t, rec.EqualData(&got))
}

func TestAggregateCustodySignalFillEncoding(t *testing.T) {
	fills := fragset.New()
	fills.Insert(fragset.Interval{Begin: 1, End: 3})
	fills.Insert(fragset.Interval{Begin: 7, End: 7})
	fills.Insert(fragset.Interval{Begin: 10, End: 12})

	rec := &AdministrativeRecord{
		Type: AdminRecordAggregateCustody,
		Content: &AggregateCustodySignal{
			Succeeded:  true,
			ReasonCode: 0,
			Fills:      fills,
		},
	}

	buf := rec.SerializeData(nil)

	var got AdministrativeRecord
	require.NoError(t, got.DeserializeExtensionData(buf))
	acs, ok := got.Content.(*AggregateCustodySignal)
	require.True(t, ok)
	require.Equal(t, fills.Intervals(), acs.Fills.Intervals())
}

func TestDecodeFillsRunStartDeltaFromPreviousEnd(t *testing.T) {
	// two runs: [5,5] then [8,9]. First delta is absolute (5), second
	// delta is the gap since the previous run's end, minus one
	// (8-5-1=2).
	var buf []byte
	buf = EncodeFills(buf, buildSet(t, fragset.Interval{Begin: 5, End: 5}, fragset.Interval{Begin: 8, End: 9}))

	fills, n, err := DecodeFills(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, []fragset.Interval{{Begin: 5, End: 5}, {Begin: 8, End: 9}}, fills.Intervals())
}

// TestEncodeFillsMatchesS3WireBytes pins the literal wire encoding from
// spec.md §8 scenario S3: fill set {[5,5],[7,9],[20,20]} must encode as
// SDNV(5) SDNV(0) SDNV(1) SDNV(2) SDNV(10) SDNV(0) — run 2's delta is
// 7-5-1=1 (one uncovered value, 6, lies between the runs), and run 3's
// delta is 20-9-1=10.
func TestEncodeFillsMatchesS3WireBytes(t *testing.T) {
	fills := buildSet(t,
		fragset.Interval{Begin: 5, End: 5},
		fragset.Interval{Begin: 7, End: 9},
		fragset.Interval{Begin: 20, End: 20},
	)

	got := EncodeFills(nil, fills)

	var want []byte
	want = sdnv.Encode(want, 5)
	want = sdnv.Encode(want, 0)
	want = sdnv.Encode(want, 1)
	want = sdnv.Encode(want, 2)
	want = sdnv.Encode(want, 10)
	want = sdnv.Encode(want, 0)
	require.Equal(t, want, got)

	decoded, n, err := DecodeFills(got)
	require.NoError(t, err)
	require.Equal(t, len(got), n)
	require.Equal(t, fills.Intervals(), decoded.Intervals())
}

func buildSet(t *testing.T, ivs ...fragset.Interval) *fragset.Set {
	t.Helper()
	s := fragset.New()
	for _, iv := range ivs {
		s.Insert(iv)
	}
	return s
}

func TestOpaqueAdminRecordPassThrough(t *testing.T) {
	rec := &AdministrativeRecord{
		Type:    AdminRecordSAGA,
		Content: &OpaqueAdminContent{Raw: []byte{0xde, 0xad, 0xbe, 0xef}},
	}

	buf := rec.SerializeData(nil)

	var got AdministrativeRecord
	require.NoError(t, got.DeserializeExtensionData(buf))
	oc, ok := got.Content.(*OpaqueAdminContent)
	require.True(t, ok)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, oc.Raw)
}
