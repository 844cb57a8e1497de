package bpv6

import (
	"fmt"

	"github.com/hdtn-go/bpcore/eid"
	"github.com/hdtn-go/bpcore/fragset"
	"github.com/hdtn-go/bpcore/sdnv"
)

// AdminRecordType identifies the kind of administrative record content.
type AdminRecordType uint8

const (
	AdminRecordStatusReport       AdminRecordType = 1
	AdminRecordCustodySignal      AdminRecordType = 2
	AdminRecordAggregateCustody   AdminRecordType = 4
	AdminRecordEncapsulatedBundle AdminRecordType = 7
	AdminRecordSAGA               AdminRecordType = 42
)

// AdminRecordContent is the capability set of the three payload kinds an
// administrative record can carry, plus the opaque pass-through used for
// record types this node does not interpret (SAGA, encapsulated bundle).
type AdminRecordContent interface {
	SerializeData(buf []byte) []byte
	DeserializeExtensionData(raw []byte) error
	EqualData(other AdminRecordContent) bool
}

// AdministrativeRecord is the canonical-block content used when a
// bundle's primary block has the admin-record flag set and the
// canonical block's type code is 1 (payload in a normal bundle, admin
// record here — see spec.md §4.3's dispatch table).
//
// Its framing byte packs (type_code_high_nibble, admin_flags_low_nibble)
// per spec.md §6; only the bottom four bits of Type survive that framing,
// which is why the DTN-wide type codes spec.md lists (1, 2, 4, 7) all fit
// in a nibble. Type 42 (SAGA) is carried through Go-level APIs at full
// fidelity but, like the reference implementation, is only distinguishable
// on the wire by its bottom nibble; this node never re-derives semantics
// from that nibble for type 42, it only round-trips the opaque payload
// (SPEC_FULL.md §C.1).
type AdministrativeRecord struct {
	Type       AdminRecordType
	IsFragment bool
	Content    AdminRecordContent
}

func (r *AdministrativeRecord) SerializeData(buf []byte) []byte {
	frag := byte(0)
	if r.IsFragment {
		frag = 1
	}
	buf = append(buf, (byte(r.Type)<<4)|frag)
	switch c := r.Content.(type) {
	case nil:
	case *StatusReport:
		buf = c.serializeWithFragment(buf, r.IsFragment)
	case *CustodySignal:
		buf = c.serializeWithFragment(buf, r.IsFragment)
	default:
		buf = r.Content.SerializeData(buf)
	}
	return buf
}

func (r *AdministrativeRecord) DeserializeExtensionData(raw []byte) error {
	if len(raw) < 1 {
		return fmt.Errorf("admin record: %w", errTruncated)
	}
	frameByte := raw[0]
	r.Type = AdminRecordType(frameByte >> 4)
	r.IsFragment = frameByte&0x01 != 0
	body := raw[1:]

	switch r.Type {
	case AdminRecordStatusReport:
		c := &StatusReport{}
		if err := c.deserializeWithFragment(body, r.IsFragment); err != nil {
			return err
		}
		r.Content = c
	case AdminRecordCustodySignal:
		c := &CustodySignal{}
		if err := c.deserializeWithFragment(body, r.IsFragment); err != nil {
			return err
		}
		r.Content = c
	case AdminRecordAggregateCustody:
		c := &AggregateCustodySignal{}
		if err := c.DeserializeExtensionData(body); err != nil {
			return err
		}
		r.Content = c
	default:
		c := &OpaqueAdminContent{}
		if err := c.DeserializeExtensionData(body); err != nil {
			return err
		}
		r.Content = c
	}
	return nil
}

func (r *AdministrativeRecord) EqualData(other ExtensionData) bool {
	o, ok := other.(*AdministrativeRecord)
	if !ok || r.Type != o.Type || r.IsFragment != o.IsFragment {
		return false
	}
	if (r.Content == nil) != (o.Content == nil) {
		return false
	}
	if r.Content == nil {
		return true
	}
	return r.Content.EqualData(o.Content)
}

// OpaqueAdminContent is the pass-through used for administrative record
// types this node does not interpret (SAGA, encapsulated bundle):
// SPEC_FULL.md §C.1/§C.2.
type OpaqueAdminContent struct {
	Raw []byte
}

func (c *OpaqueAdminContent) SerializeData(buf []byte) []byte { return append(buf, c.Raw...) }

func (c *OpaqueAdminContent) DeserializeExtensionData(raw []byte) error {
	c.Raw = append([]byte(nil), raw...)
	return nil
}

func (c *OpaqueAdminContent) EqualData(other AdminRecordContent) bool {
	o, ok := other.(*OpaqueAdminContent)
	return ok && string(c.Raw) == string(o.Raw)
}

// DTNTime is a (seconds, nanoseconds) timestamp used by status reports
// and custody signals to record when an event occurred.
type DTNTime struct {
	Seconds     uint64
	Nanoseconds uint64
}

func (t DTNTime) serialize(buf []byte) []byte {
	buf = sdnv.Encode(buf, t.Seconds)
	buf = sdnv.Encode(buf, t.Nanoseconds)
	return buf
}

func deserializeDTNTime(raw []byte) (DTNTime, int, error) {
	secs, n1 := sdnv.Decode(raw)
	if n1 == 0 {
		return DTNTime{}, 0, fmt.Errorf("dtn time: seconds: %w", errTruncated)
	}
	nanos, n2 := sdnv.Decode(raw[n1:])
	if n2 == 0 {
		return DTNTime{}, 0, fmt.Errorf("dtn time: nanoseconds: %w", errTruncated)
	}
	return DTNTime{Seconds: secs, Nanoseconds: nanos}, n1 + n2, nil
}

// StatusReportFlags is the one-bit-per-status bitfield of a bundle status
// report.
type StatusReportFlags uint8

const (
	StatusReceived       StatusReportFlags = 1 << 0
	StatusCustodyAccepted StatusReportFlags = 1 << 1
	StatusForwarded      StatusReportFlags = 1 << 2
	StatusDelivered      StatusReportFlags = 1 << 3
	StatusDeleted        StatusReportFlags = 1 << 4
)

// Has reports whether all bits of want are set.
func (f StatusReportFlags) Has(want StatusReportFlags) bool { return f&want == want }

// StatusReport is the bundle status report administrative record
// content: spec.md §3.
type StatusReport struct {
	Flags             StatusReportFlags
	ReasonCode        uint8
	FragmentOffset    uint64 // only meaningful when IsFragment
	FragmentLength    uint64 // only meaningful when IsFragment
	ReceivedAt        DTNTime
	CustodyAcceptedAt DTNTime
	ForwardedAt       DTNTime
	DeliveredAt       DTNTime
	DeletedAt         DTNTime
	SubjectCreation   eid.CreationTimestamp
	SubjectSource     string
}

func (r *StatusReport) SerializeData(buf []byte) []byte {
	buf = append(buf, byte(r.Flags))
	buf = append(buf, r.ReasonCode)
	// fragment offset/length are prepended by the caller via isFragment;
	// see AdministrativeRecord.SerializeData which owns the frame byte.
	if r.Flags.Has(StatusReceived) {
		buf = r.ReceivedAt.serialize(buf)
	}
	if r.Flags.Has(StatusCustodyAccepted) {
		buf = r.CustodyAcceptedAt.serialize(buf)
	}
	if r.Flags.Has(StatusForwarded) {
		buf = r.ForwardedAt.serialize(buf)
	}
	if r.Flags.Has(StatusDelivered) {
		buf = r.DeliveredAt.serialize(buf)
	}
	if r.Flags.Has(StatusDeleted) {
		buf = r.DeletedAt.serialize(buf)
	}
	buf = r.SubjectCreation.Serialize(buf)
	buf = sdnv.Encode(buf, uint64(len(r.SubjectSource)))
	buf = append(buf, r.SubjectSource...)
	return buf
}

// serializeWithFragment is used by AdministrativeRecord construction
// helpers that need the fragment offset/length prepended, per spec.md
// §3 ("If the subject bundle was a fragment, the fragment offset and
// length are prepended").
func (r *StatusReport) serializeWithFragment(buf []byte, isFragment bool) []byte {
	if isFragment {
		buf = sdnv.Encode(buf, r.FragmentOffset)
		buf = sdnv.Encode(buf, r.FragmentLength)
	}
	return r.SerializeData(buf)
}

// DeserializeExtensionData parses a status report about a subject bundle
// that was not a fragment (no fragment offset/length prefix).
func (r *StatusReport) DeserializeExtensionData(raw []byte) error {
	return r.deserializeWithFragment(raw, false)
}

func (r *StatusReport) deserializeWithFragment(raw []byte, isFragment bool) error {
	pos := 0
	if isFragment {
		off, n := sdnv.Decode(raw[pos:])
		if n == 0 {
			return fmt.Errorf("status report: fragment offset: %w", errTruncated)
		}
		pos += n
		length, n := sdnv.Decode(raw[pos:])
		if n == 0 {
			return fmt.Errorf("status report: fragment length: %w", errTruncated)
		}
		pos += n
		r.FragmentOffset = off
		r.FragmentLength = length
	}
	if pos >= len(raw) {
		return fmt.Errorf("status report: flags: %w", errTruncated)
	}
	r.Flags = StatusReportFlags(raw[pos])
	pos++
	if pos >= len(raw) {
		return fmt.Errorf("status report: reason code: %w", errTruncated)
	}
	r.ReasonCode = raw[pos]
	pos++

	var t DTNTime
	var n int
	var err error
	if r.Flags.Has(StatusReceived) {
		if t, n, err = deserializeDTNTime(raw[pos:]); err != nil {
			return fmt.Errorf("status report: received time: %w", err)
		}
		r.ReceivedAt = t
		pos += n
	}
	if r.Flags.Has(StatusCustodyAccepted) {
		if t, n, err = deserializeDTNTime(raw[pos:]); err != nil {
			return fmt.Errorf("status report: custody-accepted time: %w", err)
		}
		r.CustodyAcceptedAt = t
		pos += n
	}
	if r.Flags.Has(StatusForwarded) {
		if t, n, err = deserializeDTNTime(raw[pos:]); err != nil {
			return fmt.Errorf("status report: forwarded time: %w", err)
		}
		r.ForwardedAt = t
		pos += n
	}
	if r.Flags.Has(StatusDelivered) {
		if t, n, err = deserializeDTNTime(raw[pos:]); err != nil {
			return fmt.Errorf("status report: delivered time: %w", err)
		}
		r.DeliveredAt = t
		pos += n
	}
	if r.Flags.Has(StatusDeleted) {
		if t, n, err = deserializeDTNTime(raw[pos:]); err != nil {
			return fmt.Errorf("status report: deleted time: %w", err)
		}
		r.DeletedAt = t
		pos += n
	}

	creation, n, err := eid.DeserializeTimestamp(raw[pos:])
	if err != nil {
		return fmt.Errorf("status report: subject creation timestamp: %w", err)
	}
	r.SubjectCreation = creation
	pos += n

	srcLen, n := sdnv.Decode(raw[pos:])
	if n == 0 {
		return fmt.Errorf("status report: subject source length: %w", errTruncated)
	}
	pos += n
	if uint64(len(raw)-pos) < srcLen {
		return fmt.Errorf("status report: subject source: %w", errTruncated)
	}
	r.SubjectSource = string(raw[pos : pos+int(srcLen)])
	return nil
}

func (r *StatusReport) EqualData(other AdminRecordContent) bool {
	o, ok := other.(*StatusReport)
	if !ok {
		return false
	}
	return *r == *o
}

// CustodySignal is the custody signal administrative record content:
// spec.md §3/§8 (S6).
type CustodySignal struct {
	Succeeded       bool
	ReasonCode      uint8 // 7 bits
	FragmentOffset  uint64
	FragmentLength  uint64
	SignalTime      DTNTime
	SubjectCreation eid.CreationTimestamp
	SubjectSource   string
}

func (c *CustodySignal) SerializeData(buf []byte) []byte {
	succ := byte(0)
	if c.Succeeded {
		succ = 0x80
	}
	buf = append(buf, succ|(c.ReasonCode&0x7f))
	buf = c.SignalTime.serialize(buf)
	buf = c.SubjectCreation.Serialize(buf)
	buf = sdnv.Encode(buf, uint64(len(c.SubjectSource)))
	buf = append(buf, c.SubjectSource...)
	return buf
}

func (c *CustodySignal) serializeWithFragment(buf []byte, isFragment bool) []byte {
	if isFragment {
		buf = sdnv.Encode(buf, c.FragmentOffset)
		buf = sdnv.Encode(buf, c.FragmentLength)
	}
	return c.SerializeData(buf)
}

// DeserializeExtensionData parses a custody signal about a subject bundle
// that was not a fragment (no fragment offset/length prefix).
func (c *CustodySignal) DeserializeExtensionData(raw []byte) error {
	return c.deserializeWithFragment(raw, false)
}

func (c *CustodySignal) deserializeWithFragment(raw []byte, isFragment bool) error {
	pos := 0
	if isFragment {
		off, n := sdnv.Decode(raw[pos:])
		if n == 0 {
			return fmt.Errorf("custody signal: fragment offset: %w", errTruncated)
		}
		pos += n
		length, n := sdnv.Decode(raw[pos:])
		if n == 0 {
			return fmt.Errorf("custody signal: fragment length: %w", errTruncated)
		}
		pos += n
		c.FragmentOffset = off
		c.FragmentLength = length
	}
	if pos >= len(raw) {
		return fmt.Errorf("custody signal: status byte: %w", errTruncated)
	}
	statusByte := raw[pos]
	pos++
	c.Succeeded = statusByte&0x80 != 0
	c.ReasonCode = statusByte & 0x7f

	t, n, err := deserializeDTNTime(raw[pos:])
	if err != nil {
		return fmt.Errorf("custody signal: signal time: %w", err)
	}
	c.SignalTime = t
	pos += n

	creation, n, err := eid.DeserializeTimestamp(raw[pos:])
	if err != nil {
		return fmt.Errorf("custody signal: subject creation timestamp: %w", err)
	}
	c.SubjectCreation = creation
	pos += n

	srcLen, n := sdnv.Decode(raw[pos:])
	if n == 0 {
		return fmt.Errorf("custody signal: subject source length: %w", errTruncated)
	}
	pos += n
	if uint64(len(raw)-pos) < srcLen {
		return fmt.Errorf("custody signal: subject source: %w", errTruncated)
	}
	c.SubjectSource = string(raw[pos : pos+int(srcLen)])
	return nil
}

func (c *CustodySignal) EqualData(other AdminRecordContent) bool {
	o, ok := other.(*CustodySignal)
	return ok && *c == *o
}

// AggregateCustodySignal is the ACS administrative record content:
// spec.md §3/§4.3/§8 (S3).
type AggregateCustodySignal struct {
	Succeeded  bool
	ReasonCode uint8 // 7 bits
	Fills      *fragset.Set
}

func (a *AggregateCustodySignal) SerializeData(buf []byte) []byte {
	succ := byte(0)
	if a.Succeeded {
		succ = 0x80
	}
	buf = append(buf, succ|(a.ReasonCode&0x7f))
	return EncodeFills(buf, a.Fills)
}

func (a *AggregateCustodySignal) DeserializeExtensionData(raw []byte) error {
	if len(raw) < 1 {
		return fmt.Errorf("acs: status byte: %w", errTruncated)
	}
	statusByte := raw[0]
	a.Succeeded = statusByte&0x80 != 0
	a.ReasonCode = statusByte & 0x7f

	fills, _, err := DecodeFills(raw[1:])
	if err != nil {
		return fmt.Errorf("acs: fills: %w", err)
	}
	a.Fills = fills
	return nil
}

func (a *AggregateCustodySignal) EqualData(other AdminRecordContent) bool {
	o, ok := other.(*AggregateCustodySignal)
	if !ok || a.Succeeded != o.Succeeded || a.ReasonCode != o.ReasonCode {
		return false
	}
	af, bf := a.Fills.Intervals(), o.Fills.Intervals()
	if len(af) != len(bf) {
		return false
	}
	for i := range af {
		if af[i] != bf[i] {
			return false
		}
	}
	return true
}

// EncodeFills appends the ACS fill-set wire encoding to buf: for each
// interval in ascending order, two SDNVs — the run-start delta and the
// run length minus one. The first interval's delta is its absolute
// begin; every later interval's delta is the gap since the previous
// interval's end minus one, since two non-overlapping, non-adjacent
// intervals are already at least one value apart (spec.md §3/§4.3, S3).
func EncodeFills(buf []byte, fills *fragset.Set) []byte {
	var prevEnd uint64
	for i, iv := range fills.Intervals() {
		var delta uint64
		if i == 0 {
			delta = iv.Begin
		} else {
			delta = iv.Begin - prevEnd - 1
		}
		length := iv.End - iv.Begin + 1
		buf = sdnv.Encode(buf, delta)
		buf = sdnv.Encode(buf, length-1)
		prevEnd = iv.End
	}
	return buf
}

// DecodeFills reads an ACS fill set from the prefix of raw, reconstructing
// absolute custody ids by running sum (the inverse of EncodeFills's
// begin-minus-prevEnd-minus-one delta for every run after the first),
// and returns the number of bytes consumed. It is tolerant of any
// non-negative delta sequence but returns an error if the running sum
// would overflow a uint64.
func DecodeFills(raw []byte) (*fragset.Set, int, error) {
	fills := fragset.New()
	pos := 0
	var prevEnd uint64
	first := true
	for pos < len(raw) {
		delta, n := sdnv.Decode(raw[pos:])
		if n == 0 {
			return nil, 0, fmt.Errorf("fill run start delta: %w", errTruncated)
		}
		pos += n

		lengthMinusOne, n := sdnv.Decode(raw[pos:])
		if n == 0 {
			return nil, 0, fmt.Errorf("fill run length: %w", errTruncated)
		}
		pos += n

		var begin uint64
		if first {
			begin = delta
			first = false
		} else {
			headroom := ^uint64(0) - prevEnd
			if headroom == 0 || delta > headroom-1 {
				return nil, 0, fmt.Errorf("fill run start overflows uint64")
			}
			begin = prevEnd + delta + 1
		}
		if lengthMinusOne == ^uint64(0) {
			return nil, 0, fmt.Errorf("fill run length overflows uint64")
		}
		length := lengthMinusOne + 1
		if length-1 > ^uint64(0)-begin {
			return nil, 0, fmt.Errorf("fill run end overflows uint64")
		}
		end := begin + length - 1
		fills.Insert(fragset.Interval{Begin: begin, End: end})
		prevEnd = end
	}
	return fills, pos, nil
}
