// Package bpv6 implements the Bundle Protocol v6 wire codec with CBHE
// (Compressed Bundle Header Encoding) and IPN naming: primary blocks,
// canonical blocks, the typed extension block variants, and
// administrative records, all built on the sdnv package.
package bpv6

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/hdtn-go/bpcore/eid"
	"github.com/hdtn-go/bpcore/sdnv"
)

// Version is the only bundle protocol version this codec speaks.
const Version = 6

// Epoch5050Offset mirrors eid.Epoch5050Offset; re-exported here since
// primary block timestamps are the thing callers most often need it for.
const Epoch5050Offset = eid.Epoch5050Offset

// MaxPrimaryBlockLength is the hard ceiling spec.md imposes on a CBHE
// primary block: its single-byte SDNV block-length field cannot exceed
// 127 (the high bit of that byte must stay clear for it to be a single
// byte in the first place, which constrains the whole block to 127
// bytes after the version+flags+length-byte prefix).
const MaxPrimaryBlockLength = 127

// PrimaryBlock is the bundle's primary block.
type PrimaryBlock struct {
	Flags             BundleFlags
	Destination       eid.EID
	Source            eid.EID
	ReportTo          eid.EID
	Custodian         eid.EID
	Creation          eid.CreationTimestamp
	LifetimeSeconds   uint64
	FragmentOffset    uint64 // valid only when Flags.Has(FlagIsFragment)
	TotalADULength    uint64 // valid only when Flags.Has(FlagIsFragment)
}

// HasFragmentation reports whether the fragment-offset/total-ADU-length
// fields are meaningful for this primary block.
func (p *PrimaryBlock) HasFragmentation() bool {
	return p.Flags.Has(FlagIsFragment)
}

// Equal reports deep equality between two primary blocks.
func (p *PrimaryBlock) Equal(o *PrimaryBlock) bool {
	if p.Flags != o.Flags || p.Destination != o.Destination || p.Source != o.Source ||
		p.ReportTo != o.ReportTo || p.Custodian != o.Custodian || p.Creation != o.Creation ||
		p.LifetimeSeconds != o.LifetimeSeconds {
		return false
	}
	if p.HasFragmentation() != o.HasFragmentation() {
		return false
	}
	if p.HasFragmentation() {
		return p.FragmentOffset == o.FragmentOffset && p.TotalADULength == o.TotalADULength
	}
	return true
}

// Serialize encodes the primary block: version, flags, a back-patched
// block-length byte, four EIDs, creation timestamp, lifetime, a zero
// dictionary-length byte and — only when the fragment flag is set —
// fragment offset and total ADU length. It returns an error if the
// resulting block body (everything after the length byte) would exceed
// MaxPrimaryBlockLength, since that body length must fit in a one-byte
// SDNV.
func (p *PrimaryBlock) Serialize(buf []byte) ([]byte, error) {
	start := len(buf)
	buf = append(buf, Version)
	buf = sdnv.Encode(buf, uint64(p.Flags))

	lengthBytePos := len(buf)
	buf = append(buf, 0) // placeholder, back-patched below
	bodyStart := len(buf)

	buf = p.Destination.Serialize(buf)
	buf = p.Source.Serialize(buf)
	buf = p.ReportTo.Serialize(buf)
	buf = p.Custodian.Serialize(buf)
	buf = p.Creation.Serialize(buf)
	buf = sdnv.Encode(buf, p.LifetimeSeconds)
	buf = append(buf, 0) // dictionary length, always zero under CBHE
	if p.HasFragmentation() {
		buf = sdnv.Encode(buf, p.FragmentOffset)
		buf = sdnv.Encode(buf, p.TotalADULength)
	}

	bodyLen := len(buf) - bodyStart
	if bodyLen > MaxPrimaryBlockLength {
		return buf[:start], fmt.Errorf("bpv6: primary block body length %d exceeds %d-byte CBHE limit", bodyLen, MaxPrimaryBlockLength)
	}
	buf[lengthBytePos] = byte(bodyLen)
	return buf, nil
}

// Deserialize reads a primary block from the prefix of buf, returning the
// number of bytes consumed. It rejects a version other than 6, a
// non-zero dictionary length, a malformed SDNV anywhere in the block, or
// any EID that fails to decode.
func (p *PrimaryBlock) Deserialize(buf []byte) (int, error) {
	if len(buf) < 1 {
		return 0, fmt.Errorf("bpv6: primary block: %w", errTruncated)
	}
	pos := 0
	if buf[pos] != Version {
		return 0, fmt.Errorf("bpv6: primary block: unsupported version %d", buf[pos])
	}
	pos++

	flags, n := sdnv.Decode(buf[pos:])
	if n == 0 {
		return 0, fmt.Errorf("bpv6: primary block: flags: %w", errTruncated)
	}
	p.Flags = BundleFlags(flags)
	pos += n

	blockLen, n := sdnv.Decode(buf[pos:])
	if n == 0 {
		return 0, fmt.Errorf("bpv6: primary block: block length: %w", errTruncated)
	}
	pos += n
	_ = blockLen // informational; decode proceeds field-by-field regardless

	var err error
	p.Destination, n, err = eid.Deserialize(buf[pos:])
	if err != nil {
		return 0, fmt.Errorf("bpv6: primary block: destination eid: %w", err)
	}
	pos += n

	p.Source, n, err = eid.Deserialize(buf[pos:])
	if err != nil {
		return 0, fmt.Errorf("bpv6: primary block: source eid: %w", err)
	}
	pos += n

	p.ReportTo, n, err = eid.Deserialize(buf[pos:])
	if err != nil {
		return 0, fmt.Errorf("bpv6: primary block: report-to eid: %w", err)
	}
	pos += n

	p.Custodian, n, err = eid.Deserialize(buf[pos:])
	if err != nil {
		return 0, fmt.Errorf("bpv6: primary block: custodian eid: %w", err)
	}
	pos += n

	p.Creation, n, err = eid.DeserializeTimestamp(buf[pos:])
	if err != nil {
		return 0, fmt.Errorf("bpv6: primary block: creation timestamp: %w", err)
	}
	pos += n

	lifetime, n := sdnv.Decode(buf[pos:])
	if n == 0 {
		return 0, fmt.Errorf("bpv6: primary block: lifetime: %w", errTruncated)
	}
	p.LifetimeSeconds = lifetime
	pos += n

	if len(buf) <= pos {
		return 0, fmt.Errorf("bpv6: primary block: dictionary length: %w", errTruncated)
	}
	if buf[pos] != 0 {
		return 0, fmt.Errorf("bpv6: primary block: non-zero dictionary length byte %d (CBHE requires zero)", buf[pos])
	}
	pos++

	if p.HasFragmentation() {
		off, n := sdnv.Decode(buf[pos:])
		if n == 0 {
			return 0, fmt.Errorf("bpv6: primary block: fragment offset: %w", errTruncated)
		}
		p.FragmentOffset = off
		pos += n

		total, n := sdnv.Decode(buf[pos:])
		if n == 0 {
			return 0, fmt.Errorf("bpv6: primary block: total adu length: %w", errTruncated)
		}
		p.TotalADULength = total
		pos += n
	} else {
		p.FragmentOffset = 0
		p.TotalADULength = 0
	}

	return pos, nil
}

// ValidateAggregate runs every structural check spec.md §3/§4.3 imposes
// on a primary block and aggregates all violations found, rather than
// stopping at the first one — useful for diagnosing a malformed bundle
// built by a misbehaving peer, where several fields may be wrong at once.
func (p *PrimaryBlock) ValidateAggregate() error {
	var result *multierror.Error
	if p.HasFragmentation() && p.Flags.Has(FlagNoFragment) {
		result = multierror.Append(result, fmt.Errorf("bpv6: primary block sets both IsFragment and NoFragment"))
	}
	if !p.HasFragmentation() && (p.FragmentOffset != 0 || p.TotalADULength != 0) {
		result = multierror.Append(result, fmt.Errorf("bpv6: primary block carries fragment fields without the fragment flag"))
	}
	return result.ErrorOrNil()
}
