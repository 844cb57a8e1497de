package bpv6

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/hdtn-go/bpcore/eid"
	"github.com/hdtn-go/bpcore/sdnv"
)

// PayloadBlock is opaque application data.
type PayloadBlock struct {
	Raw []byte
}

func (b *PayloadBlock) SerializeData(buf []byte) []byte { return append(buf, b.Raw...) }

func (b *PayloadBlock) DeserializeExtensionData(raw []byte) error {
	b.Raw = append([]byte(nil), raw...)
	return nil
}

func (b *PayloadBlock) EqualData(other ExtensionData) bool {
	o, ok := other.(*PayloadBlock)
	return ok && bytes.Equal(b.Raw, o.Raw)
}

// CTEBBlock is the Custody Transfer Enhancement Block: a custody id and
// the EID string of the custodian that created it.
type CTEBBlock struct {
	CustodyID       uint64
	CreatorCustodian string
}

func (b *CTEBBlock) SerializeData(buf []byte) []byte {
	buf = sdnv.Encode(buf, b.CustodyID)
	buf = append(buf, []byte(b.CreatorCustodian)...)
	return buf
}

func (b *CTEBBlock) DeserializeExtensionData(raw []byte) error {
	id, n := sdnv.Decode(raw)
	if n == 0 {
		return fmt.Errorf("cteb: custody id: %w", errTruncated)
	}
	b.CustodyID = id
	b.CreatorCustodian = string(raw[n:])
	return nil
}

func (b *CTEBBlock) EqualData(other ExtensionData) bool {
	o, ok := other.(*CTEBBlock)
	return ok && b.CustodyID == o.CustodyID && b.CreatorCustodian == o.CreatorCustodian
}

// PreviousHopBlock records the EID of the node that forwarded this
// bundle to us. Its wire form is the NUL-terminated ASCII string
// "ipn\0N:S\0" rather than the two-SDNV CBHE EID form used elsewhere —
// this block predates CBHE and was never updated.
type PreviousHopBlock struct {
	PreviousNode eid.EID
}

func (b *PreviousHopBlock) SerializeData(buf []byte) []byte {
	buf = append(buf, "ipn\x00"...)
	buf = append(buf, fmt.Sprintf("%d:%d", b.PreviousNode.Node, b.PreviousNode.Service)...)
	buf = append(buf, 0)
	return buf
}

func (b *PreviousHopBlock) DeserializeExtensionData(raw []byte) error {
	const scheme = "ipn\x00"
	if !bytes.HasPrefix(raw, []byte(scheme)) {
		return fmt.Errorf("previous-hop: missing %q scheme prefix", scheme)
	}
	rest := raw[len(scheme):]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return fmt.Errorf("previous-hop: missing NUL terminator")
	}
	body := string(rest[:nul])
	colon := strings.IndexByte(body, ':')
	if colon < 0 {
		return fmt.Errorf("previous-hop: %q missing node:service separator", body)
	}
	node, err := strconv.ParseUint(body[:colon], 10, 64)
	if err != nil {
		return fmt.Errorf("previous-hop: bad node id: %w", err)
	}
	service, err := strconv.ParseUint(body[colon+1:], 10, 64)
	if err != nil {
		return fmt.Errorf("previous-hop: bad service id: %w", err)
	}
	b.PreviousNode = eid.EID{Node: node, Service: service}
	return nil
}

func (b *PreviousHopBlock) EqualData(other ExtensionData) bool {
	o, ok := other.(*PreviousHopBlock)
	return ok && b.PreviousNode == o.PreviousNode
}

// BundleAgeBlock carries the bundle's age in microseconds, for sources
// without a synchronized clock (see SPEC_FULL.md §C.4).
type BundleAgeBlock struct {
	AgeMicroseconds uint64
}

func (b *BundleAgeBlock) SerializeData(buf []byte) []byte {
	return sdnv.Encode(buf, b.AgeMicroseconds)
}

func (b *BundleAgeBlock) DeserializeExtensionData(raw []byte) error {
	v, n := sdnv.Decode(raw)
	if n == 0 {
		return fmt.Errorf("bundle-age: %w", errTruncated)
	}
	b.AgeMicroseconds = v
	return nil
}

func (b *BundleAgeBlock) EqualData(other ExtensionData) bool {
	o, ok := other.(*BundleAgeBlock)
	return ok && b.AgeMicroseconds == o.AgeMicroseconds
}

// MetadataBlock carries a type code and content that is either a list of
// EIDs (a URI list) or opaque bytes.
type MetadataBlock struct {
	MetadataType uint64
	URIList      []eid.EID // non-nil selects the URI-list form
	Opaque       []byte    // used when URIList is nil
}

const (
	metadataKindOpaque  = 0
	metadataKindURIList = 1
)

func (b *MetadataBlock) SerializeData(buf []byte) []byte {
	buf = sdnv.Encode(buf, b.MetadataType)
	if b.URIList != nil {
		buf = append(buf, metadataKindURIList)
		buf = sdnv.Encode(buf, uint64(len(b.URIList)))
		for _, e := range b.URIList {
			buf = e.Serialize(buf)
		}
		return buf
	}
	buf = append(buf, metadataKindOpaque)
	buf = append(buf, b.Opaque...)
	return buf
}

func (b *MetadataBlock) DeserializeExtensionData(raw []byte) error {
	mtype, n := sdnv.Decode(raw)
	if n == 0 {
		return fmt.Errorf("metadata: type code: %w", errTruncated)
	}
	b.MetadataType = mtype
	pos := n
	if pos >= len(raw) {
		return fmt.Errorf("metadata: missing content-kind byte: %w", errTruncated)
	}
	kind := raw[pos]
	pos++
	switch kind {
	case metadataKindURIList:
		count, n := sdnv.Decode(raw[pos:])
		if n == 0 {
			return fmt.Errorf("metadata: uri list count: %w", errTruncated)
		}
		pos += n
		list := make([]eid.EID, 0, count)
		for i := uint64(0); i < count; i++ {
			e, n, err := eid.Deserialize(raw[pos:])
			if err != nil {
				return fmt.Errorf("metadata: uri list entry %d: %w", i, err)
			}
			pos += n
			list = append(list, e)
		}
		b.URIList = list
		b.Opaque = nil
	case metadataKindOpaque:
		b.Opaque = append([]byte(nil), raw[pos:]...)
		b.URIList = nil
	default:
		return fmt.Errorf("metadata: unknown content kind %d", kind)
	}
	return nil
}

func (b *MetadataBlock) EqualData(other ExtensionData) bool {
	o, ok := other.(*MetadataBlock)
	if !ok || b.MetadataType != o.MetadataType {
		return false
	}
	if (b.URIList == nil) != (o.URIList == nil) {
		return false
	}
	if b.URIList != nil {
		if len(b.URIList) != len(o.URIList) {
			return false
		}
		for i := range b.URIList {
			if b.URIList[i] != o.URIList[i] {
				return false
			}
		}
		return true
	}
	return bytes.Equal(b.Opaque, o.Opaque)
}

// GenericBlock is the fallback variant for any canonical block type code
// spec.md's dispatch table does not name: raw, uninterpreted bytes.
type GenericBlock struct {
	Raw []byte
}

func (b *GenericBlock) SerializeData(buf []byte) []byte { return append(buf, b.Raw...) }

func (b *GenericBlock) DeserializeExtensionData(raw []byte) error {
	b.Raw = append([]byte(nil), raw...)
	return nil
}

func (b *GenericBlock) EqualData(other ExtensionData) bool {
	o, ok := other.(*GenericBlock)
	return ok && bytes.Equal(b.Raw, o.Raw)
}
