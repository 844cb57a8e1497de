package bpv6

import (
	"fmt"

	"github.com/hdtn-go/bpcore/sdnv"
)

// BlockType identifies a canonical block's wire type code.
type BlockType uint8

const (
	BlockTypePayload      BlockType = 1
	BlockTypePreviousHop  BlockType = 5
	BlockTypeMetadata     BlockType = 8
	BlockTypeCTEB         BlockType = 10
	BlockTypeBundleAge    BlockType = 20
)

// ExtensionData is the capability set every typed canonical block variant
// implements: serialize its type-specific content, parse it back out of
// raw bytes, and compare for equality. The generic (opaque) block also
// implements this trivially over its raw byte payload.
type ExtensionData interface {
	// SerializeData appends this variant's type-specific data to buf.
	SerializeData(buf []byte) []byte
	// DeserializeExtensionData parses raw (the canonical block's
	// already-length-delimited type-specific data) into this variant.
	// It returns an error, never panics, on malformed input.
	DeserializeExtensionData(raw []byte) error
	// EqualData reports whether this variant's content equals other's.
	// It returns false when other is a different concrete type.
	EqualData(other ExtensionData) bool
}

// CanonicalBlock is one block in a bundle's canonical-block sequence: a
// type code, processing-control flags, and a typed payload.
type CanonicalBlock struct {
	Type  BlockType
	Flags CanonicalFlags
	Data  ExtensionData
}

// IsLast reports whether this block carries the bundle's single
// is-last-block flag.
func (b *CanonicalBlock) IsLast() bool {
	return b.Flags.Has(CanonicalFlagIsLastBlock)
}

// Equal reports whether two canonical blocks are deeply equal.
func (b *CanonicalBlock) Equal(o *CanonicalBlock) bool {
	if b.Type != o.Type || b.Flags != o.Flags {
		return false
	}
	if (b.Data == nil) != (o.Data == nil) {
		return false
	}
	if b.Data == nil {
		return true
	}
	return b.Data.EqualData(o.Data)
}

// Serialize encodes the canonical block: type byte, flags SDNV,
// data-length SDNV, then the type-specific data.
func (b *CanonicalBlock) Serialize(buf []byte) []byte {
	buf = append(buf, byte(b.Type))
	buf = sdnv.Encode(buf, uint64(b.Flags))

	var data []byte
	if b.Data != nil {
		data = b.Data.SerializeData(nil)
	}
	buf = sdnv.Encode(buf, uint64(len(data)))
	buf = append(buf, data...)
	return buf
}

// DeserializeCanonicalBlock reads one canonical block from the prefix of
// buf. isAdminRecordBundle selects the dispatch column of spec.md §4.3's
// type-code table: the same wire type code 1 means "payload" in a normal
// bundle and "administrative record" inside a bundle whose primary block
// has the admin-record flag set. It returns the block and the number of
// bytes consumed.
func DeserializeCanonicalBlock(buf []byte, isAdminRecordBundle bool) (*CanonicalBlock, int, error) {
	if len(buf) < 1 {
		return nil, 0, fmt.Errorf("bpv6: canonical block: %w", errTruncated)
	}
	pos := 0
	typeCode := BlockType(buf[pos])
	pos++

	flags, n := sdnv.Decode(buf[pos:])
	if n == 0 {
		return nil, 0, fmt.Errorf("bpv6: canonical block: flags: %w", errTruncated)
	}
	pos += n

	dataLen, n := sdnv.Decode(buf[pos:])
	if n == 0 {
		return nil, 0, fmt.Errorf("bpv6: canonical block: data length: %w", errTruncated)
	}
	pos += n

	if uint64(len(buf)-pos) < dataLen {
		return nil, 0, fmt.Errorf("bpv6: canonical block: type-specific data extends %d bytes past the enclosing buffer", dataLen-uint64(len(buf)-pos))
	}
	raw := buf[pos : pos+int(dataLen)]
	pos += int(dataLen)

	data, err := newExtensionData(typeCode, isAdminRecordBundle)
	if err != nil {
		return nil, 0, err
	}
	if err := data.DeserializeExtensionData(raw); err != nil {
		return nil, 0, fmt.Errorf("bpv6: canonical block type %d: %w", typeCode, err)
	}

	return &CanonicalBlock{Type: typeCode, Flags: CanonicalFlags(flags), Data: data}, pos, nil
}

// newExtensionData dispatches on (typeCode, isAdminRecordBundle) per the
// table in spec.md §4.3, returning a zero-valued variant ready for
// DeserializeExtensionData.
func newExtensionData(typeCode BlockType, isAdminRecordBundle bool) (ExtensionData, error) {
	if isAdminRecordBundle && typeCode == BlockTypePayload {
		return &AdministrativeRecord{}, nil
	}
	switch typeCode {
	case BlockTypePayload:
		return &PayloadBlock{}, nil
	case BlockTypePreviousHop:
		return &PreviousHopBlock{}, nil
	case BlockTypeMetadata:
		return &MetadataBlock{}, nil
	case BlockTypeCTEB:
		return &CTEBBlock{}, nil
	case BlockTypeBundleAge:
		return &BundleAgeBlock{}, nil
	default:
		return &GenericBlock{}, nil
	}
}
