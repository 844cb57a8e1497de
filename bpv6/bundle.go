package bpv6

import "fmt"

// Bundle is a complete BPv6 bundle: a primary block and an ordered
// sequence of canonical blocks, the last of which must carry the
// is-last-block flag (spec.md §4.3).
type Bundle struct {
	Primary PrimaryBlock
	Blocks  []CanonicalBlock
}

// IsAdminRecord reports whether this bundle's primary block flags mark
// it as carrying an administrative record rather than application
// payload, which changes how canonical block type code 1 is dispatched.
func (b *Bundle) IsAdminRecord() bool {
	return b.Primary.Flags.Has(FlagIsAdminRecord)
}

// Equal reports deep equality between two bundles.
func (b *Bundle) Equal(o *Bundle) bool {
	if !b.Primary.Equal(&o.Primary) {
		return false
	}
	if len(b.Blocks) != len(o.Blocks) {
		return false
	}
	for i := range b.Blocks {
		a, c := b.Blocks[i], o.Blocks[i]
		if !a.Equal(&c) {
			return false
		}
	}
	return true
}

// Serialize encodes the full bundle: the primary block followed by each
// canonical block in order. It returns an error if the primary block
// exceeds its CBHE length limit, if Blocks is empty, or if any block
// other than the last one is marked is-last-block.
func (b *Bundle) Serialize(buf []byte) ([]byte, error) {
	if len(b.Blocks) == 0 {
		return buf, fmt.Errorf("bpv6: bundle has no canonical blocks")
	}
	for i := range b.Blocks {
		isLast := i == len(b.Blocks)-1
		if b.Blocks[i].IsLast() != isLast {
			return buf, fmt.Errorf("bpv6: bundle block %d: is-last-block flag must be set on exactly the final block", i)
		}
	}

	buf, err := b.Primary.Serialize(buf)
	if err != nil {
		return buf, fmt.Errorf("bpv6: bundle: %w", err)
	}
	for i := range b.Blocks {
		buf = b.Blocks[i].Serialize(buf)
	}
	return buf, nil
}

// Deserialize reads a complete bundle from buf: one primary block
// followed by canonical blocks until one is marked is-last-block. It
// returns the number of bytes consumed.
func Deserialize(buf []byte) (*Bundle, int, error) {
	b := &Bundle{}
	pos, err := b.Primary.Deserialize(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("bpv6: bundle: %w", err)
	}

	isAdmin := b.IsAdminRecord()
	for {
		if pos >= len(buf) {
			return nil, 0, fmt.Errorf("bpv6: bundle: %w: no block carried the is-last-block flag", errTruncated)
		}
		block, n, err := DeserializeCanonicalBlock(buf[pos:], isAdmin)
		if err != nil {
			return nil, 0, fmt.Errorf("bpv6: bundle: block %d: %w", len(b.Blocks), err)
		}
		pos += n
		b.Blocks = append(b.Blocks, *block)
		if block.IsLast() {
			break
		}
	}
	return b, pos, nil
}
