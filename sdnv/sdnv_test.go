package sdnv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripValues(t *testing.T) {
	values := []uint64{
		0, 1, 0x7f, 0x80, 0xff, 0x3fff, 0x4000,
		1<<21 - 1, 1 << 21,
		1<<35 + 12345,
		1<<63 - 1,
		1 << 63,
		^uint64(0),
	}
	for _, v := range values {
		buf := Encode(nil, v)
		assert.Equal(t, NumBytesRequired(v), len(buf), "value %d", v)
		got, n := Decode(buf)
		require.NotZero(t, n, "value %d", v)
		assert.Equal(t, v, got, "value %d", v)
		assert.Equal(t, len(buf), n)
	}
}

func TestEncodeIsMinimal(t *testing.T) {
	// every byte but the last must carry the continuation bit, and the
	// first emitted byte must be non-zero-group unless v == 0.
	buf := Encode(nil, 300)
	for i, b := range buf {
		if i == len(buf)-1 {
			assert.Zero(t, b&0x80)
		} else {
			assert.NotZero(t, b&0x80)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	// a continuation byte with nothing following it cannot be decoded.
	_, n := Decode([]byte{0x81})
	assert.Zero(t, n)

	_, n = Decode(nil)
	assert.Zero(t, n)
}

func TestDecodeOverflowTenthByteContinuation(t *testing.T) {
	buf := make([]byte, 10)
	for i := range buf {
		buf[i] = 0x81
	}
	_, n := Decode(buf)
	assert.Zero(t, n, "tenth byte with continuation bit set must fail")

	_, _, err := DecodeStrict(buf)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDecodeAcceptsNonCanonicalLeadingZeroGroups(t *testing.T) {
	// decoders must accept non-canonical (leading-zero-group) encodings
	// even though Encode never emits them.
	nonCanonical := []byte{0x80, 0x80, 0x01} // value 1, padded with two extra zero groups
	v, n := Decode(nonCanonical)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(1), v)
}

func TestDecodeStopsAtFirstBufferPrefix(t *testing.T) {
	buf := Encode(nil, 128)
	trailing := append(append([]byte{}, buf...), 0xff, 0xff)
	v, n := Decode(trailing)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, uint64(128), v)
}
