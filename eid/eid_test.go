package eid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEIDRoundTrip(t *testing.T) {
	e := EID{Node: 2, Service: 1}
	buf := e.Serialize(nil)
	got, n, err := Deserialize(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, e, got)
}

func TestParseIPN(t *testing.T) {
	e, err := ParseIPN("ipn:2.1")
	require.NoError(t, err)
	assert.Equal(t, EID{Node: 2, Service: 1}, e)

	n, err := ParseIPN("dtn:none")
	require.NoError(t, err)
	assert.True(t, n.IsNull())

	_, err = ParseIPN("not-an-eid")
	assert.Error(t, err)
}

func TestEIDString(t *testing.T) {
	assert.Equal(t, "ipn:2.1", EID{Node: 2, Service: 1}.String())
}

func TestCreationTimestampRoundTrip(t *testing.T) {
	ts := CreationTimestamp{Seconds: 12345, Sequence: 7}
	buf := ts.Serialize(nil)
	got, n, err := DeserializeTimestamp(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, ts, got)
}

func TestDeserializeTruncated(t *testing.T) {
	_, _, err := Deserialize([]byte{0x81})
	assert.ErrorIs(t, err, ErrTruncatedEID)

	_, _, err = DeserializeTimestamp(nil)
	assert.ErrorIs(t, err, ErrTruncatedTimestamp)
}
