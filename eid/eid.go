// Package eid implements IPN endpoint identifiers and DTN creation
// timestamps, both of which are encoded on the wire as SDNVs under CBHE
// (dictionary length is always zero; see package bpv6).
package eid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hdtn-go/bpcore/sdnv"
)

// Epoch5050Offset is the number of seconds between the Unix epoch and the
// DTN "year 2000" epoch used by creation timestamps: 2000-01-01T00:00:00Z.
const Epoch5050Offset uint64 = 946684800

// EID is an IPN endpoint identifier: a (node, service) pair. The zero
// value (0,0) is the null endpoint.
type EID struct {
	Node    uint64
	Service uint64
}

// Null is the EID denoting no endpoint.
var Null = EID{}

// IsNull reports whether e is the null endpoint.
func (e EID) IsNull() bool { return e.Node == 0 && e.Service == 0 }

// String renders e in "ipn:N.S" form.
func (e EID) String() string {
	return fmt.Sprintf("ipn:%d.%d", e.Node, e.Service)
}

// ParseIPN parses an "ipn:N.S" string into an EID. It accepts the
// "ipn:N.S" scheme form; the none endpoint is also accepted as "dtn:none".
func ParseIPN(s string) (EID, error) {
	if s == "dtn:none" || s == "" {
		return Null, nil
	}
	const prefix = "ipn:"
	if !strings.HasPrefix(s, prefix) {
		return EID{}, fmt.Errorf("eid: %q missing ipn: scheme", s)
	}
	rest := s[len(prefix):]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return EID{}, fmt.Errorf("eid: %q missing node.service separator", s)
	}
	node, err := strconv.ParseUint(rest[:dot], 10, 64)
	if err != nil {
		return EID{}, fmt.Errorf("eid: %q bad node id: %w", s, err)
	}
	service, err := strconv.ParseUint(rest[dot+1:], 10, 64)
	if err != nil {
		return EID{}, fmt.Errorf("eid: %q bad service id: %w", s, err)
	}
	return EID{Node: node, Service: service}, nil
}

// Serialize appends the CBHE wire form of e (two SDNVs, node then
// service) to buf and returns the extended slice.
func (e EID) Serialize(buf []byte) []byte {
	buf = sdnv.Encode(buf, e.Node)
	buf = sdnv.Encode(buf, e.Service)
	return buf
}

// ErrTruncatedEID is returned by Deserialize when either SDNV fails to
// decode from the remaining buffer.
var ErrTruncatedEID = errors.New("eid: truncated CBHE endpoint id")

// Deserialize reads a CBHE endpoint id from the prefix of buf and returns
// it along with the number of bytes consumed.
func Deserialize(buf []byte) (EID, int, error) {
	node, n1 := sdnv.Decode(buf)
	if n1 == 0 {
		return EID{}, 0, ErrTruncatedEID
	}
	service, n2 := sdnv.Decode(buf[n1:])
	if n2 == 0 {
		return EID{}, 0, ErrTruncatedEID
	}
	return EID{Node: node, Service: service}, n1 + n2, nil
}

// CreationTimestamp is a bundle's (seconds-since-2000, sequence) pair.
type CreationTimestamp struct {
	Seconds  uint64
	Sequence uint64
}

// Serialize appends the two-SDNV wire form of t to buf.
func (t CreationTimestamp) Serialize(buf []byte) []byte {
	buf = sdnv.Encode(buf, t.Seconds)
	buf = sdnv.Encode(buf, t.Sequence)
	return buf
}

// ErrTruncatedTimestamp is returned by DeserializeTimestamp on truncated
// input.
var ErrTruncatedTimestamp = errors.New("eid: truncated creation timestamp")

// DeserializeTimestamp reads a creation timestamp from the prefix of buf.
func DeserializeTimestamp(buf []byte) (CreationTimestamp, int, error) {
	secs, n1 := sdnv.Decode(buf)
	if n1 == 0 {
		return CreationTimestamp{}, 0, ErrTruncatedTimestamp
	}
	seq, n2 := sdnv.Decode(buf[n1:])
	if n2 == 0 {
		return CreationTimestamp{}, 0, ErrTruncatedTimestamp
	}
	return CreationTimestamp{Seconds: secs, Sequence: seq}, n1 + n2, nil
}
