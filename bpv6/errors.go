package bpv6

import "errors"

// errTruncated is wrapped into field-specific errors throughout this
// package; callers that only care about "was the input too short" can
// errors.Is against it.
var errTruncated = errors.New("truncated input")

// ErrTruncated is the exported form for callers outside this package.
var ErrTruncated = errTruncated
