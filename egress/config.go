package egress

import (
	"errors"
	"time"
)

// defines the outduct configuration range, mirroring the window/refresh
// cadence the reference rate limiter uses.
const (
	WindowMin = 10 * time.Millisecond
	WindowMax = 10 * time.Second

	RefreshIntervalMin = 1 * time.Millisecond
	RefreshIntervalMax = 1 * time.Second

	MaxUnackedMin = 1
	MaxUnackedMax = 1 << 20
)

// Config configures one outduct. The default is applied for each
// unspecified value.
type Config struct {
	// RateBitsPerSec is the outbound rate limit, bits/sec (spec.md §6's
	// config unit); the bucket converts to bytes/sec internally.
	RateBitsPerSec uint64

	// Window is the token bucket's refresh window; capacity = rate *
	// Window. Default 100ms (spec.md §4.5).
	Window time.Duration

	// RefreshInterval is how often the bucket is credited and the FIFO
	// drained. Default 20ms (spec.md §4.5).
	RefreshInterval time.Duration

	// MaxUnacked bounds the number of in-flight sends; the send ring's
	// capacity is MaxUnacked + 10 (spec.md §4.5's admission rule).
	MaxUnacked int

	// AllowBorrow selects the borrowable token-bucket policy over the
	// default non-negative one (spec.md §9 Open Question).
	AllowBorrow bool
}

// Valid applies defaults for each unspecified field and range-checks
// the rest.
func (c *Config) Valid() error {
	if c == nil {
		return errors.New("egress: nil config")
	}
	if c.Window == 0 {
		c.Window = 100 * time.Millisecond
	} else if c.Window < WindowMin || c.Window > WindowMax {
		return errors.New("egress: Window out of range")
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 20 * time.Millisecond
	} else if c.RefreshInterval < RefreshIntervalMin || c.RefreshInterval > RefreshIntervalMax {
		return errors.New("egress: RefreshInterval out of range")
	}
	if c.MaxUnacked == 0 {
		c.MaxUnacked = 100
	} else if c.MaxUnacked < MaxUnackedMin || c.MaxUnacked > MaxUnackedMax {
		return errors.New("egress: MaxUnacked out of range")
	}
	return nil
}

// RingCapacity is the send ring's capacity under this config: MaxUnacked
// + 10 (spec.md §4.5).
func (c *Config) RingCapacity() int {
	return c.MaxUnacked + 10
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	c := Config{}
	_ = c.Valid()
	return c
}
