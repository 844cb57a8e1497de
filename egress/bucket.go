// Package egress implements the rate-limited egress engine (spec.md
// §4.5): a token-bucket pacing primitive shared by every outduct, and
// the outduct engine built on top of it (FIFO queue, send ring,
// sent-callback accounting).
package egress

import (
	"sync"
	"time"
)

// Bucket is a token bucket measured in bytes: SetRate establishes a
// rate and a capacity (rate * window); AddTime replenishes credit as
// time passes, capped at capacity. Both the non-negative and the
// borrowable admission policies share the same underlying credit —
// callers pick a policy per outduct by calling TakeNonNegative or
// TakeBorrowable, never both on the same Bucket (spec.md §9 Open
// Question).
type Bucket struct {
	mu     sync.Mutex
	rate   uint64 // bytes/sec
	window time.Duration
	limit  int64 // capacity = rate * window, in bytes
	remain int64 // current credit; negative only under the borrowable policy
}

// NewBucket returns a Bucket with the given byte rate and replenishment
// window (spec.md's capacity = R * window), starting at full capacity.
func NewBucket(rateBytesPerSec uint64, window time.Duration) *Bucket {
	b := &Bucket{}
	b.setRateLocked(rateBytesPerSec, window)
	b.remain = b.limit
	return b
}

func (b *Bucket) setRateLocked(rateBytesPerSec uint64, window time.Duration) {
	b.rate = rateBytesPerSec
	b.window = window
	b.limit = int64(float64(rateBytesPerSec) * window.Seconds())
}

// UpdateRate reconfigures the bucket for a new rate given in bits per
// second (the wire/config unit throughout spec.md §6), converting to
// bytes per second, and resets existing credit to the new capacity —
// matching TokenRateLimiter's SetRate contract.
func (b *Bucket) UpdateRate(bitsPerSec uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setRateLocked(bitsPerSec/8, b.window)
	b.remain = b.limit
}

// AddTime credits the bucket for elapsed time at the current rate,
// capped at capacity. Called by the refresh timer with the time since
// the previous refresh.
func (b *Bucket) AddTime(elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	added := int64(float64(b.rate) * elapsed.Seconds())
	b.remain += added
	if b.remain > b.limit {
		b.remain = b.limit
	}
}

// TakeNonNegative admits a take of n bytes only if it would not drop
// remain below zero.
func (b *Bucket) TakeNonNegative(n uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int64(n) > b.remain {
		return false
	}
	b.remain -= int64(n)
	return true
}

// TakeBorrowable admits a take of n bytes whenever remain >= 0 at entry,
// even if the take drives remain negative; once negative, further takes
// are refused until AddTime replenishes remain back to non-negative.
func (b *Bucket) TakeBorrowable(n uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remain < 0 {
		return false
	}
	b.remain -= int64(n)
	return true
}

// CanTake reports whether the borrowable policy currently has credit
// (remain >= 0); useful for a caller deciding whether to attempt a take
// without mutating state.
func (b *Bucket) CanTake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remain >= 0
}

// Remaining returns the current credit, which may be negative under the
// borrowable policy.
func (b *Bucket) Remaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remain
}

// Capacity returns the bucket's current capacity (rate * window).
func (b *Bucket) Capacity() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}
