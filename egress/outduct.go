package egress

import (
	"fmt"
	"time"

	"github.com/hdtn-go/bpcore/clog"
)

// SendFunc initiates a non-blocking send of payload. The outduct
// considers the send in flight until the caller reports completion via
// Outduct.Complete.
type SendFunc func(payload []byte)

// Outduct is the rate-limited egress engine for a single convergence
// layer destination (spec.md §4.5). All bucket/FIFO/ring state is
// mutated only on the outduct's own loop goroutine; Forward and
// Complete post work onto that loop rather than touching state
// directly, so no mutex guards the hot path.
type Outduct struct {
	cfg      Config
	bucket   *Bucket
	send     SendFunc
	log      clog.Clog
	onAck    func(sentBytes int)
	take     func(n uint64) bool

	cmds        chan func()
	completions chan int
	done        chan struct{}

	fifo [][]byte
	ring []int // circular buffer of expected byte counts for in-flight sends
	head int
	tail int
	size int

	refreshRunning bool
	refreshTimer   *time.Timer
	lastRefresh    time.Time

	fatal error

	DequeuedPackets uint64
	DequeuedBytes   uint64
	SentPackets     uint64
	SentBytes       uint64
	RateLimited     uint64
}

// NewOutduct constructs an Outduct and starts its loop goroutine.
// cfg must already have passed Valid(). send is invoked on the loop
// goroutine to initiate each dequeued payload's transmission.
func NewOutduct(cfg Config, bucket *Bucket, send SendFunc, log clog.Clog) *Outduct {
	o := &Outduct{
		cfg:         cfg,
		bucket:      bucket,
		send:        send,
		log:         log,
		cmds:        make(chan func()),
		completions: make(chan int, cfg.RingCapacity()),
		done:        make(chan struct{}),
		ring:        make([]int, cfg.RingCapacity()),
		lastRefresh: time.Now(),
	}
	if cfg.RateBitsPerSec > 0 {
		bucket.UpdateRate(cfg.RateBitsPerSec)
	}
	if cfg.AllowBorrow {
		o.take = bucket.TakeBorrowable
	} else {
		o.take = bucket.TakeNonNegative
	}
	go o.loop()
	return o
}

// OnSuccessfulAck registers the callback invoked, on the loop goroutine,
// once a send completes successfully.
func (o *Outduct) OnSuccessfulAck(f func(sentBytes int)) {
	o.post(func() { o.onAck = f })
}

// Forward is the forward path of spec.md §4.5: if the send ring is
// full, it rejects immediately (the caller must retry later); otherwise
// it admits payload onto the FIFO and returns true. The actual send may
// happen synchronously within this call (if the bucket can pay for the
// FIFO head right away) or be deferred to the refresh timer.
func (o *Outduct) Forward(payload []byte) bool {
	accepted := make(chan bool, 1)
	o.post(func() {
		if o.size == len(o.ring) {
			accepted <- false
			return
		}
		o.pushRing(len(payload))
		o.DequeuedPackets++
		o.DequeuedBytes += uint64(len(payload))
		o.fifo = append(o.fifo, payload)
		o.drainLocked()
		accepted <- true
	})
	return <-accepted
}

// Complete reports that the oldest in-flight send finished, having
// transmitted sentBytes. A mismatch against the ring head's recorded
// expected size is an invariant violation (spec.md §7): the outduct
// enters a fatal state and Err will report it from then on. Completions
// are queued on a channel sized to the send ring, so Complete may also
// be called from within the SendFunc itself.
func (o *Outduct) Complete(sentBytes int) {
	select {
	case o.completions <- sentBytes:
	case <-o.done:
	}
}

func (o *Outduct) complete(sentBytes int) {
	expected, ok := o.popRing()
	if !ok {
		o.fail(fmt.Errorf("egress: send completion with empty ring"))
		return
	}
	if expected != sentBytes {
		o.fail(fmt.Errorf("egress: send completion byte mismatch: expected %d, got %d", expected, sentBytes))
		return
	}
	o.SentPackets++
	o.SentBytes += uint64(sentBytes)
	if o.onAck != nil {
		o.onAck(sentBytes)
	}
}

// UpdateRate reconfigures the bucket's rate (bits/sec); existing credit
// is reset (spec.md §4.5).
func (o *Outduct) UpdateRate(bitsPerSec uint64) {
	o.post(func() { o.bucket.UpdateRate(bitsPerSec) })
}

// Err reports the fatal error, if any, that halted this outduct.
func (o *Outduct) Err() error {
	result := make(chan error, 1)
	select {
	case o.cmds <- func() { result <- o.fatal }:
		return <-result
	case <-o.done:
		return o.fatal
	}
}

// Stop halts the loop goroutine. Idempotent.
func (o *Outduct) Stop() {
	select {
	case <-o.done:
		return
	default:
	}
	o.post(func() {
		if o.refreshTimer != nil {
			o.refreshTimer.Stop()
		}
		close(o.done)
	})
}

func (o *Outduct) post(f func()) {
	select {
	case o.cmds <- f:
	case <-o.done:
	}
}

func (o *Outduct) loop() {
	for {
		select {
		case f := <-o.cmds:
			f()
		case n := <-o.completions:
			o.complete(n)
		case <-o.done:
			return
		}
	}
}

func (o *Outduct) fail(err error) {
	if o.fatal == nil {
		o.fatal = err
		o.log.Critical("outduct fatal error: %s", err)
	}
}

// drainLocked sends FIFO entries while the bucket can pay for the head,
// and arms the refresh timer if work remains. Must run on the loop.
func (o *Outduct) drainLocked() {
	for len(o.fifo) > 0 {
		head := o.fifo[0]
		if !o.take(uint64(len(head))) {
			o.RateLimited++
			break
		}
		o.fifo = o.fifo[1:]
		o.send(head)
	}
	if len(o.fifo) > 0 || o.bucket.Remaining() < o.bucket.Capacity() {
		o.armRefresh()
	}
}

func (o *Outduct) armRefresh() {
	if o.refreshRunning {
		return
	}
	o.refreshRunning = true
	o.refreshTimer = time.AfterFunc(o.cfg.RefreshInterval, func() {
		o.post(o.onRefresh)
	})
}

func (o *Outduct) onRefresh() {
	now := time.Now()
	o.bucket.AddTime(now.Sub(o.lastRefresh))
	o.lastRefresh = now
	o.refreshRunning = false
	o.drainLocked()
}

func (o *Outduct) pushRing(expected int) {
	o.ring[o.tail] = expected
	o.tail = (o.tail + 1) % len(o.ring)
	o.size++
}

func (o *Outduct) popRing() (int, bool) {
	if o.size == 0 {
		return 0, false
	}
	v := o.ring[o.head]
	o.head = (o.head + 1) % len(o.ring)
	o.size--
	return v, true
}
