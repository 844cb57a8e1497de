// Package forwarder implements the forwarding orchestration layer
// (spec.md §4.4 dispatch responsibilities, §8 L8): admission gated on
// contact-plan link state, custody bookkeeping, bundle-age block
// maintenance, and dispatch to the rate-limited egress engine.
package forwarder

import (
	"fmt"
	"sync"
	"time"

	"github.com/hdtn-go/bpcore/bpv6"
	"github.com/hdtn-go/bpcore/clog"
	"github.com/hdtn-go/bpcore/custody"
	"github.com/hdtn-go/bpcore/egress"
	"github.com/hdtn-go/bpcore/internal/pubsub"
)

// BundleRef is an opaque reference to a bundle held by the external
// storage collaborator (spec.md §1); this package never reads or writes
// bundle bytes itself beyond what is needed to forward them once.
type BundleRef = string

// Config selects forwarder-wide behavior.
type Config struct {
	// CustodyTimeout bounds how long an accepted custody obligation
	// waits before Expire reports it should be reforwarded.
	CustodyTimeout time.Duration

	// CutThroughOnlyTest bypasses custody acceptance/CTEB attachment
	// entirely and forwards bundles directly to egress the moment a
	// destination's link is up (SPEC_FULL.md §C.3); used for
	// connectivity testing without the custody bookkeeping overhead.
	CutThroughOnlyTest bool
}

// Forwarder wires the contact-plan, custody, and egress layers
// together: it tracks per-destination link state from a pubsub.Bus,
// decides whether to admit a bundle for forwarding, optionally accepts
// custody, stamps a bundle-age block, and hands the serialized bundle to
// the destination's Outduct.
type Forwarder struct {
	cfg   Config
	log   clog.Clog
	table *custody.Table[BundleRef]

	mu       sync.Mutex
	linkUp   map[destKey]bool
	outducts map[destKey]*egress.Outduct
}

type destKey struct {
	node    uint64
	service uint64
}

// New returns a Forwarder with an empty custody table and no registered
// outducts or observed link state.
func New(cfg Config, log clog.Clog) *Forwarder {
	return &Forwarder{
		cfg:      cfg,
		log:      log,
		table:    custody.NewTable[BundleRef](log),
		linkUp:   make(map[destKey]bool),
		outducts: make(map[destKey]*egress.Outduct),
	}
}

// RegisterOutduct associates an Outduct with a final-destination EID
// (node, service); Dispatch uses this to find where a bundle goes.
func (f *Forwarder) RegisterOutduct(node, service uint64, od *egress.Outduct) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outducts[destKey{node, service}] = od
}

// ConsumeLinkEvents reads LINK_UP/LINK_DOWN events from sub until it is
// closed, updating per-destination link state. Intended to be run in its
// own goroutine against a pubsub.Bus subscription.
func (f *Forwarder) ConsumeLinkEvents(sub <-chan pubsub.LinkEvent) {
	for ev := range sub {
		f.mu.Lock()
		key := destKey{ev.FinalDestNodeID, ev.FinalDestService}
		f.linkUp[key] = ev.Type == pubsub.LinkUp
		f.mu.Unlock()
		f.log.Debug("forwarder: link %s for node=%d service=%d", ev.Type, ev.FinalDestNodeID, ev.FinalDestService)
	}
}

// LinkUp reports the last-observed state for (node, service); unknown
// destinations default to down.
func (f *Forwarder) LinkUp(node, service uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linkUp[destKey{node, service}]
}

// ErrLinkDown is returned by Dispatch when the destination's link is
// not currently up.
var ErrLinkDown = fmt.Errorf("forwarder: destination link is down")

// ErrNoOutduct is returned by Dispatch when no outduct is registered for
// the bundle's destination.
var ErrNoOutduct = fmt.Errorf("forwarder: no outduct registered for destination")

// Dispatch is the orchestration path of spec.md §2's data flow: given a
// decoded bundle and its bundle reference (for custody bookkeeping) and
// the time the bundle was created (for bundle-age maintenance), it
// gates on link state, optionally accepts custody and attaches a CTEB,
// stamps or updates the bundle-age block, serializes, and forwards to
// the destination's Outduct.
func (f *Forwarder) Dispatch(b *bpv6.Bundle, ref BundleRef, createdAt time.Time) error {
	dest := b.Primary.Destination
	if !f.LinkUp(dest.Node, dest.Service) {
		return ErrLinkDown
	}

	f.mu.Lock()
	od, ok := f.outducts[destKey{dest.Node, dest.Service}]
	f.mu.Unlock()
	if !ok {
		return ErrNoOutduct
	}

	if !f.cfg.CutThroughOnlyTest && b.Primary.Flags.Has(bpv6.FlagCustodyRequested) {
		id := f.table.Accept(ref, f.cfg.CustodyTimeout)
		attachCTEB(b, id)
	}

	stampBundleAge(b, time.Since(createdAt))

	buf, err := b.Serialize(nil)
	if err != nil {
		return fmt.Errorf("forwarder: serializing bundle: %w", err)
	}
	if !od.Forward(buf) {
		return fmt.Errorf("forwarder: outduct rejected bundle (ring full)")
	}
	return nil
}

// attachCTEB appends a CTEB canonical block carrying id after the
// bundle's final (is-last-block) block, clearing that block's
// is-last-block flag and setting it on the new CTEB.
func attachCTEB(b *bpv6.Bundle, id uint64) {
	if len(b.Blocks) == 0 {
		return
	}
	last := len(b.Blocks) - 1
	b.Blocks[last].Flags &^= bpv6.CanonicalFlagIsLastBlock
	b.Blocks = append(b.Blocks, bpv6.CanonicalBlock{
		Type:  bpv6.BlockTypeCTEB,
		Flags: bpv6.CanonicalFlagIsLastBlock,
		Data:  &bpv6.CTEBBlock{CustodyID: id},
	})
}

// stampBundleAge updates an existing bundle-age extension block or, if
// there is none, appends one as the new final block, for sources
// without a synchronized clock
// (SPEC_FULL.md §C.4).
func stampBundleAge(b *bpv6.Bundle, age time.Duration) {
	micros := uint64(age.Microseconds())
	for i := range b.Blocks {
		if ab, ok := b.Blocks[i].Data.(*bpv6.BundleAgeBlock); ok {
			ab.AgeMicroseconds = micros
			return
		}
	}
	if len(b.Blocks) == 0 {
		return
	}
	last := len(b.Blocks) - 1
	b.Blocks[last].Flags &^= bpv6.CanonicalFlagIsLastBlock
	b.Blocks = append(b.Blocks, bpv6.CanonicalBlock{
		Type:  bpv6.BlockTypeBundleAge,
		Flags: bpv6.CanonicalFlagIsLastBlock,
		Data:  &bpv6.BundleAgeBlock{AgeMicroseconds: micros},
	})
}

// ConsumeACS discharges custody obligations covered by an incoming
// aggregate custody signal.
func (f *Forwarder) ConsumeACS(acs *bpv6.AggregateCustodySignal) []uint64 {
	return f.table.Discharge(acs.Fills)
}

// ExpireCustody checks whether id's obligation has timed out, returning
// the bundle reference and whether it should be reforwarded.
func (f *Forwarder) ExpireCustody(id uint64) (BundleRef, bool) {
	return f.table.Expire(id)
}
