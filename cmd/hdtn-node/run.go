package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hdtn-go/bpcore/bpv6"
	"github.com/hdtn-go/bpcore/cla"
	"github.com/hdtn-go/bpcore/clog"
	"github.com/hdtn-go/bpcore/config"
	"github.com/hdtn-go/bpcore/contactplan"
	"github.com/hdtn-go/bpcore/egress"
	"github.com/hdtn-go/bpcore/forwarder"
	"github.com/hdtn-go/bpcore/internal/pubsub"
	"github.com/spf13/cobra"
)

type runnerOptions struct {
	hdtnConfigFile  string
	contactPlanFile string
	eventsFile      string
	cutThroughOnly  bool
}

const (
	clDatagram = "udp"
	clStream   = "tcp"

	defaultRingSize      = 64
	defaultMaxPacketSize = 65507
)

// runNode loads configuration, wires the scheduler/forwarder/egress/CLA
// layers together, and runs until interrupted (spec.md §6's CLI
// contract: exit 0 on clean shutdown, non-zero on config/file error),
// grounded on the reference one-process runner's wiring order: egress
// first, then ingress, then block until signalled.
func runNode(cmd *cobra.Command, opts runnerOptions) error {
	log := clog.New("hdtn-node")

	nodeCfg, err := config.LoadNodeConfigFile(opts.hdtnConfigFile)
	if err != nil {
		return fmt.Errorf("loading hdtn config file: %w", err)
	}
	planFile, err := config.LoadContactPlanFile(opts.contactPlanFile)
	if err != nil {
		return fmt.Errorf("loading contact plan file: %w", err)
	}

	var eventsOut *os.File
	if opts.eventsFile != "" {
		eventsOut, err = os.OpenFile(opts.eventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening events file: %w", err)
		}
		defer eventsOut.Close()
	}

	bus := pubsub.NewBus()
	fwd := forwarder.New(forwarder.Config{
		CustodyTimeout:     time.Minute,
		CutThroughOnlyTest: opts.cutThroughOnly,
	}, log.WithComponent("forwarder"))

	plan, err := buildPlan(planFile)
	if err != nil {
		return fmt.Errorf("building contact plan: %w", err)
	}

	sched := contactplan.NewScheduler(bus, time.Now(), log.WithComponent("scheduler"))
	sched.Start(plan)
	defer sched.Stop()

	fwdSub := bus.Subscribe(64)
	go fwd.ConsumeLinkEvents(fwdSub)

	var eventsSub <-chan pubsub.LinkEvent
	eventsDone := make(chan struct{})
	if eventsOut != nil {
		eventsSub = bus.Subscribe(64)
		go logLinkEvents(eventsSub, eventsOut, eventsDone)
	} else {
		close(eventsDone)
	}

	cleanup := newCleanupList()
	defer func() {
		if err := cleanup.runAll(); err != nil {
			log.Error("cleanup: %s", err)
		}
	}()

	log.Critical("starting egress...")
	outducts, err := startOutducts(nodeCfg.Outducts, plan, fwd, log.WithComponent("egress"), cleanup)
	if err != nil {
		return fmt.Errorf("starting outducts: %w", err)
	}
	_ = outducts

	log.Critical("starting ingress...")
	if err := startInducts(nodeCfg.Inducts, fwd, log.WithComponent("ingress"), cleanup); err != nil {
		return fmt.Errorf("starting inducts: %w", err)
	}

	log.Critical("node running, myNodeId=%d", nodeCfg.MyNodeID)
	waitForSignal()
	log.Critical("shutting down")
	return nil
}

// buildPlan converts the loaded contact-plan file into contactplan.Plan,
// resolving each row's IPN final destination.
func buildPlan(f *config.ContactPlanFile) (contactplan.Plan, error) {
	plan := contactplan.Plan{Contacts: make([]contactplan.Contact, 0, len(f.Contacts))}
	for _, row := range f.Contacts {
		dest, err := row.ParsedFinalDestination()
		if err != nil {
			return plan, fmt.Errorf("contact %d: %w", row.Contact, err)
		}
		plan.Contacts = append(plan.Contacts, contactplan.Contact{
			ContactID:          row.Contact,
			SourceNode:         row.Source,
			DestNode:           row.Dest,
			FinalDestNodeID:    dest.Node,
			FinalDestServiceID: dest.Service,
			StartSeconds:       row.Start,
			EndSeconds:         row.End,
			RateBytesPerSec:    row.Rate,
		})
	}
	return plan, nil
}

// startOutducts creates one egress.Outduct per configured outduct and
// registers it against every contact-plan destination, mirroring the
// reference one-process runner's flat single-outduct-set routing (this
// node's scope does not include a multi-hop routing table).
func startOutducts(cfgs []config.OutductConfig, plan contactplan.Plan, fwd *forwarder.Forwarder, log clog.Clog, cleanup *cleanupList) ([]*egress.Outduct, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}
	if len(cfgs) > 1 {
		log.Warn("multiple outducts configured; this node forwards every destination through the first one, since destination-to-outduct routing is out of scope")
	}
	oc := cfgs[0]

	var send egress.SendFunc
	var od *egress.Outduct

	switch strings.ToLower(oc.ConvergenceLayer) {
	case clDatagram:
		src := cla.NewDatagramSource(log.WithComponent(clDatagram))
		if err := src.Connect(oc.RemoteHostname, oc.RemotePort); err != nil {
			return nil, fmt.Errorf("connecting datagram outduct: %w", err)
		}
		send = func(payload []byte) {
			if src.Forward(payload) {
				od.Complete(len(payload))
			}
		}
		cleanup.add(func() error { return src.Stop() })
	case clStream:
		src, err := cla.NewStreamSourceWithKeepAlive(log.WithComponent(clStream), cla.KeepAliveConfig{Interval: time.Duration(oc.KeepAliveIntervalSeconds) * time.Second})
		if err != nil {
			return nil, fmt.Errorf("configuring stream outduct keepalive: %w", err)
		}
		if err := src.Connect(oc.RemoteHostname, oc.RemotePort); err != nil {
			return nil, fmt.Errorf("connecting stream outduct: %w", err)
		}
		send = func(payload []byte) {
			if src.Forward(payload) {
				od.Complete(len(payload))
			}
		}
		cleanup.add(func() error { return src.Stop() })
	default:
		return nil, fmt.Errorf("unknown outduct convergenceLayer %q", oc.ConvergenceLayer)
	}

	cfg := egress.DefaultConfig()
	if oc.BundlePipelineLimit > 0 {
		cfg.MaxUnacked = oc.BundlePipelineLimit
	}
	bucket := egress.NewBucket(0, cfg.Window)
	od = egress.NewOutduct(cfg, bucket, send, log.WithComponent("outduct"))
	cleanup.add(func() error { od.Stop(); return nil })

	seen := make(map[[2]uint64]bool)
	for _, c := range plan.Contacts {
		key := [2]uint64{c.FinalDestNodeID, c.FinalDestServiceID}
		if seen[key] {
			continue
		}
		seen[key] = true
		fwd.RegisterOutduct(c.FinalDestNodeID, c.FinalDestServiceID, od)
		if c.RateBytesPerSec > 0 {
			od.UpdateRate(c.RateBytesPerSec * 8)
		}
	}

	return []*egress.Outduct{od}, nil
}

// startInducts creates one receive-side sink per configured induct.
// Each delivered datagram/frame is parsed as a whole bundle; admin
// records carrying an aggregate custody signal discharge the local
// custody table, everything else is handed to the forwarder as a
// forward candidate (spec.md §2's one-process data flow).
func startInducts(cfgs []config.InductConfig, fwd *forwarder.Forwarder, log clog.Clog, cleanup *cleanupList) error {
	for _, ic := range cfgs {
		ic := ic
		onBundle := func(payload []byte) {
			handleInboundBundle(payload, fwd, log)
		}
		switch strings.ToLower(ic.ConvergenceLayer) {
		case clDatagram:
			ringSize := ic.NumRxCircularBufferElements
			if ringSize <= 0 {
				ringSize = defaultRingSize
			}
			maxPkt := ic.NumRxCircularBufferBytesPerElement
			if maxPkt <= 0 {
				maxPkt = defaultMaxPacketSize
			}
			sink, err := cla.NewDatagramSink(ic.BoundPort, ringSize, maxPkt, onBundle, log.WithComponent(clDatagram))
			if err != nil {
				return fmt.Errorf("binding datagram induct on port %d: %w", ic.BoundPort, err)
			}
			cleanup.add(func() error { return sink.Stop() })
		case clStream:
			mgr, err := cla.NewStreamSinkManager(ic.BoundPort, onBundle, log.WithComponent(clStream))
			if err != nil {
				return fmt.Errorf("binding stream induct on port %d: %w", ic.BoundPort, err)
			}
			cleanup.add(func() error { return mgr.Stop() })
		default:
			return fmt.Errorf("unknown induct convergenceLayer %q", ic.ConvergenceLayer)
		}
	}
	return nil
}

func handleInboundBundle(payload []byte, fwd *forwarder.Forwarder, log clog.Clog) {
	b, _, err := bpv6.Deserialize(payload)
	if err != nil {
		log.Warn("ingress: dropping malformed bundle: %s", err)
		return
	}
	if b.IsAdminRecord() {
		handleInboundAdminRecord(b, fwd, log)
		return
	}
	ref := bundleRef(b)
	if err := fwd.Dispatch(b, ref, time.Now()); err != nil {
		log.Debug("ingress: not forwarding bundle %s: %s", ref, err)
	}
}

func handleInboundAdminRecord(b *bpv6.Bundle, fwd *forwarder.Forwarder, log clog.Clog) {
	consumed := false
	for _, blk := range b.Blocks {
		rec, ok := blk.Data.(*bpv6.AdministrativeRecord)
		if !ok {
			continue
		}
		acs, ok := rec.Content.(*bpv6.AggregateCustodySignal)
		if !ok {
			continue
		}
		discharged := fwd.ConsumeACS(acs)
		consumed = true
		log.Debug("ingress: ACS discharged %d custody ids", len(discharged))
	}
	if consumed {
		return
	}
	ref := bundleRef(b)
	if err := fwd.Dispatch(b, ref, time.Now()); err != nil {
		log.Debug("ingress: not forwarding admin record %s: %s", ref, err)
	}
}

// bundleRef derives a stable reference for a bundle from its source EID
// and creation timestamp, matching BPv6's own notion of bundle identity
// (spec.md §3).
func bundleRef(b *bpv6.Bundle) string {
	return fmt.Sprintf("%d.%d-%d.%d", b.Primary.Source.Node, b.Primary.Source.Service, b.Primary.Creation.Seconds, b.Primary.Creation.Sequence)
}

func logLinkEvents(sub <-chan pubsub.LinkEvent, out *os.File, done chan struct{}) {
	defer close(done)
	enc := json.NewEncoder(out)
	for ev := range sub {
		record := struct {
			Type             string `json:"type"`
			FinalDestNodeID  uint64 `json:"finalDestNodeId"`
			FinalDestService uint64 `json:"finalDestServiceId"`
			RateBytesPerSec  uint64 `json:"rateBytesPerSec,omitempty"`
			DurationSeconds  uint64 `json:"durationSeconds,omitempty"`
		}{
			Type:             ev.Type.String(),
			FinalDestNodeID:  ev.FinalDestNodeID,
			FinalDestService: ev.FinalDestService,
			RateBytesPerSec:  ev.RateBytesPerSec,
			DurationSeconds:  ev.DurationSeconds,
		}
		if err := enc.Encode(record); err != nil {
			return
		}
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
