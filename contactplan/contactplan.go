// Package contactplan implements the contact-plan scheduler (spec.md
// §4.7): per-contact two-timer link-up/link-down dispatch, published on
// an in-process pubsub.Bus rather than the reference implementation's
// ZMQ socket (see DESIGN.md).
package contactplan

import (
	"sync"
	"time"

	"github.com/hdtn-go/bpcore/clog"
	"github.com/hdtn-go/bpcore/internal/pubsub"
)

// Contact is one scheduled link availability window (spec.md §3).
type Contact struct {
	ContactID          uint64
	SourceNode          uint64
	DestNode            uint64
	FinalDestNodeID     uint64
	FinalDestServiceID  uint64
	StartSeconds        int64
	EndSeconds          int64
	RateBytesPerSec     uint64
}

// Plan is an ordered list of contacts. The scheduler does not
// deduplicate (spec.md §3).
type Plan struct {
	Contacts []Contact
}

// Scheduler loads a Plan and, from an epoch, schedules a LINK_UP timer
// at each contact's start and a LINK_DOWN timer at end+1, publishing
// both on Bus. Each timer callback runs on its own goroutine and calls
// fire directly; there is no internal command loop. mu guards timers
// and the stopped flag.
type Scheduler struct {
	bus   *pubsub.Bus
	log   clog.Clog
	epoch time.Time

	mu      sync.Mutex
	timers  []*time.Timer
	stopped bool
}

// NewScheduler returns a Scheduler publishing on bus, with contact
// start/end times measured in seconds from epoch.
func NewScheduler(bus *pubsub.Bus, epoch time.Time, log clog.Clog) *Scheduler {
	return &Scheduler{bus: bus, log: log, epoch: epoch}
}

// Start schedules every contact in plan. Calling Start twice adds a
// second set of timers for the same plan; callers should construct a
// fresh Scheduler per plan load instead.
func (s *Scheduler) Start(plan Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range plan.Contacts {
		s.scheduleLocked(c)
	}
}

func (s *Scheduler) scheduleLocked(c Contact) {
	upAt := s.epoch.Add(time.Duration(c.StartSeconds) * time.Second)
	downAt := s.epoch.Add(time.Duration(c.EndSeconds+1) * time.Second)

	upTimer := time.AfterFunc(time.Until(upAt), func() {
		s.fire(pubsub.LinkEvent{
			Type:             pubsub.LinkUp,
			FinalDestNodeID:  c.FinalDestNodeID,
			FinalDestService: c.FinalDestServiceID,
			RateBytesPerSec:  c.RateBytesPerSec,
			DurationSeconds:  uint64(c.EndSeconds - c.StartSeconds),
		})
	})
	downTimer := time.AfterFunc(time.Until(downAt), func() {
		s.fire(pubsub.LinkEvent{
			Type:             pubsub.LinkDown,
			FinalDestNodeID:  c.FinalDestNodeID,
			FinalDestService: c.FinalDestServiceID,
		})
	})
	s.timers = append(s.timers, upTimer, downTimer)
}

// fire is the single callback both timer kinds funnel through; it
// publishes unless the scheduler has since been stopped — a timer that
// fired concurrently with Stop must not publish (spec.md §4.7/§5's
// operation_aborted contract).
func (s *Scheduler) fire(ev pubsub.LinkEvent) {
	// mu is held through Publish (which never blocks) so that Stop cannot
	// return between the stopped check and the publish.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.log.Debug("contact plan: timer fired after stop, discarding %s", ev.Type)
		return
	}
	s.log.Debug("contact plan: publishing %s for node=%d service=%d", ev.Type, ev.FinalDestNodeID, ev.FinalDestService)
	s.bus.Publish(ev)
}

// Stop cancels every outstanding timer. Any timer whose callback is
// already running races fire's stopped check rather than the Go runtime
// timer cancellation, since time.Timer.Stop cannot guarantee a
// concurrently-firing callback is suppressed. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for _, t := range s.timers {
		t.Stop()
	}
}
