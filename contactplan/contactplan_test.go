package contactplan

import (
	"sync"
	"testing"
	"time"

	"github.com/hdtn-go/bpcore/clog"
	"github.com/hdtn-go/bpcore/internal/pubsub"
	"github.com/stretchr/testify/require"
)

func TestSchedulerPublishesLinkUpThenLinkDown(t *testing.T) {
	bus := pubsub.NewBus()
	sub := bus.Subscribe(16)

	epoch := time.Now()
	sched := NewScheduler(bus, epoch, clog.Nop())
	sched.Start(Plan{Contacts: []Contact{
		{ContactID: 1, FinalDestNodeID: 3, FinalDestServiceID: 1, StartSeconds: 0, EndSeconds: 0},
	}})
	defer sched.Stop()

	var mu sync.Mutex
	var events []pubsub.LinkEvent
	done := make(chan struct{})
	go func() {
		for ev := range sub {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
			if len(events) == 2 {
				close(done)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("did not observe both link events in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	require.Equal(t, pubsub.LinkUp, events[0].Type)
	require.Equal(t, pubsub.LinkDown, events[1].Type)
	require.EqualValues(t, 3, events[0].FinalDestNodeID)
}

func TestSchedulerStopSuppressesLaterPublish(t *testing.T) {
	bus := pubsub.NewBus()
	sub := bus.Subscribe(16)

	epoch := time.Now().Add(500 * time.Millisecond)
	sched := NewScheduler(bus, epoch, clog.Nop())
	sched.Start(Plan{Contacts: []Contact{
		{FinalDestNodeID: 9, StartSeconds: 0, EndSeconds: 10},
	}})
	sched.Stop()

	select {
	case ev, ok := <-sub:
		if ok {
			t.Fatalf("expected no event after Stop, got %+v", ev)
		}
	case <-time.After(1200 * time.Millisecond):
		// no event observed before the link-up would have fired: correct.
	}
}

func TestOverlappingContactsProduceIdempotentUps(t *testing.T) {
	// S5-style scenario, scaled to run in test time: two overlapping
	// contacts to the same destination each publish their own LINK_UP
	// and LINK_DOWN; subscribers see both (flat/idempotent state is a
	// subscriber-side concern per spec.md §4.7).
	bus := pubsub.NewBus()
	sub := bus.Subscribe(16)

	epoch := time.Now()
	sched := NewScheduler(bus, epoch, clog.Nop())
	sched.Start(Plan{Contacts: []Contact{
		{FinalDestNodeID: 3, FinalDestServiceID: 1, StartSeconds: 0, EndSeconds: 0},
		{FinalDestNodeID: 3, FinalDestServiceID: 1, StartSeconds: 0, EndSeconds: 1},
	}})
	defer sched.Stop()

	var mu sync.Mutex
	var events []pubsub.LinkEvent
	timeout := time.After(3 * time.Second)
loop:
	for len(events) < 4 {
		select {
		case ev := <-sub:
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		case <-timeout:
			break loop
		}
	}
	require.Len(t, events, 4)
}
