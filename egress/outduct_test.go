package egress

import (
	"sync"
	"testing"
	"time"

	"github.com/hdtn-go/bpcore/clog"
	"github.com/stretchr/testify/require"
)

func TestForwardSendAckOrdering(t *testing.T) {
	cfg := DefaultConfig()
	// a rate high enough that nothing is ever actually rate-limited
	// within this test, so we are purely exercising FIFO/ring ordering.
	bucket := NewBucket(1<<30, 100*time.Millisecond)

	var mu sync.Mutex
	var sendOrder []string
	var od *Outduct
	od = NewOutduct(cfg, bucket, func(payload []byte) {
		mu.Lock()
		sendOrder = append(sendOrder, string(payload))
		mu.Unlock()
		od.Complete(len(payload))
	}, clog.Nop())
	defer od.Stop()

	var ackCount int
	var ackMu sync.Mutex
	od.OnSuccessfulAck(func(int) {
		ackMu.Lock()
		ackCount++
		ackMu.Unlock()
	})

	require.True(t, od.Forward([]byte("a")))
	require.True(t, od.Forward([]byte("b")))
	require.True(t, od.Forward([]byte("c")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sendOrder) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c"}, sendOrder)

	ackMu.Lock()
	defer ackMu.Unlock()
	require.Equal(t, 3, ackCount)
}

func TestForwardRejectsWhenRingFull(t *testing.T) {
	cfg := Config{MaxUnacked: 1} // ring capacity 11
	require.NoError(t, cfg.Valid())
	bucket := NewBucket(0, 100*time.Millisecond) // rate 0: nothing ever sends

	od := NewOutduct(cfg, bucket, func([]byte) {}, clog.Nop())
	defer od.Stop()

	for i := 0; i < cfg.RingCapacity(); i++ {
		require.True(t, od.Forward([]byte("x")), "payload %d should be admitted", i)
	}
	require.False(t, od.Forward([]byte("overflow")))
}

func TestCompleteByteMismatchIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	bucket := NewBucket(1<<30, 100*time.Millisecond)

	var capturedSend func([]byte)
	od := NewOutduct(cfg, bucket, func(payload []byte) {
		if capturedSend != nil {
			capturedSend(payload)
		}
	}, clog.Nop())
	defer od.Stop()

	capturedSend = func(payload []byte) {
		od.Complete(len(payload) + 1) // wrong byte count
	}

	require.True(t, od.Forward([]byte("mismatch")))
	require.Eventually(t, func() bool {
		return od.Err() != nil
	}, time.Second, time.Millisecond)
}

func TestUpdateRateIsAppliedOnLoop(t *testing.T) {
	cfg := DefaultConfig()
	bucket := NewBucket(8000, 100*time.Millisecond) // 8000 bytes/s, capacity 800
	od := NewOutduct(cfg, bucket, func([]byte) {}, clog.Nop())
	defer od.Stop()

	od.UpdateRate(16000) // -> 2000 bytes/s, capacity 200
	require.Eventually(t, func() bool {
		return bucket.Capacity() == 200
	}, time.Second, time.Millisecond)
}
