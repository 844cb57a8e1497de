// Package cla implements the convergence-layer sinks and sources
// (spec.md §4.6): a datagram (UDP) flavor, and a stream (TCPCL-framed
// TCP) flavor with a sink manager over its per-connection sub-sinks.
// The underlying socket plumbing is an external collaborator interface
// (spec.md §1); this package owns the ring/overrun/lifecycle contract
// layered on top of stdlib net.
package cla

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hdtn-go/bpcore/clog"
)

// WholeBundleCallback is invoked once per received datagram, each of
// which is assumed to carry exactly one whole bundle (UDP convergence
// layer does not fragment at this layer).
type WholeBundleCallback func(payload []byte)

// DatagramSink owns a UDP socket, a receive ring of packet buffers, and
// a consumer goroutine that drains the ring into the caller's
// WholeBundleCallback (spec.md §4.6).
type DatagramSink struct {
	conn   *net.UDPConn
	onBundle WholeBundleCallback
	log    clog.Clog

	ring   chan []byte
	done   chan struct{}
	wg     sync.WaitGroup

	overrunCount    uint64
	overrunLogged   uint32 // 0/1, CAS-guarded: overrun log emitted once per sink
	safeToDelete    uint32
}

// NewDatagramSink binds a UDP socket on the given local port and starts
// the receive and consumer loops. maxPacketSize bounds a single read;
// ringSize bounds the number of undelivered packets buffered between
// the receiver and the consumer.
func NewDatagramSink(localPort int, ringSize, maxPacketSize int, onBundle WholeBundleCallback, log clog.Clog) (*DatagramSink, error) {
	addr := &net.UDPAddr{Port: localPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	s := &DatagramSink{
		conn:     conn,
		onBundle: onBundle,
		log:      log,
		ring:     make(chan []byte, ringSize),
		done:     make(chan struct{}),
	}
	s.wg.Add(2)
	go s.receiveLoop(maxPacketSize)
	go s.consumeLoop()
	return s, nil
}

func (s *DatagramSink) receiveLoop(maxPacketSize int) {
	defer s.wg.Done()
	for {
		buf := make([]byte, maxPacketSize)
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.Error("udp sink: read error: %s", err)
				return
			}
		}
		select {
		case s.ring <- buf[:n]:
		default:
			atomic.AddUint64(&s.overrunCount, 1)
			if atomic.CompareAndSwapUint32(&s.overrunLogged, 0, 1) {
				s.log.Warn("udp sink: receive ring overrun, dropping packet")
			}
		}
	}
}

func (s *DatagramSink) consumeLoop() {
	defer s.wg.Done()
	for {
		select {
		case buf := <-s.ring:
			s.onBundle(buf)
		case <-s.done:
			return
		}
	}
}

// OverrunCount returns the number of packets dropped due to a full
// receive ring.
func (s *DatagramSink) OverrunCount() uint64 {
	return atomic.LoadUint64(&s.overrunCount)
}

// ReadyToBeDeleted reports whether Stop has completed teardown.
func (s *DatagramSink) ReadyToBeDeleted() bool {
	return atomic.LoadUint32(&s.safeToDelete) == 1
}

// Stop closes the socket and waits for both loops to exit.
func (s *DatagramSink) Stop() error {
	close(s.done)
	err := s.conn.Close()
	s.wg.Wait()
	atomic.StoreUint32(&s.safeToDelete, 1)
	return err
}

// DatagramSource implements the source contract of spec.md §4.6 over a
// UDP socket: connect, ready_to_forward, forward, stop.
type DatagramSource struct {
	conn  *net.UDPConn
	ready uint32
	log   clog.Clog
}

// NewDatagramSource returns an unconnected source; call Connect before
// Forward.
func NewDatagramSource(log clog.Clog) *DatagramSource {
	return &DatagramSource{log: log}
}

// Connect resolves host:port and dials a UDP socket to it. Forward
// returns false until this completes.
func (s *DatagramSource) Connect(host string, port int) error {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	s.conn = conn
	atomic.StoreUint32(&s.ready, 1)
	return nil
}

// ReadyToForward reports whether Connect has completed successfully.
func (s *DatagramSource) ReadyToForward() bool {
	return atomic.LoadUint32(&s.ready) == 1
}

// Forward writes payload as a single UDP datagram. It returns false
// without writing if the source is not yet connected.
func (s *DatagramSource) Forward(payload []byte) bool {
	if !s.ReadyToForward() {
		return false
	}
	_, err := s.conn.Write(payload)
	if err != nil {
		s.log.Error("udp source: write error: %s", err)
		atomic.StoreUint32(&s.ready, 0)
		return false
	}
	return true
}

// Stop closes the underlying socket. Idempotent.
func (s *DatagramSource) Stop() error {
	if !atomic.CompareAndSwapUint32(&s.ready, 1, 0) {
		return nil
	}
	return s.conn.Close()
}
