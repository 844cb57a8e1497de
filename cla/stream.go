package cla

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hdtn-go/bpcore/clog"
)

// defines the keepalive interval range, mirroring the reference
// protocol's idle-timeout-triggered "TESTFR" keepalive.
const (
	KeepAliveIntervalMin = 1 * time.Second
	KeepAliveIntervalMax = 48 * time.Hour
)

// KeepAliveConfig configures the zero-length keepalive frame a
// StreamSource sends on an idle connection, so a peer's stream sink can
// tell a silent-but-open link from a dead one without waiting on the
// TCP stack's own keepalive (spec.md §6's per-outduct
// keepAliveIntervalSeconds). Zero disables keepalives; no default is
// substituted for it.
type KeepAliveConfig struct {
	// Interval is how long the connection must be idle before the
	// keepalive timer sends a zero-length frame. Zero disables keepalives.
	Interval time.Duration
}

// Valid rejects a non-zero interval outside [KeepAliveIntervalMin,
// KeepAliveIntervalMax]. Interval == 0 is accepted: it means "no
// keepalive". Valid never changes the interval.
func (c *KeepAliveConfig) Valid() error {
	if c == nil {
		return errors.New("cla: nil KeepAliveConfig")
	}
	if c.Interval == 0 {
		return nil
	}
	if c.Interval < KeepAliveIntervalMin || c.Interval > KeepAliveIntervalMax {
		return errors.New("cla: KeepAliveConfig.Interval not in [1s, 48h]")
	}
	return nil
}

// DefaultKeepAliveConfig returns the reference protocol's 20s default
// idle interval.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{Interval: 20 * time.Second}
}

// frameHeaderLen is the length of the length-prefix this package uses to
// delimit bundles on a TCPCL data-phase stream: a 4-byte big-endian
// payload length, matching the outer shape of TCPCL's data segment
// without the full v3/v4 contact-header negotiation, which is out of
// scope (spec.md §1 treats the specific socket plumbing as an external
// collaborator; only the sink/source lifecycle contract is specified).
const frameHeaderLen = 4

// MaxFrameLen bounds a single bundle frame read off a stream connection.
const MaxFrameLen = 64 << 20

// StreamSubSink owns one accepted TCP connection's receive loop: it
// reads length-prefixed bundles and hands each to onBundle. Each
// connection is independently owned with its own lifecycle, per
// spec.md §4.6.
type StreamSubSink struct {
	conn         net.Conn
	onBundle     WholeBundleCallback
	log          clog.Clog
	readyDelete  uint32
	closeOnce    sync.Once
}

func newStreamSubSink(conn net.Conn, onBundle WholeBundleCallback, log clog.Clog) *StreamSubSink {
	return &StreamSubSink{conn: conn, onBundle: onBundle, log: log}
}

// run reads frames until the connection errors or closes, then marks
// itself ready-to-delete and invokes onClosed so the manager can remove
// it from its own loop (never from within this callback directly).
func (s *StreamSubSink) run(onClosed func(*StreamSubSink)) {
	var lenBuf [frameHeaderLen]byte
	for {
		if _, err := io.ReadFull(s.conn, lenBuf[:]); err != nil {
			break
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > MaxFrameLen {
			s.log.Error("stream sink: frame length %d exceeds max %d", n, MaxFrameLen)
			break
		}
		if n == 0 {
			// zero-length frame: keepalive, not a bundle.
			continue
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(s.conn, payload); err != nil {
			break
		}
		s.onBundle(payload)
	}
	atomic.StoreUint32(&s.readyDelete, 1)
	onClosed(s)
}

// ReadyToBeDeleted reports whether this sub-sink's connection has ended.
func (s *StreamSubSink) ReadyToBeDeleted() bool {
	return atomic.LoadUint32(&s.readyDelete) == 1
}

// Close closes the underlying connection. Idempotent.
func (s *StreamSubSink) Close() {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

// StreamSinkManager accepts connections on a listener and owns a
// sub-sink per connection. Removal of a finished sub-sink is always
// processed on the manager's own loop goroutine, never from within the
// sub-sink's callback (spec.md §4.6).
type StreamSinkManager struct {
	listener net.Listener
	onBundle WholeBundleCallback
	log      clog.Clog

	mu       sync.Mutex
	subSinks map[*StreamSubSink]struct{}

	removals chan *StreamSubSink
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewStreamSinkManager binds a listener on localPort and starts
// accepting connections, each becoming an independently-owned
// StreamSubSink.
func NewStreamSinkManager(localPort int, onBundle WholeBundleCallback, log clog.Clog) (*StreamSinkManager, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(localPort)))
	if err != nil {
		return nil, err
	}
	m := &StreamSinkManager{
		listener: ln,
		onBundle: onBundle,
		log:      log,
		subSinks: make(map[*StreamSubSink]struct{}),
		removals: make(chan *StreamSubSink, 16),
		done:     make(chan struct{}),
	}
	m.wg.Add(2)
	go m.acceptLoop()
	go m.manageLoop()
	return m, nil
}

func (m *StreamSinkManager) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.done:
				return
			default:
				m.log.Error("stream sink manager: accept error: %s", err)
				return
			}
		}
		sub := newStreamSubSink(conn, m.onBundle, m.log)
		m.mu.Lock()
		m.subSinks[sub] = struct{}{}
		m.mu.Unlock()
		go sub.run(func(s *StreamSubSink) {
			select {
			case m.removals <- s:
			case <-m.done:
			}
		})
	}
}

// manageLoop is the manager's own single-threaded loop; it is the only
// place subSinks is mutated after acceptLoop inserts, satisfying the
// never-remove-from-the-sub-sink's-own-callback contract.
func (m *StreamSinkManager) manageLoop() {
	defer m.wg.Done()
	for {
		select {
		case sub := <-m.removals:
			m.mu.Lock()
			delete(m.subSinks, sub)
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}

// ActiveConnections returns the number of sub-sinks not yet removed.
func (m *StreamSinkManager) ActiveConnections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subSinks)
}

// Stop closes the listener and every open sub-sink connection, then
// waits for both loops to exit.
func (m *StreamSinkManager) Stop() error {
	close(m.done)
	err := m.listener.Close()
	m.mu.Lock()
	for sub := range m.subSinks {
		sub.Close()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return err
}

// StreamSource implements the source contract over a TCPCL-framed TCP
// connection: connect, ready_to_forward, forward, stop.
type StreamSource struct {
	conn      net.Conn
	ready     uint32
	log       clog.Clog
	keepAlive KeepAliveConfig

	mu       sync.Mutex
	lastSend time.Time
	kaTimer  *time.Timer
	kaDone   chan struct{}
}

// NewStreamSource returns an unconnected source with keepalives
// disabled; use NewStreamSourceWithKeepAlive to enable them.
func NewStreamSource(log clog.Clog) *StreamSource {
	return &StreamSource{log: log}
}

// NewStreamSourceWithKeepAlive returns an unconnected source that sends
// a zero-length keepalive frame after cfg.Interval of inactivity, once
// connected. cfg is validated; an out-of-range interval is an error.
func NewStreamSourceWithKeepAlive(log clog.Clog, cfg KeepAliveConfig) (*StreamSource, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	return &StreamSource{log: log, keepAlive: cfg}, nil
}

// Connect dials host:port. Forward returns false until this completes.
func (s *StreamSource) Connect(host string, port int) error {
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	s.conn = conn
	atomic.StoreUint32(&s.ready, 1)
	s.mu.Lock()
	s.lastSend = time.Now()
	s.mu.Unlock()
	if s.keepAlive.Interval > 0 {
		s.kaDone = make(chan struct{})
		s.armKeepAlive()
	}
	return nil
}

// armKeepAlive schedules the next idle check; it reschedules itself
// after every check, mirroring the reference idle-timer's
// rearm-on-every-tick discipline rather than a single one-shot.
func (s *StreamSource) armKeepAlive() {
	s.kaTimer = time.AfterFunc(s.keepAlive.Interval, func() {
		s.mu.Lock()
		idle := time.Since(s.lastSend) >= s.keepAlive.Interval
		s.mu.Unlock()
		if idle && s.ReadyToForward() {
			s.sendKeepAlive()
		}
		select {
		case <-s.kaDone:
			return
		default:
			s.armKeepAlive()
		}
	})
}

func (s *StreamSource) sendKeepAlive() {
	var lenBuf [frameHeaderLen]byte // length 0
	if _, err := s.conn.Write(lenBuf[:]); err != nil {
		s.fail(err)
		return
	}
	s.mu.Lock()
	s.lastSend = time.Now()
	s.mu.Unlock()
}

// ReadyToForward reports whether Connect has completed successfully.
func (s *StreamSource) ReadyToForward() bool {
	return atomic.LoadUint32(&s.ready) == 1
}

// Forward writes payload as one length-prefixed frame. Returns false
// without writing if not yet connected.
func (s *StreamSource) Forward(payload []byte) bool {
	if !s.ReadyToForward() {
		return false
	}
	var lenBuf [frameHeaderLen]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := s.conn.Write(lenBuf[:]); err != nil {
		s.fail(err)
		return false
	}
	if _, err := s.conn.Write(payload); err != nil {
		s.fail(err)
		return false
	}
	s.mu.Lock()
	s.lastSend = time.Now()
	s.mu.Unlock()
	return true
}

func (s *StreamSource) fail(err error) {
	s.log.Error("stream source: write error: %s", err)
	atomic.StoreUint32(&s.ready, 0)
}

// Stop closes the connection and cancels any keepalive timer. Idempotent.
func (s *StreamSource) Stop() error {
	if !atomic.CompareAndSwapUint32(&s.ready, 1, 0) {
		return nil
	}
	if s.kaDone != nil {
		close(s.kaDone)
		if s.kaTimer != nil {
			s.kaTimer.Stop()
		}
	}
	return s.conn.Close()
}
