package wshub

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/lk2023060901/wshub-go/internal/pool/ringbuffer"
	"github.com/lk2023060901/wshub-go/internal/wsframe"
)

// ReadyState mirrors the WebSocket connection lifecycle the registry
// inspects before fanning out a send or a ping.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

// Session is the capability-only surface the registry depends on. The
// registry never reaches past these methods into a concrete session's
// fields — a per-connection behavior is modeled as an opaque
// capability object rather than an inheritance target.
type Session interface {
	ID() string
	ReadyState() ReadyState
	Send(opcode wsframe.Opcode, payload []byte) error
	SendStream(opcode wsframe.Opcode, r io.Reader) error
	Ping(frameBytes []byte, timeout time.Duration) bool
	Close(closeFrameBytes []byte, timeout time.Duration) error
}

// outboundFrame is a frame queued for the session's dedicated sender
// goroutine. fragmentSize is only meaningful when stream is non-nil.
type outboundFrame struct {
	opcode       wsframe.Opcode
	payload      []byte
	stream       io.Reader
	fragmentSize int
}

// defaultSendQueueSize mirrors the host module's own per-session queue
// capacity (internal/network/session/base_session.go), chosen there to
// absorb bursts without unbounded growth.
const defaultSendQueueSize = 1024

// streamFragmentSize bounds how large a single wire frame may get when
// a SendStream's reader is written out. By the time a send reaches
// SendStream the manager has already decided the stream path was
// warranted; this only controls the per-frame chunk size of that
// write, not whether to fragment at all.
const streamFragmentSize = 32 * 1024

// BaseSession is the concrete Session implementation backing live
// connections. It follows the host module's own per-session design: a
// single dedicated goroutine owns all writes to the underlying
// net.Conn (sendLoop), fed by a buffered channel, so concurrent
// broadcast fan-out across many sessions never causes interleaved
// writes on one connection. sendBuf is a pooled ring buffer from
// internal/pool/ringbuffer that each frame is serialized into; the frame
// is flushed to the net.Conn in 4096-byte chunks as soon as it is
// written, so frames are not batched together.
type BaseSession struct {
	id string

	ctx    context.Context
	cancel context.CancelFunc

	conn net.Conn

	state atomic.Int32

	// writeTimeout bounds every write to conn; set by the owning host
	// from its wait-time — a transport-level timeout, not a
	// manager-level one.
	writeTimeout time.Duration

	sendBuf   *ringbuffer.RingBuffer
	sendQueue chan outboundFrame

	pendingPong chan struct{}

	closeOnce sync.Once
}

var _ Session = (*BaseSession)(nil)

// NewBaseSession wraps an already-upgraded net.Conn. parent is usually
// the host's own context so a host-wide stop cancels every session at
// once; id should be a freshly minted github.com/google/uuid string.
func NewBaseSession(parent context.Context, id string, conn net.Conn) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &BaseSession{
		id:          id,
		ctx:         ctx,
		cancel:      cancel,
		conn:        conn,
		sendBuf:     ringbuffer.Get(),
		sendQueue:   make(chan outboundFrame, defaultSendQueueSize),
		pendingPong: make(chan struct{}, 1),
	}
	s.state.Store(int32(Connecting))

	go s.sendLoop()
	return s
}

func (s *BaseSession) ID() string { return s.id }

func (s *BaseSession) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// MarkOpen transitions a freshly constructed session to Open once the
// caller has finished whatever post-upgrade setup it needs (e.g.
// registering into a SessionRegistry). Ping, and therefore the
// registry's Broadping, reports false for a session that is not Open;
// Send and SendStream do not check the state and keep queueing frames
// until the session is torn down.
func (s *BaseSession) MarkOpen() {
	s.state.Store(int32(Open))
}

// SetWriteTimeout sets the per-write deadline applied to the
// underlying connection. The owning host calls this once, from Accept,
// with its wait-time at that moment; a later Host.SetWaitTime does not
// reach sessions that were already accepted.
func (s *BaseSession) SetWriteTimeout(d time.Duration) {
	s.writeTimeout = d
}

// Send queues opcode/payload onto the session's private send queue,
// writing as a single frame (no fragment-size awareness — SendStream is
// the fragmenting path). Returns an error only if the session is
// already closed; nil-data/guard checks are the caller's (Registry's)
// responsibility, not this method's.
func (s *BaseSession) Send(opcode wsframe.Opcode, payload []byte) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.sendQueue <- outboundFrame{opcode: opcode, payload: payload}:
		return nil
	}
}

// SendStream queues a streaming send; the sender goroutine drains r
// into memory once and writes it through FrameWriter.WriteMessage with
// a fixed fragment size.
func (s *BaseSession) SendStream(opcode wsframe.Opcode, r io.Reader) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.sendQueue <- outboundFrame{opcode: opcode, stream: r, fragmentSize: streamFragmentSize}:
		return nil
	}
}

// Ping sends frameBytes (already-serialized per wsframe.MakePingFrame)
// and waits up to timeout for the matching pong, recorded via
// RecordPong. A session not Open is reported false without sending
// anything.
func (s *BaseSession) Ping(frameBytes []byte, timeout time.Duration) bool {
	if s.ReadyState() != Open {
		return false
	}

	select {
	case <-s.pendingPong:
	default:
	}

	if err := s.writeRaw(frameBytes); err != nil {
		return false
	}

	select {
	case <-s.pendingPong:
		return true
	case <-time.After(timeout):
		return false
	case <-s.ctx.Done():
		return false
	}
}

// RecordPong notifies a session's in-flight Ping that the peer's pong
// reply arrived. BaseSession never reads from conn and cmd/wshub-server
// has no read loop, so nothing in this module calls RecordPong: with
// DefaultBehaviorFactory, Ping returns false once its timeout expires
// unless the code that reads the peer's frames calls this on a Pong.
func (s *BaseSession) RecordPong() {
	select {
	case s.pendingPong <- struct{}{}:
	default:
	}
}

// Close marks the session Closing, sends closeFrameBytes if non-nil,
// waits up to timeout for the sender goroutine to drain, then tears
// down the connection. Idempotent.
func (s *BaseSession) Close(closeFrameBytes []byte, timeout time.Duration) error {
	if s.ReadyState() == Closed {
		return nil
	}
	s.state.Store(int32(Closing))

	if closeFrameBytes != nil {
		_ = s.writeRaw(closeFrameBytes)
	}

	deadline := time.After(timeout)
drain:
	for {
		select {
		case <-deadline:
			break drain
		default:
			if len(s.sendQueue) == 0 {
				break drain
			}
			time.Sleep(time.Millisecond)
		}
	}

	return s.teardown()
}

func (s *BaseSession) teardown() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closed))
		s.cancel()
		if s.conn != nil {
			err = s.conn.Close()
		}
		if s.sendBuf != nil {
			ringbuffer.Put(s.sendBuf)
			s.sendBuf = nil
		}
	})
	return err
}

func (s *BaseSession) sendLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-s.sendQueue:
			if !ok {
				return
			}
			if err := s.writeFrame(frame); err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (s *BaseSession) writeFrame(frame outboundFrame) error {
	fw := wsframe.NewFrameWriter(s.sendBuf)

	if frame.stream != nil {
		payload, err := io.ReadAll(frame.stream)
		if err != nil {
			return err
		}
		if err := fw.WriteMessage(frame.opcode, payload, frame.fragmentSize); err != nil {
			return err
		}
	} else {
		f := &wsframe.Frame{Fin: true, Opcode: frame.opcode, Payload: frame.payload}
		if err := fw.WriteFrame(f); err != nil {
			return err
		}
	}

	return s.flushSendBuf()
}

// flushSendBuf drains the ring buffer to the underlying connection in
// fixed-size chunks, handling short writes explicitly — the same
// pattern as the host module's own BaseSession.flushSendBuf.
func (s *BaseSession) flushSendBuf() error {
	if s.conn != nil && s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}

	var tmp [4096]byte
	for s.sendBuf.Buffered() > 0 {
		n, _ := s.sendBuf.Read(tmp[:])
		if n <= 0 {
			break
		}
		written := 0
		for written < n {
			m, err := s.conn.Write(tmp[written:n])
			if err != nil {
				return err
			}
			if m <= 0 {
				return nil
			}
			written += m
		}
	}
	return nil
}

func (s *BaseSession) writeRaw(b []byte) error {
	if s.conn != nil && s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	_, err := s.conn.Write(b)
	return err
}
