package wshub

import (
	"context"
	"net"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/wshub-go/internal/wsframe"
	"github.com/lk2023060901/wshub-go/pkg/log"
)

// BehaviorFactory constructs a per-connection behavior object bound to
// an already-upgraded net.Conn. The registry and host treat its result
// as opaque apart from the Session capability methods. The default
// factory (DefaultBehaviorFactory)
// just wraps conn in a BaseSession; callers that need custom
// per-message handling (e.g. reading frames off conn themselves) supply
// their own factory at Manager.Add time.
type BehaviorFactory func(ctx context.Context, id string, conn net.Conn) Session

// DefaultBehaviorFactory builds a plain BaseSession over conn, with no
// inbound frame handling of its own — suitable for paths that only
// ever push data to sessions (broadcast/broadping) and never need to
// read client messages.
func DefaultBehaviorFactory(ctx context.Context, id string, conn net.Conn) Session {
	return NewBaseSession(ctx, id, conn)
}

// Host binds a BehaviorFactory to one normalized path, owning its
// Registry and lifecycle.
type Host struct {
	path string

	fragmentSize int // immutable, inherited from the manager at construction
	waitTime     atomic.Duration
	keepClean    bool

	state stateWord

	sessions *Registry

	factory BehaviorFactory

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHost constructs a Host in StateReady. The manager starts it
// immediately afterward if the manager itself is already in Start.
func NewHost(path string, factory BehaviorFactory, fragmentSize int, keepClean bool, waitTime time.Duration) *Host {
	moduleCtx := log.WithModule(context.Background(), "host:"+path)
	// Give each host its own rate-limit budget so a noisy path can't
	// starve the rated warnings of every other path sharing the process.
	log.Ctx(moduleCtx).WithRateGroup("host:"+path, 1, 60)
	ctx, cancel := context.WithCancel(moduleCtx)
	h := &Host{
		path:         path,
		fragmentSize: fragmentSize,
		keepClean:    keepClean,
		sessions:     NewRegistry(),
		factory:      factory,
		ctx:          ctx,
		cancel:       cancel,
	}
	h.waitTime.Store(waitTime)
	return h
}

func (h *Host) Path() string            { return h.path }
func (h *Host) State() State            { return h.state.Load() }
func (h *Host) FragmentSize() int       { return h.fragmentSize }
func (h *Host) WaitTime() time.Duration { return h.waitTime.Load() }
func (h *Host) Sessions() *Registry     { return h.sessions }
func (h *Host) SessionCount() int       { return h.sessions.Count() }

// SetWaitTime updates the host's mirrored wait-time; the manager has
// already validated d > 0 before calling this, and the write to the
// manager always precedes the writes to each host.
func (h *Host) SetWaitTime(d time.Duration) {
	h.waitTime.Store(d)
}

// openable is implemented by *BaseSession and by any Session decorator
// (e.g. compressingSession) that wraps one — Accept uses it instead of
// asserting the concrete *BaseSession type so a BehaviorFactory chain
// built through a decorator still gets its write-timeout and Open
// transition applied.
type openable interface {
	MarkOpen()
	SetWriteTimeout(time.Duration)
}

// Accept builds a Session over conn via the host's BehaviorFactory,
// applies the host's current wait-time as its write timeout, marks it
// Open, and registers it into the host's Registry — the single path an
// upgrade acceptor uses to hand a freshly upgraded connection to the
// core. Returns nil if the host is not in Start.
func (h *Host) Accept(ctx context.Context, id string, conn net.Conn) Session {
	if h.state.Load() != StateStart {
		return nil
	}

	sess := h.factory(ctx, id, conn)
	if o, ok := sess.(openable); ok {
		o.SetWriteTimeout(h.waitTime.Load())
		o.MarkOpen()
	}
	h.sessions.Add(sess)
	return sess
}

// Start transitions the host to StateStart and, if keepClean is set,
// launches the idle-session sweeper.
func (h *Host) Start() {
	h.state.Store(StateStart)
	if h.keepClean {
		go h.sweepLoop()
	}
}

// Stop transitions the host through ShuttingDown to Stop, draining
// every session with the given close frame and timeout.
func (h *Host) Stop(closeFrameBytes []byte, timeout time.Duration) {
	h.state.Store(StateShuttingDown)
	h.cancel()
	h.sessions.Stop(closeFrameBytes, timeout)
	h.state.Store(StateStop)
}

// sweepLoop periodically broadpings the host's own registry and closes
// any session that fails to answer within wait-time.
func (h *Host) sweepLoop() {
	ticker := time.NewTicker(h.waitTime.Load())
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if h.state.Load() != StateStart {
				return
			}
			results := h.sessions.Broadping(wsframe.EmptyUnmaskedPing, h.waitTime.Load())
			for _, sess := range h.sessions.snapshot() {
				if alive, ok := results[sess.ID()]; ok && !alive {
					log.Ctx(h.ctx).With(zap.String("sessionID", sess.ID())).RatedWarn(1, "keep-clean sweep closing unresponsive session")
					h.sessions.Remove(sess.ID())
					_ = sess.Close(nil, 0)
				}
			}
		}
	}
}
