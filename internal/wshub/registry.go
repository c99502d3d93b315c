package wshub

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/wshub-go/internal/wsframe"
	"github.com/lk2023060901/wshub-go/pkg/log"
	"github.com/lk2023060901/wshub-go/pkg/util/conc"
)

// fanoutPoolSize bounds how many sessions a single Broadping or Stop
// call drives concurrently. A host with far more live sessions than
// this still completes the fan-out — surplus work just queues for a
// free worker instead of spawning one goroutine per session.
const fanoutPoolSize = 256

// fanoutPool is shared across every Registry in the process: Broadping
// and Stop are infrequent, bursty operations, so one bounded pool is
// enough to cap total goroutine fan-out without per-registry tuning.
var fanoutPool = mustNewFanoutPool()

func mustNewFanoutPool() *conc.Pool {
	p, err := conc.NewPool(fanoutPoolSize)
	if err != nil {
		panic(err)
	}
	return p
}

// Registry is the per-host, concurrency-safe session-id → Session
// mapping. Iteration always goes through a snapshot copy taken under
// RLock and released before fan-out, so no registry mutation lock is
// ever held across a network suspension point — this is the same
// discipline the host module's own BaseSessionManager.Range uses.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Add registers a session under its own ID. Overwrites any existing
// entry with the same ID — the manager's own path try-insert semantics
// apply to hosts, not to sessions within a host; a second Add under
// the same ID is a caller bug, not a condition this layer guards.
func (r *Registry) Add(sess Session) {
	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	r.mu.Unlock()
}

// Remove deregisters a session by ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Count returns the number of sessions currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// snapshot copies the current session set into a slice so callers can
// iterate without holding mu.
func (r *Registry) snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast sends opcode/payload to every session in the registry in
// parallel, returning the logical AND of per-session results.
// Iteration order is unspecified and must not be relied upon by
// callers.
func (r *Registry) Broadcast(ctx context.Context, opcode wsframe.Opcode, payload []byte) bool {
	snapshot := r.snapshot()
	if len(snapshot) == 0 {
		return true
	}

	results := make([]bool, len(snapshot))
	g, _ := errgroup.WithContext(ctx)
	for i, sess := range snapshot {
		i, sess := i, sess
		g.Go(func() error {
			results[i] = sess.Send(opcode, payload) == nil
			return nil
		})
	}
	_ = g.Wait()

	return combine(results)
}

// BroadcastStream sends a stream-sourced message to every session. A
// reader only supports one forward cursor, so whenever the registry has
// at least one session it buffers the stream into memory once up front
// and hands each session an independent reader over that buffer.
func (r *Registry) BroadcastStream(ctx context.Context, opcode wsframe.Opcode, stream io.Reader) bool {
	snapshot := r.snapshot()
	if len(snapshot) == 0 {
		return true
	}

	buffered, err := io.ReadAll(stream)
	if err != nil {
		log.Ctx(ctx).Warn("broadcast stream: failed to buffer source reader")
		return false
	}

	results := make([]bool, len(snapshot))
	g, _ := errgroup.WithContext(ctx)
	for i, sess := range snapshot {
		i, sess := i, sess
		g.Go(func() error {
			reader := newByteReader(buffered)
			results[i] = sess.SendStream(opcode, reader) == nil
			return nil
		})
	}
	_ = g.Wait()

	return combine(results)
}

// Broadping sends the pre-serialized ping frame to every Open session
// and correlates each session's pong reply within timeout, returning a
// map of session-id → whether the pong arrived in time. Sessions not
// Open at dispatch are recorded false without a send attempt.
func (r *Registry) Broadping(frameBytes []byte, timeout time.Duration) map[string]bool {
	snapshot := r.snapshot()
	result := make(map[string]bool, len(snapshot))
	if len(snapshot) == 0 {
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(snapshot))
	for _, sess := range snapshot {
		sess := sess
		task := func() {
			defer wg.Done()
			ok := sess.ReadyState() == Open && sess.Ping(frameBytes, timeout)
			mu.Lock()
			result[sess.ID()] = ok
			mu.Unlock()
		}
		if err := fanoutPool.Submit(task); err != nil {
			go task()
		}
	}
	wg.Wait()

	return result
}

// Stop sends closeFrameBytes (if non-nil) to every session, waits up to
// timeout for each to drain, then removes it from the registry.
func (r *Registry) Stop(closeFrameBytes []byte, timeout time.Duration) {
	snapshot := r.snapshot()

	var wg sync.WaitGroup
	wg.Add(len(snapshot))
	for _, sess := range snapshot {
		sess := sess
		task := func() {
			defer wg.Done()
			_ = sess.Close(closeFrameBytes, timeout)
		}
		if err := fanoutPool.Submit(task); err != nil {
			go task()
		}
	}
	wg.Wait()

	r.mu.Lock()
	r.sessions = make(map[string]Session)
	r.mu.Unlock()
}

// byteReader is a minimal io.Reader over an in-memory slice, handed out
// once per session so each gets its own forward cursor over the same
// buffered stream bytes.
type byteReader struct {
	b   []byte
	pos int
}

func newByteReader(b []byte) *byteReader {
	return &byteReader{b: b}
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
