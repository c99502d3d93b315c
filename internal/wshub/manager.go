// Package wshub implements the WebSocket service-manager and
// session-broadcast core: a path-keyed registry of endpoint services,
// each owning a concurrency-safe session registry, fanned out to with
// bounded-concurrency broadcasts, ping correlation, and orderly
// shutdown.
package wshub

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/wshub-go/internal/wsframe"
	"github.com/lk2023060901/wshub-go/pkg/log"
	"github.com/lk2023060901/wshub-go/pkg/metrics"
)

// DefaultWaitTime is the manager's constructor default. This constant
// bypasses SetWaitTime's validation path entirely — only explicit
// SetWaitTime calls run the d <= 0 check.
const DefaultWaitTime = time.Second

// CloseArgs carries the application-chosen payload for a manager Stop,
// and is what build the close frame from.
type CloseArgs struct {
	Code    uint16
	Payload string
}

// Manager owns the path→Host map and the manager-level lifecycle state
// machine.
type Manager struct {
	fragmentSize int
	keepClean    bool

	waitTime atomic.Duration
	state    stateWord

	mu    sync.RWMutex
	hosts map[string]*Host

	startOnce sync.Once
}

// NewManager constructs a Manager in StateReady with the given
// immutable fragment-size/keep-clean parameters and the hard-coded
// default wait-time.
func NewManager(fragmentSize int, keepClean bool) *Manager {
	m := &Manager{
		fragmentSize: fragmentSize,
		keepClean:    keepClean,
		hosts:        make(map[string]*Host),
	}
	m.waitTime.Store(DefaultWaitTime)
	return m
}

func (m *Manager) State() State            { return m.state.Load() }
func (m *Manager) WaitTime() time.Duration { return m.waitTime.Load() }

// Add registers path bound to factory. A path already present is
// silently ignored — idempotent add semantics. If the manager is
// already in Start, the new host is started before Add returns, and
// is fully visible to any broadcast that begins after Add returns.
// Once Stop has begun (ShuttingDown or Stop), Add does nothing.
//
// The existence check, host construction, and insertion all happen
// inside one critical section — the same discipline the host module's
// own BaseSessionManager.Register uses for its id->session map — so
// two racing Add calls for the same path can never both observe the
// path absent: the second one always finds it already present under
// the same lock the first one inserted it under, and returns silently
// instead of racing to a commit-time collision. The re-check right
// before insertion is an invariant assertion, not a race window: mu is
// held continuously from the first check onward, so it can only fire
// if a future change to this function drops that discipline.
func (m *Manager) Add(path string, factory BehaviorFactory) {
	normalized := Normalize(path)

	m.mu.Lock()
	if s := m.state.Load(); s == StateShuttingDown || s == StateStop {
		m.mu.Unlock()
		return
	}
	if _, exists := m.hosts[normalized]; exists {
		m.mu.Unlock()
		return
	}

	host := NewHost(normalized, factory, m.fragmentSize, m.keepClean, m.waitTime.Load())
	if m.state.Load() == StateStart {
		host.Start()
	}
	if _, exists := m.hosts[normalized]; exists {
		m.mu.Unlock()
		panic(errors.WithStack(ErrInsertRace))
	}
	m.hosts[normalized] = host
	m.mu.Unlock()

	metrics.HostCount.Set(float64(m.Count()))
}

// Remove detaches path's host, if present. If the detached host is
// Started, its sessions receive a Close frame carrying status 1001
// ("Away") before deletion completes.
func (m *Manager) Remove(path string) bool {
	normalized := Normalize(path)

	m.mu.Lock()
	host, ok := m.hosts[normalized]
	if ok {
		delete(m.hosts, normalized)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	if host.State() == StateStart {
		closeFrame, err := wsframe.MakeCloseFrame(wsframe.CloseAway, "").Serialize()
		if err == nil {
			host.Stop(closeFrame, m.waitTime.Load())
		} else {
			host.Stop(nil, m.waitTime.Load())
		}
	}

	metrics.HostCount.Set(float64(m.Count()))
	return true
}

// TryGet resolves path to its Host, honoring the guard rules an
// upgrade acceptor needs before routing a connection: nil if the
// manager is not in Start or the path fails validation.
func (m *Manager) TryGet(path string) *Host {
	if m.state.Load() != StateStart {
		log.Warn("try-get rejected", zap.String("path", path), zap.Error(ErrNotStarted))
		return nil
	}
	if !ValidatePath(path) {
		log.Warn("try-get rejected", zap.String("path", path), zap.Error(ErrInvalidPath))
		return nil
	}

	normalized := Normalize(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hosts[normalized]
}

// SetWaitTime updates the manager's wait-time and propagates it to
// every host snapshot. Rejects d <= 0; a no-op if d already equals
// the current value.
func (m *Manager) SetWaitTime(d time.Duration) bool {
	if d <= 0 {
		log.Warn("set-wait-time rejected", zap.Duration("waitTime", d), zap.Error(ErrInvalidWaitTime))
		return false
	}
	if m.waitTime.Load() == d {
		return true
	}
	m.waitTime.Store(d)

	for _, host := range m.hostSnapshot() {
		host.SetWaitTime(d)
	}
	return true
}

// Start starts every currently registered host, then transitions the
// manager to StateStart. Disallowed after the first call. Hosts are
// started before the manager's own state flips, so a concurrent TryGet
// that observes the manager as StateStart never finds a host that is
// still StateReady underneath it.
func (m *Manager) Start() bool {
	if m.state.Load() != StateReady {
		return false
	}

	started := false
	m.startOnce.Do(func() {
		for _, host := range m.hostSnapshot() {
			host.Start()
		}
		m.state.Store(StateStart)
		started = true
	})
	return started
}

// Stop transitions the manager to ShuttingDown, drains every host in
// parallel with the given close semantics, clears the host map, then
// transitions to Stop.
func (m *Manager) Stop(ctx context.Context, args CloseArgs, sendClose bool, wait bool) {
	if !m.state.CompareAndSwap(StateStart, StateShuttingDown) {
		// Ready->Stop and repeated Stop calls are rejected; callers
		// that raced Start lose quietly — there is no live host to
		// drain in either case.
		return
	}

	var closeFrame []byte
	if sendClose {
		f := wsframe.MakeCloseFrame(args.Code, args.Payload)
		if b, err := f.Serialize(); err == nil {
			closeFrame = b
		}
	}

	timeout := time.Duration(0)
	if wait {
		timeout = m.waitTime.Load()
	}

	hosts := m.hostSnapshot()
	var wg sync.WaitGroup
	wg.Add(len(hosts))
	for _, host := range hosts {
		host := host
		go func() {
			defer wg.Done()
			host.Stop(closeFrame, timeout)
		}()
	}
	wg.Wait()

	m.mu.Lock()
	m.hosts = make(map[string]*Host)
	m.mu.Unlock()

	m.state.Store(StateStop)
	metrics.HostCount.Set(0)
}

// hostSnapshot copies the current host set into a slice so callers
// never iterate while holding mu.
func (m *Manager) hostSnapshot() []*Host {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Host, 0, len(m.hosts))
	for _, h := range m.hosts {
		out = append(out, h)
	}
	return out
}

// Paths returns every currently registered path.
func (m *Manager) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.hosts))
	for p := range m.hosts {
		out = append(out, p)
	}
	return out
}

// Count returns the number of registered hosts.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hosts)
}

// SessionCount sums every started host's session count.
func (m *Manager) SessionCount() int {
	total := 0
	for _, h := range m.hostSnapshot() {
		if h.State() == StateStart {
			total += h.SessionCount()
		}
	}
	return total
}

// BroadcastBytes fans out a binary message to every session of every
// started host. Chooses the buffer path when len(data) <= a host's
// fragment-size, otherwise the stream path — per host, since
// fragment-size is fixed at construction from the manager's own value,
// this branches identically across all hosts in practice but is
// evaluated per host for literal fidelity to the per-host threshold.
func (m *Manager) BroadcastBytes(ctx context.Context, data []byte) bool {
	if data == nil {
		log.Ctx(ctx).Warn("broadcast rejected", zap.Error(ErrNullData))
		return false
	}
	return m.broadcast(ctx, wsframe.OpcodeBinary, data, "buffer")
}

// BroadcastText UTF-8 encodes text and fans it out as a Text frame.
func (m *Manager) BroadcastText(ctx context.Context, text string) bool {
	if !utf8.ValidString(text) {
		return false
	}
	return m.broadcast(ctx, wsframe.OpcodeText, []byte(text), "buffer")
}

// broadcast implements the fan-out discipline common to both
// broadcast variants: snapshot hosts at call time, process in
// parallel, short-circuit once the manager leaves Start, AND the
// per-host results together.
func (m *Manager) broadcast(ctx context.Context, opcode wsframe.Opcode, data []byte, mode string) bool {
	if m.state.Load() != StateStart {
		return false
	}

	hosts := m.hostSnapshot()
	results := make([]bool, len(hosts))

	var wg sync.WaitGroup
	wg.Add(len(hosts))
	for i, host := range hosts {
		i, host := i, host
		go func() {
			defer wg.Done()
			if m.state.Load() != StateStart {
				// Lazy, cooperative short-circuit: leave this host's
				// slot as its zero value (false) rather than touch it.
				return
			}
			effectiveMode := mode
			if len(data) <= host.FragmentSize() {
				results[i] = host.Sessions().Broadcast(ctx, opcode, data)
			} else {
				effectiveMode = "stream"
				results[i] = host.Sessions().BroadcastStream(ctx, opcode, newByteReader(data))
			}
			metrics.BroadcastTotal.WithLabelValues(opcode.String(), effectiveMode).Inc()
		}()
	}
	wg.Wait()

	return combine(results)
}

// BroadcastStream fans out a streaming binary message.
func (m *Manager) BroadcastStream(ctx context.Context, opcode wsframe.Opcode, data []byte) bool {
	if m.state.Load() != StateStart {
		return false
	}
	hosts := m.hostSnapshot()
	results := make([]bool, len(hosts))

	var wg sync.WaitGroup
	wg.Add(len(hosts))
	for i, host := range hosts {
		i, host := i, host
		go func() {
			defer wg.Done()
			if m.state.Load() != StateStart {
				return
			}
			results[i] = host.Sessions().BroadcastStream(ctx, opcode, newByteReader(data))
			metrics.BroadcastTotal.WithLabelValues(opcode.String(), "stream").Inc()
		}()
	}
	wg.Wait()

	return combine(results)
}

// Broadping fans out the pre-serialized empty, unmasked ping frame and
// correlates each session's pong within the manager's wait-time.
func (m *Manager) Broadping() map[string]map[string]bool {
	return m.broadping(wsframe.EmptyUnmaskedPing)
}

// BroadpingText is equivalent to Broadping() for an empty text, and
// otherwise builds a single ping frame carrying text, rejecting
// payloads over the 125-byte control-frame ceiling by returning an
// empty mapping.
func (m *Manager) BroadpingText(text string) map[string]map[string]bool {
	if text == "" {
		return m.Broadping()
	}

	payload := []byte(text)
	if len(payload) > wsframe.MaxControlPayloadSize {
		log.Warn("broadping text rejected", zap.Int("payloadSize", len(payload)), zap.Error(ErrInvalidControlData))
		return map[string]map[string]bool{}
	}

	f, err := wsframe.MakePingFrame(payload, false)
	if err != nil {
		return map[string]map[string]bool{}
	}
	frameBytes, err := f.Serialize()
	if err != nil {
		return map[string]map[string]bool{}
	}
	return m.broadping(frameBytes)
}

func (m *Manager) broadping(frameBytes []byte) map[string]map[string]bool {
	result := make(map[string]map[string]bool)
	if m.state.Load() != StateStart {
		return result
	}

	hosts := m.hostSnapshot()
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(hosts))

	started := time.Now()
	for _, host := range hosts {
		host := host
		go func() {
			defer wg.Done()
			if m.state.Load() != StateStart {
				return
			}
			perSession := host.Sessions().Broadping(frameBytes, m.waitTime.Load())
			mu.Lock()
			result[host.Path()] = perSession
			mu.Unlock()
		}()
	}
	wg.Wait()
	metrics.BroadpingLatencyMs.Observe(float64(time.Since(started).Milliseconds()))

	return result
}
