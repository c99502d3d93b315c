package wshub

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/wshub-go/internal/wsframe"
)

// fakeSession is a test double implementing Session without any real
// network I/O, so registry fan-out semantics can be asserted directly.
type fakeSession struct {
	id string

	mu         sync.Mutex
	state      ReadyState
	sendErr    error
	pingResult bool
	sent       []wsframe.Opcode
	closed     bool
}

func newFakeSession(id string, state ReadyState) *fakeSession {
	return &fakeSession{id: id, state: state}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) ReadyState() ReadyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Send(opcode wsframe.Opcode, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, opcode)
	return f.sendErr
}

func (f *fakeSession) SendStream(opcode wsframe.Opcode, r io.Reader) error {
	_, _ = io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, opcode)
	return f.sendErr
}

func (f *fakeSession) Ping(_ []byte, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingResult
}

func (f *fakeSession) Close(_ []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestRegistryBroadcastAllSucceed(t *testing.T) {
	r := NewRegistry()
	a := newFakeSession("a", Open)
	b := newFakeSession("b", Open)
	r.Add(a)
	r.Add(b)

	ok := r.Broadcast(context.Background(), wsframe.OpcodeText, []byte("hi"))
	require.True(t, ok)
	require.Len(t, a.sent, 1)
	require.Len(t, b.sent, 1)
}

func TestRegistryBroadcastOneFails(t *testing.T) {
	r := NewRegistry()
	a := newFakeSession("a", Open)
	b := newFakeSession("b", Open)
	b.sendErr = io.ErrClosedPipe
	r.Add(a)
	r.Add(b)

	ok := r.Broadcast(context.Background(), wsframe.OpcodeText, []byte("hi"))
	require.False(t, ok)
}

func TestRegistryBroadcastEmptyIsTrue(t *testing.T) {
	r := NewRegistry()
	ok := r.Broadcast(context.Background(), wsframe.OpcodeText, []byte("hi"))
	require.True(t, ok)
}

func TestRegistryBroadcastStreamBuffersOnce(t *testing.T) {
	r := NewRegistry()
	a := newFakeSession("a", Open)
	b := newFakeSession("b", Open)
	r.Add(a)
	r.Add(b)

	src := newByteReader([]byte("streamed payload"))
	ok := r.BroadcastStream(context.Background(), wsframe.OpcodeBinary, src)
	require.True(t, ok)
	require.Len(t, a.sent, 1)
	require.Len(t, b.sent, 1)
}

func TestRegistryBroadpingSkipsNonOpenSessions(t *testing.T) {
	r := NewRegistry()
	open := newFakeSession("open", Open)
	open.pingResult = true
	closing := newFakeSession("closing", Closing)
	r.Add(open)
	r.Add(closing)

	results := r.Broadping(wsframe.EmptyUnmaskedPing, time.Second)
	require.True(t, results["open"])
	require.False(t, results["closing"])
}

func TestRegistryStopClosesAndEmptiesRegistry(t *testing.T) {
	r := NewRegistry()
	a := newFakeSession("a", Open)
	r.Add(a)
	require.Equal(t, 1, r.Count())

	r.Stop(nil, time.Second)

	require.True(t, a.closed)
	require.Equal(t, 0, r.Count())
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	a := newFakeSession("a", Open)
	r.Add(a)
	r.Remove("a")
	require.Equal(t, 0, r.Count())
}
