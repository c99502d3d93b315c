package wshub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/wshub-go/internal/wsframe"
)

func TestManagerAddDuplicatePathIsNoop(t *testing.T) {
	m := NewManager(64*1024, false)
	m.Add("/chat", DefaultBehaviorFactory)
	m.Add("/chat/", DefaultBehaviorFactory)

	require.Equal(t, 1, m.Count())
}

func TestManagerTryGetBeforeStartIsNil(t *testing.T) {
	m := NewManager(64*1024, false)
	m.Add("/chat", DefaultBehaviorFactory)

	require.Nil(t, m.TryGet("/chat"))
}

func TestManagerTryGetInvalidPathIsNil(t *testing.T) {
	m := NewManager(64*1024, false)
	m.Add("/chat", DefaultBehaviorFactory)
	m.Start()

	require.Nil(t, m.TryGet("/chat?x=1"))
	require.Nil(t, m.TryGet("nope"))
}

func TestManagerBroadcastTextTwoSessions(t *testing.T) {
	m := NewManager(64*1024, false)
	m.Add("/chat", DefaultBehaviorFactory)
	m.Start()

	host := m.TryGet("/chat")
	require.NotNil(t, host)

	a := newFakeSession("a", Open)
	b := newFakeSession("b", Open)
	host.Sessions().Add(a)
	host.Sessions().Add(b)

	ok := m.BroadcastText(context.Background(), "hello")
	require.True(t, ok)
	require.Len(t, a.sent, 1)
	require.Len(t, b.sent, 1)
	require.Equal(t, wsframe.OpcodeText, a.sent[0])
}

func TestManagerBroadcastBytesRejectsNil(t *testing.T) {
	m := NewManager(64*1024, false)
	m.Add("/chat", DefaultBehaviorFactory)
	m.Start()

	ok := m.BroadcastBytes(context.Background(), nil)
	require.False(t, ok)
}

func TestManagerBroadcastTakesStreamPathOverFragmentSize(t *testing.T) {
	m := NewManager(1024, false)
	m.Add("/stream", DefaultBehaviorFactory)
	m.Start()

	host := m.TryGet("/stream")
	sess := newFakeSession("s", Open)
	host.Sessions().Add(sess)

	data := make([]byte, 4096)
	ok := m.BroadcastBytes(context.Background(), data)
	require.True(t, ok)
	require.Len(t, sess.sent, 1)
	require.Equal(t, wsframe.OpcodeBinary, sess.sent[0])
}

func TestManagerBroadpingMixedOpenClosed(t *testing.T) {
	m := NewManager(64*1024, false)
	m.Add("/chat", DefaultBehaviorFactory)
	m.Start()

	host := m.TryGet("/chat")
	open := newFakeSession("open", Open)
	open.pingResult = true
	closed := newFakeSession("closed", Closed)
	host.Sessions().Add(open)
	host.Sessions().Add(closed)

	results := m.Broadping()
	perPath := results["/chat"]
	require.True(t, perPath["open"])
	require.False(t, perPath["closed"])
}

func TestManagerBroadpingTextOverControlLimitIsEmpty(t *testing.T) {
	m := NewManager(64*1024, false)
	m.Add("/chat", DefaultBehaviorFactory)
	m.Start()

	oversized := make([]byte, 126)
	results := m.BroadpingText(string(oversized))
	require.Empty(t, results)
}

func TestManagerSetWaitTimeRejectsNonPositive(t *testing.T) {
	m := NewManager(64*1024, false)
	require.False(t, m.SetWaitTime(0))
	require.False(t, m.SetWaitTime(-time.Second))
	require.True(t, m.SetWaitTime(2*time.Second))
	require.Equal(t, 2*time.Second, m.WaitTime())
}

func TestManagerDefaultWaitTimeBypassesValidation(t *testing.T) {
	m := NewManager(64*1024, false)
	require.Equal(t, DefaultWaitTime, m.WaitTime())
}

func TestManagerStartIsIdempotentOnce(t *testing.T) {
	m := NewManager(64*1024, false)
	require.True(t, m.Start())
	require.False(t, m.Start())
}

func TestManagerStopDuringConcurrentBroadcast(t *testing.T) {
	m := NewManager(64*1024, false)
	m.Add("/chat", DefaultBehaviorFactory)
	m.Start()

	host := m.TryGet("/chat")
	host.Sessions().Add(newFakeSession("a", Open))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			m.BroadcastText(context.Background(), "x")
		}
		close(done)
	}()

	m.Stop(context.Background(), CloseArgs{Code: wsframe.CloseAway}, true, false)

	<-done
	require.Equal(t, StateStop, m.State())
	require.Equal(t, 0, m.Count())
}

func TestManagerRemoveUnknownPathReturnsFalse(t *testing.T) {
	m := NewManager(64*1024, false)
	require.False(t, m.Remove("/nope"))
}

func TestManagerSessionCountSumsStartedHosts(t *testing.T) {
	m := NewManager(64*1024, false)
	m.Add("/a", DefaultBehaviorFactory)
	m.Add("/b", DefaultBehaviorFactory)
	m.Start()

	m.TryGet("/a").Sessions().Add(newFakeSession("1", Open))
	m.TryGet("/b").Sessions().Add(newFakeSession("2", Open))
	m.TryGet("/b").Sessions().Add(newFakeSession("3", Open))

	require.Equal(t, 3, m.SessionCount())
}

// TestManagerAddIsRaceFreeUnderConcurrentCallers drives many goroutines
// at Add for the same path: exactly one Host must win, and none of the
// losers may panic — the try-insert's single critical section is what
// this exercises.
func TestManagerAddIsRaceFreeUnderConcurrentCallers(t *testing.T) {
	m := NewManager(64*1024, false)

	const goroutines = 200
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			require.NotPanics(t, func() {
				m.Add("/race", DefaultBehaviorFactory)
			})
		}()
	}
	wg.Wait()

	require.Equal(t, 1, m.Count())
	require.NotNil(t, m.Paths())
}
