package wshub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHostAcceptRejectsBeforeStart(t *testing.T) {
	h := NewHost("/chat", DefaultBehaviorFactory, 64*1024, false, time.Second)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	sess := h.Accept(context.Background(), "s1", serverConn)
	require.Nil(t, sess)
}

func TestHostAcceptRegistersSession(t *testing.T) {
	h := NewHost("/chat", DefaultBehaviorFactory, 64*1024, false, time.Second)
	h.Start()

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := h.Accept(context.Background(), "s1", serverConn)
	require.NotNil(t, sess)
	require.Equal(t, 1, h.SessionCount())
	require.Equal(t, Open, sess.ReadyState())
}

func TestHostStopDrainsSessions(t *testing.T) {
	h := NewHost("/chat", DefaultBehaviorFactory, 64*1024, false, time.Second)
	h.Start()

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := clientConn.Read(buf); err != nil {
				return
			}
		}
	}()

	_ = h.Accept(context.Background(), "s1", serverConn)
	require.Equal(t, 1, h.SessionCount())

	h.Stop(nil, 100*time.Millisecond)

	require.Equal(t, StateStop, h.State())
	require.Equal(t, 0, h.SessionCount())
}

func TestHostSetWaitTime(t *testing.T) {
	h := NewHost("/chat", DefaultBehaviorFactory, 64*1024, false, time.Second)
	h.SetWaitTime(5 * time.Second)
	require.Equal(t, 5*time.Second, h.WaitTime())
}
