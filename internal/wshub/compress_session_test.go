package wshub

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/wshub-go/internal/wsframe"
)

// recordingSession captures the exact bytes handed to Send,
// unlike fakeSession which only tracks opcodes.
type recordingSession struct {
	*fakeSession
	lastPayload []byte
}

func (r *recordingSession) Send(opcode wsframe.Opcode, payload []byte) error {
	r.lastPayload = payload
	return r.fakeSession.Send(opcode, payload)
}

func TestCompressingSessionCompressesSendPayload(t *testing.T) {
	compressor, err := wsframe.NewCompressor()
	require.NoError(t, err)
	defer compressor.Close()

	inner := &recordingSession{fakeSession: newFakeSession("1", Open)}
	sess := &compressingSession{Session: inner, compressor: compressor}

	payload := bytes.Repeat([]byte("hello wshub "), 64)
	require.NoError(t, sess.Send(wsframe.OpcodeBinary, payload))

	require.NotEqual(t, payload, inner.lastPayload)

	decompressed, err := compressor.Decompress(nil, inner.lastPayload)
	require.NoError(t, err)
	require.Equal(t, payload, decompressed)
}

func TestNewCompressingBehaviorFactoryMarksSessionOpen(t *testing.T) {
	compressor, err := wsframe.NewCompressor()
	require.NoError(t, err)
	defer compressor.Close()

	h := NewHost("/snapshot", NewCompressingBehaviorFactory(DefaultBehaviorFactory, compressor), 64*1024, false, time.Second)
	h.Start()
	defer h.Stop(nil, 0)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := h.Accept(context.Background(), "compressed-1", serverConn)
	require.NotNil(t, sess)
	require.Equal(t, Open, sess.ReadyState())
}
