package wshub

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/wshub-go/internal/wsframe"
)

// readFrameHeader reads a minimal unmasked frame header + payload off
// conn, enough for these tests to assert opcode and payload content
// without pulling in a full client-side decoder.
func readFrameHeader(t *testing.T, conn net.Conn) (opcode wsframe.Opcode, fin bool, payload []byte) {
	t.Helper()
	var head [2]byte
	_, err := readFull(conn, head[:])
	require.NoError(t, err)

	fin = head[0]&0x80 != 0
	opcode = wsframe.Opcode(head[0] & 0x0F)
	length := int(head[1] & 0x7F)

	switch length {
	case 126:
		var ext [2]byte
		_, err := readFull(conn, ext[:])
		require.NoError(t, err)
		length = int(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		_, err := readFull(conn, ext[:])
		require.NoError(t, err)
		length = int(binary.BigEndian.Uint64(ext[:]))
	}

	payload = make([]byte, length)
	if length > 0 {
		_, err := readFull(conn, payload)
		require.NoError(t, err)
	}
	return
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestBaseSessionSendWritesFrame(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := NewBaseSession(context.Background(), "sess-1", serverConn)
	sess.MarkOpen()
	defer sess.Close(nil, time.Second)

	done := make(chan struct{})
	var opcode wsframe.Opcode
	var fin bool
	var payload []byte
	go func() {
		opcode, fin, payload = readFrameHeader(t, clientConn)
		close(done)
	}()

	require.NoError(t, sess.Send(wsframe.OpcodeText, []byte("hi")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}

	require.Equal(t, wsframe.OpcodeText, opcode)
	require.True(t, fin)
	require.Equal(t, []byte("hi"), payload)
}

func TestBaseSessionSendStreamFragments(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := NewBaseSession(context.Background(), "sess-2", serverConn)
	sess.MarkOpen()
	defer sess.Close(nil, time.Second)

	payload := make([]byte, 70000)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	done := make(chan struct{})
	var reassembled []byte
	go func() {
		for {
			opcode, fin, chunk := readFrameHeader(t, clientConn)
			_ = opcode
			reassembled = append(reassembled, chunk...)
			if fin {
				break
			}
		}
		close(done)
	}()

	require.NoError(t, sess.SendStream(wsframe.OpcodeBinary, bytesReaderOf(payload)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream frames")
	}

	require.Equal(t, payload, reassembled)
}

func TestBaseSessionPingRecordsPong(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := NewBaseSession(context.Background(), "sess-3", serverConn)
	sess.MarkOpen()
	defer sess.Close(nil, time.Second)

	go func() {
		_, _, _ = readFrameHeader(t, clientConn)
		sess.RecordPong()
	}()

	ok := sess.Ping(wsframe.EmptyUnmaskedPing, time.Second)
	require.True(t, ok)
}

func TestBaseSessionPingTimesOut(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := NewBaseSession(context.Background(), "sess-4", serverConn)
	sess.MarkOpen()
	defer sess.Close(nil, time.Second)

	// Drain the ping frame so the write doesn't block, but never reply.
	go func() { _, _, _ = readFrameHeader(t, clientConn) }()

	ok := sess.Ping(wsframe.EmptyUnmaskedPing, 20*time.Millisecond)
	require.False(t, ok)
}

func TestBaseSessionPingNotOpen(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := NewBaseSession(context.Background(), "sess-5", serverConn)
	// Deliberately not marked Open.
	ok := sess.Ping(wsframe.EmptyUnmaskedPing, time.Second)
	require.False(t, ok)
}

func TestBaseSessionCloseIsIdempotent(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := NewBaseSession(context.Background(), "sess-6", serverConn)
	sess.MarkOpen()

	require.NoError(t, sess.Close(nil, 100*time.Millisecond))
	require.NoError(t, sess.Close(nil, 100*time.Millisecond))
	require.Equal(t, Closed, sess.ReadyState())
}

// bytesReaderOf avoids importing bytes just for a single call site in
// this test file's stream test.
func bytesReaderOf(b []byte) *byteReader {
	return newByteReader(b)
}
