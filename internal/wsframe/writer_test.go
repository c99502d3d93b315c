package wsframe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameWriterWriteMessageSingleFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	payload := []byte("hello")
	require.NoError(t, w.WriteMessage(OpcodeText, payload, 1024))

	// Single frame: 2-byte header + payload.
	require.Equal(t, 2+len(payload), buf.Len())
	b := buf.Bytes()
	require.Equal(t, byte(0x81), b[0])
	require.Equal(t, byte(len(payload)), b[1])
}

func TestFrameWriterWriteMessageFragments(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	payload := bytes.Repeat([]byte{0xAB}, 4096)
	require.NoError(t, w.WriteMessage(OpcodeBinary, payload, 1024))

	// Walk the frames back out and reassemble, asserting opcode/fin sequencing.
	b := buf.Bytes()
	var reassembled []byte
	first := true
	for len(b) > 0 {
		opcode := Opcode(b[0] & 0x0F)
		fin := b[0]&0x80 != 0
		length := int(b[1] & 0x7F)
		header := 2
		if length == 126 {
			length = int(b[2])<<8 | int(b[3])
			header = 4
		}

		if first {
			require.Equal(t, OpcodeBinary, opcode)
			first = false
		} else {
			require.True(t, opcode == OpcodeContinuation || fin)
		}

		reassembled = append(reassembled, b[header:header+length]...)
		b = b[header+length:]
	}

	require.Equal(t, payload, reassembled)
}
