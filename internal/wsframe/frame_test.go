package wsframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameValidate(t *testing.T) {
	t.Run("rejects fragmented control frame", func(t *testing.T) {
		f := &Frame{Fin: false, Opcode: OpcodePing}
		require.ErrorIs(t, f.Validate(), ErrFragmentedControl)
	})

	t.Run("rejects oversized control payload", func(t *testing.T) {
		f := &Frame{Fin: true, Opcode: OpcodePing, Payload: make([]byte, 126)}
		require.ErrorIs(t, f.Validate(), ErrControlFrameTooLong)
	})

	t.Run("rejects invalid opcode", func(t *testing.T) {
		f := &Frame{Fin: true, Opcode: 0x3}
		require.ErrorIs(t, f.Validate(), ErrInvalidOpcode)
	})

	t.Run("accepts a plain text frame", func(t *testing.T) {
		f := &Frame{Fin: true, Opcode: OpcodeText, Payload: []byte("hi")}
		require.NoError(t, f.Validate())
	})
}

func TestFrameSerialize(t *testing.T) {
	f := &Frame{Fin: true, Opcode: OpcodeText, Payload: []byte("hi")}
	b, err := f.Serialize()
	require.NoError(t, err)

	// FIN=1, opcode=Text(0x1) -> 0x81; unmasked length 2 -> 0x02; "hi" -> 0x68 0x69.
	assert.Equal(t, []byte{0x81, 0x02, 0x68, 0x69}, b)
}

func TestMakeCloseFrame(t *testing.T) {
	f := MakeCloseFrame(CloseAway, "bye")
	require.NoError(t, f.Validate())
	assert.Equal(t, OpcodeClose, f.Opcode)
	assert.Equal(t, uint16(1001), CloseAway)
}

func TestMakePingFrame(t *testing.T) {
	_, err := MakePingFrame(make([]byte, 126), false)
	require.ErrorIs(t, err, ErrControlFrameTooLong)

	f, err := MakePingFrame([]byte("x"), false)
	require.NoError(t, err)
	assert.Equal(t, OpcodePing, f.Opcode)
}

func TestEmptyUnmaskedPing(t *testing.T) {
	require.NotEmpty(t, EmptyUnmaskedPing)
	assert.Equal(t, byte(0x89), EmptyUnmaskedPing[0]) // FIN + Ping opcode
	assert.Equal(t, byte(0x00), EmptyUnmaskedPing[1]) // unmasked, zero length
}
