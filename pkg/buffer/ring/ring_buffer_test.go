package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferWriteReadRoundTrip(t *testing.T) {
	b := New(8)

	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, 5, b.Buffered())

	out := make([]byte, 5)
	n, err = b.Read(out)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(out))
	require.Equal(t, 0, b.Buffered())
}

func TestBufferGrowsWhenWriteExceedsCapacity(t *testing.T) {
	b := New(4)
	payload := []byte("this payload is longer than the initial capacity")

	n, err := b.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.GreaterOrEqual(t, b.Cap(), len(payload))

	out := make([]byte, len(payload))
	_, err = b.Read(out)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestBufferReadEmptyReturnsErrIsEmpty(t *testing.T) {
	b := New(8)
	_, err := b.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrIsEmpty)
}

func TestBufferResetClearsBufferedData(t *testing.T) {
	b := New(8)
	_, _ = b.Write([]byte("x"))
	require.Equal(t, 1, b.Buffered())

	b.Reset()
	require.Equal(t, 0, b.Buffered())
}
