package wshub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateWordMonotonic(t *testing.T) {
	var w stateWord
	require.Equal(t, StateReady, w.Load())

	require.True(t, w.CompareAndSwap(StateReady, StateStart))
	require.Equal(t, StateStart, w.Load())

	// A stale CompareAndSwap against the now-superseded old value fails.
	require.False(t, w.CompareAndSwap(StateReady, StateStart))

	require.True(t, w.CompareAndSwap(StateStart, StateShuttingDown))
	require.True(t, w.CompareAndSwap(StateShuttingDown, StateStop))
	require.Equal(t, StateStop, w.Load())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "Ready", StateReady.String())
	require.Equal(t, "Start", StateStart.String())
	require.Equal(t, "ShuttingDown", StateShuttingDown.String())
	require.Equal(t, "Stop", StateStop.String())
}
