package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTestLoggerProducesWorkingLogger(t *testing.T) {
	logger, props, err := InitTestLogger(t, &Config{Level: "debug", Stdout: false})
	require.NoError(t, err)
	require.NotNil(t, props)
	require.Equal(t, "debug", props.Level.Level().String())

	logger.Info("hello from InitTestLogger")
	require.NoError(t, logger.Sync())
}
