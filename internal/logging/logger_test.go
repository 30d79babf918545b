package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"docgate/internal/config"
)

func TestNewLevels(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
