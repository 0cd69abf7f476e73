package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn")
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("chatty")
	assert.Error(t, err)

	_, err = NewDevelopment("chatty")
	assert.Error(t, err)
}

func TestWithSession(t *testing.T) {
	logger, err := NewDevelopment("debug")
	require.NoError(t, err)

	session := logger.WithSession("/tmp/repo")
	require.NotNil(t, session)
	assert.NotSame(t, logger.Logger, session.Logger)
}
