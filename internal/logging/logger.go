package logging

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

func NewLogger(level string) (*Logger, error) {
	return build(zap.NewProductionConfig(), level)
}

// NewDevelopment builds the human-readable console logger used by the CLI.
func NewDevelopment(level string) (*Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.DisableStacktrace = true
	return build(config, level)
}

func NewNop() *Logger {
	return &Logger{zap.NewNop()}
}

func build(config zap.Config, level string) (*Logger, error) {
	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// WithSession tags every entry with a fresh session id and the repository
// root, so log lines from one open repository can be correlated.
func (l *Logger) WithSession(root string) *Logger {
	return &Logger{l.With(
		zap.String("session_id", uuid.New().String()),
		zap.String("root", root),
	)}
}
