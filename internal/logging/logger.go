// Package logging builds the zap loggers used across Tripwise.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a sugared logger. Verbose enables debug level, development
// encoding and stacktraces.
func New(verbose bool) (*zap.SugaredLogger, error) {
	var config zap.Config

	if verbose {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		config.Encoding = "console"
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	config.DisableStacktrace = !verbose
	// stdout belongs to the MCP transport and the TUI
	config.OutputPaths = []string{"stderr"}

	l, err := config.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// LogDuration logs the duration of an operation.
// Usage: defer LogDuration(logger, "operation_name", time.Now())
func LogDuration(logger *zap.SugaredLogger, operation string, start time.Time) {
	duration := time.Since(start)
	logger.With(
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	).Debugf("Completed %s in %v", operation, duration)
}

// WithTool creates a logger with tool execution context.
func WithTool(logger *zap.SugaredLogger, toolName, callID string) *zap.SugaredLogger {
	return logger.With(
		"tool", toolName,
		"call_id", callID,
	)
}

// WithSession creates a logger scoped to one conversation.
func WithSession(logger *zap.SugaredLogger, sessionID string) *zap.SugaredLogger {
	return logger.With("session", sessionID)
}
