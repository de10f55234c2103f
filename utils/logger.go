// Package utils holds small cross-cutting helpers shared by every other
// package: logging, generic slice helpers, and data-directory resolution.
package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel mirrors the set of levels the CLI accepts with --log-level.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	default:
		return "info"
	}
}

// Set implements pflag.Value / viper's string-to-type decoding.
func (l *LogLevel) Set(s string) error {
	switch s {
	case "debug":
		*l = DEBUG
	case "info":
		*l = INFO
	case "warn":
		*l = WARN
	case "error":
		*l = ERROR
	default:
		return fmt.Errorf("unknown log level %q", s)
	}
	return nil
}

func (l LogLevel) Type() string { return "LogLevel" }

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SimpleLogger is the minimal logging surface handlers depend on.
type SimpleLogger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

// Logger is SimpleLogger plus lifecycle management.
type Logger interface {
	SimpleLogger
	Sync() error
}

type zapLogger struct {
	*zap.SugaredLogger
}

func (z *zapLogger) Sync() error {
	return z.SugaredLogger.Sync()
}

// NewZapLogger builds a production zap logger at the given level, encoding
// to stderr as console text. Devnet is a developer tool, so we favour
// readability over a machine-parseable format by default.
func NewZapLogger(level LogLevel) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{logger.Sugar()}, nil
}

// NewNopLogger is used by tests that don't want log noise.
func NewNopLogger() Logger {
	return &zapLogger{zap.NewNop().Sugar()}
}
