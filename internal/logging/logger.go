// Package logging provides structured logging for wsflush, wrapping
// go.uber.org/zap's SugaredLogger behind the small level-tagged API the
// rest of the module (and its callers) already expect.
package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger with level filtering and the
// key-value call shape used throughout the engine's hot paths.
type Logger struct {
	sugar *zap.SugaredLogger
	level LogLevel
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level  LogLevel
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration: Info level,
// writing to stderr via zap's production JSON encoder.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo}
}

// NewLogger creates a new Logger. A nil config produces a zap production
// logger at Info level; supplying Output switches to a line-oriented
// console encoder writing to that writer, useful for tests.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var core zapcore.Core
	if config.Output != nil {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		core = zapcore.NewCore(enc, zapcore.AddSync(config.Output), config.Level.zapLevel())
	} else {
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		core = zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), config.Level.zapLevel())
	}

	return &Logger{
		sugar: zap.New(core).Sugar(),
		level: config.Level,
	}
}

// Default returns the default logger, creating it lazily.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}
	switch level {
	case LevelDebug:
		l.sugar.Debugw(msg, args...)
	case LevelWarn:
		l.sugar.Warnw(msg, args...)
	case LevelError:
		l.sugar.Errorw(msg, args...)
	default:
		l.sugar.Infow(msg, args...)
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// Printf-style logging, kept for parity with call sites that only have a
// format string and positional args rather than structured key-values.
func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Printf satisfies callers that expect a generic logging.Logger-shaped
// Printf method (e.g. third-party libraries taking a logger interface).
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Sync flushes any buffered log entries. Callers should defer Sync on
// any Logger they construct explicitly.
func (l *Logger) Sync() error { return l.sugar.Sync() }

// Global convenience functions, operating on Default().
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
