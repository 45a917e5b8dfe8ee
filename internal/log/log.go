package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	mu     sync.RWMutex
	logger *zap.Logger
)

// Logger returns the process-wide logger. It is built lazily with the
// production encoder at info level unless Init or SetLogger ran first.
func Logger() *zap.Logger {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger == nil {
			logger = build(zapcore.InfoLevel)
		}
	})

	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init builds the process logger at the given level ("debug", "info", "warn", "error").
// Unknown levels fall back to info.
func Init(level string) *zap.Logger {
	l := build(parseLevel(level))
	SetLogger(l)
	return l
}

// SetLogger replaces the process logger.
func SetLogger(l *zap.Logger) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func build(level zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
