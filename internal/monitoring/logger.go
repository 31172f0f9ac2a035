package monitoring

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Logf is the package-level diagnostic logger. It writes through the zap
// logger installed by Configure and may be replaced by SetLogger. Tests or
// production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = func(format string, v ...interface{}) {
	L().Sugar().Infof(format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Configure builds a production zap logger, at debug level when verbose,
// and installs it as the package logger.
func Configure(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetZap(l)
	return l, nil
}

// SetZap installs l as the structured logger. nil installs a no-op logger.
func SetZap(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// L returns the structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Warnf logs at warn level through the structured logger.
func Warnf(format string, v ...interface{}) {
	L().Sugar().Warnf(format, v...)
}

// Nop mutes both loggers and returns a func restoring the previous ones.
func Nop() func() {
	prevLogf, prevZap := Logf, L()
	SetLogger(nil)
	SetZap(nil)
	return func() {
		Logf = prevLogf
		SetZap(prevZap)
	}
}
