package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Observe replaces the global logger with an in-memory one recording entries at
// or above level. The returned func restores the previous logger.
func Observe(level zapcore.Level) (*observer.ObservedLogs, func()) {
	core, logs := observer.New(level)

	globalMu.RLock()
	prev := globalLogger
	globalMu.RUnlock()

	Use(zap.New(core, zap.AddCaller()))

	return logs, func() {
		globalMu.Lock()
		globalLogger = prev
		globalMu.Unlock()
	}
}
