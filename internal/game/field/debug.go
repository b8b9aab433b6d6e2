package field

import "sync/atomic"

// debugLoggingEnabled guards per-tick debug logs of the field loop.
// Set via EnableDebugLogging() during initialization based on config.LogLevel.
var debugLoggingEnabled atomic.Bool

// EnableDebugLogging enables or disables per-tick debug logging.
func EnableDebugLogging(enabled bool) {
	debugLoggingEnabled.Store(enabled)
}

// IsDebugEnabled returns true if per-tick debug logging is enabled.
//
//	if field.IsDebugEnabled() {
//	    slog.Debug("tick", "actors", f.Count())
//	}
func IsDebugEnabled() bool {
	return debugLoggingEnabled.Load()
}
