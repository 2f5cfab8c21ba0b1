package rcl

import (
	"log/slog"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

// Logger returns the logger used by the core packages. It defaults to
// slog.Default().
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// SetLogger replaces the core logger. A nil logger restores the default.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}
