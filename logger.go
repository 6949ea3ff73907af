package swapframe

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/swapframe/internal/logging"
)

// loggerPtr stores the package logger. Accessed atomically so SetLogger can
// race with renderers reading it.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(logging.Nop())
}

// SetLogger sets the logger used by renderers created without WithLogger.
// By default swapframe produces no log output. Pass nil to restore that.
//
// Log levels used by swapframe:
//   - [slog.LevelDebug]: per-frame diagnostics (fence waits, recorded frames)
//   - [slog.LevelInfo]: lifecycle events (device opened, swap chain resized)
//   - [slog.LevelWarn]: non-fatal degradation (missing vertex buffer)
//
// Example:
//
//	swapframe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	loggerPtr.Store(logging.Or(l))
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
