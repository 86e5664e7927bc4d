// Package log provides a structured logging interface for MuLOOC.
//
// The Logger interface is slog-shaped so that components depend on it rather
// than on a backend. The default backend is zerolog (see NewZerologLogger);
// tests capture output with TestLogger.
//
// Example usage:
//
//	logger := log.GetLogger().With(
//	    log.ComponentKey, "dataset",
//	    log.ModelNameKey, "AudioDataset",
//	)
//	logger.Warn("skipping unreadable item",
//	    log.IndexKey, 12,
//	    log.RetryKey, 1,
//	)

package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are passed as alternating key/value pairs. With returns a child
// logger carrying pre-populated fields.
type Logger interface {
	// Debug logs a debug-level message.
	//
	// Example:
	//   logger.Debug("built contrastive matrices",
	//       log.BatchSizeKey, 8,
	//       log.ViewsKey, 2,
	//   )
	Debug(msg string, fields ...any)

	// Info logs an info-level message.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message for conditions the pipeline recovers from.
	//
	// Example:
	//   logger.Warn("skipping unreadable item",
	//       log.PathKey, "/data/a.wav",
	//       log.RetryKey, 1,
	//   )
	Warn(msg string, fields ...any)

	// Error logs an error-level message. An error value passed under the
	// "error" key is rendered with its message.
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	//
	// Example:
	//   contextLogger := logger.With(
	//       log.ModelNameKey, "MuLOOC",
	//       log.RunIDKey, runID,
	//   )
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
// This type allows for level-based filtering of log messages.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4 // Detailed diagnostic information
	LevelInfo  Level = 0  // General operational information
	LevelWarn  Level = 4  // Warning conditions
	LevelError Level = 8  // Error conditions
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
