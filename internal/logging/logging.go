// Package logging builds the structured slog logger that docindexd installs
// as the process-wide default; the pipeline manager and the store log
// through slog's default logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr controls whether logs are also written to stderr.
	WriteToStderr bool
	// DisableImmediateSync turns off the per-write fsync the rotating file
	// writer does by default. That sync makes each line visible on disk as
	// soon as it is written; batch/offline indexing runs can set this to
	// trade that real-time visibility for throughput.
	DisableImmediateSync bool
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig returns configuration for debug mode.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup initializes file-based logging and returns the logger plus a
// cleanup function that must be called to flush and close the log file.
//
// With WriteToStderr set, one handler writes to both the file and stderr:
// a text handler when stderr is a tty (checked via go-isatty) and a JSON
// handler otherwise, so the file receives text lines in the tty case.
// Without WriteToStderr, only the file is written, as JSON.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}
	writer.SetImmediateSync(!cfg.DisableImmediateSync)

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.WriteToStderr {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			handler = slog.NewTextHandler(io.MultiWriter(writer, os.Stderr), opts)
		} else {
			handler = slog.NewJSONHandler(io.MultiWriter(writer, os.Stderr), opts)
		}
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	logger := slog.New(handler)

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}

	return logger, cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts a string level to slog.Level.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
