package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures a rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      slog.Level
}

// rotatingWriter returns the sink for opts: a lumberjack writer when a path
// is configured, stderr otherwise.
func rotatingWriter(opts FileOptions) io.Writer {
	if opts.Path == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
}

// NewFileLogger builds a text slog logger writing to a rotating file.
// Interactive clients use it so log lines do not interleave with command output.
func NewFileLogger(opts FileOptions) *SlogLogger {
	h := slog.NewTextHandler(rotatingWriter(opts), &slog.HandlerOptions{Level: opts.Level})
	return NewSlogLogger(slog.New(h))
}

// NewJSONLogger builds the server logger: JSON lines on w.
func NewJSONLogger(w io.Writer, level slog.Level) *SlogLogger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return NewSlogLogger(slog.New(h))
}
