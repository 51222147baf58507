// Package logging is the structured logger shared by the notesync server and
// client. The server logs JSON to stdout; the client writes a rotated file so
// log lines never interleave with the interactive prompt.
package logging

import "context"

// Logger takes the request context first and key-value pairs after the
// message:
//
//	l.Info(ctx, "merge applied", "owner", ownerID, "note", noteID)
type Logger interface {
	// Debug is for per-entry sync and merge outcomes.
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	// Warn marks conditions the sync recovers from, such as a dropped
	// notification or a stalled outbox entry.
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger, typically tagged with "module".
	With(args ...any) Logger
}
