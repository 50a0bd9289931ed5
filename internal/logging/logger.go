// Package logging defines the structured-logging interface used across the
// consumer. Components receive a Logger and derive children with With, e.g.
// logger.With("module", "scan") or logger.With("tx_id", txID).
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "delivered file", "filename", name, "survey_id", surveyID)
type Logger interface {
	// Debug logs diagnostic detail that must never reach the message sender,
	// such as the cause of a decrypt failure.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}
