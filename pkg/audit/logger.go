package audit

import (
	"context"
)

// Logger records audit entries. Implementations must be safe for concurrent
// use. Recording failures are surfaced to the caller, who decides whether the
// triggering operation still stands.
type Logger interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// noopLogger discards everything. Used in tests and wherever auditing is
// disabled.
type noopLogger struct{}

// NewNoopLogger returns a Logger that drops all entries.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Record(ctx context.Context, entry *Entry) error { return nil }
func (noopLogger) Close() error                                   { return nil }
