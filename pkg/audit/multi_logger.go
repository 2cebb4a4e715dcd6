package audit

import (
	"context"
)

// MultiLogger fans each entry out to several loggers. Every logger is
// attempted; the first error wins but does not stop the rest.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that records to all of the given loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Record(ctx context.Context, entry *Entry) error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Record(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiLogger) Close() error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
