package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

// logEntry is the JSON shape slog's handler emits, plus the fields we attach.
type logEntry struct {
	Level     string `json:"level"`
	Message   string `json:"msg"`
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	TenantID  string `json:"tenant_id"`
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("debug message should not be logged at info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		if buf.Len() == 0 {
			t.Fatal("info message should be logged at info level")
		}

		var entry logEntry
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("failed to unmarshal log entry: %v", err)
		}
		if entry.Level != "INFO" {
			t.Errorf("expected level INFO, got %s", entry.Level)
		}
		if entry.Message != "info message" {
			t.Errorf("expected message 'info message', got %s", entry.Message)
		}
	})

	t.Run("warn and error logged", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("warn and error messages should be logged")
		}
	})
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(nil).Info("no error attached")
	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}
	if entry.Error != "" {
		t.Errorf("nil error should not add a field, got %q", entry.Error)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		"info":    InfoLevel,
		"warn":    WarnLevel,
		"error":   ErrorLevel,
		"unknown": InfoLevel,
		"":        InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), base)
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithUserID(ctx, "user-456")
	ctx = WithTenantID(ctx, "tenant-789")

	FromContext(ctx).Info("request handled")

	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}
	if entry.RequestID != "req-123" {
		t.Errorf("expected request_id req-123, got %s", entry.RequestID)
	}
	if entry.UserID != "user-456" {
		t.Errorf("expected user_id user-456, got %s", entry.UserID)
	}
	if entry.TenantID != "tenant-789" {
		t.Errorf("expected tenant_id tenant-789, got %s", entry.TenantID)
	}
}

func TestGetLoggerDefault(t *testing.T) {
	if GetLogger(context.Background()) == nil {
		t.Error("GetLogger should return a usable default logger")
	}
	if GetRequestID(context.Background()) != "" {
		t.Error("missing request id should be empty")
	}
	if GetTenantID(context.Background()) != "" {
		t.Error("missing tenant id should be empty")
	}
}
