package audit

import (
	"context"
	"testing"
)

func TestFileLoggerRoundTrip(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create file logger: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	role := "TEAM_LEAD"
	entry := NewEntry(EventTypeRevokeRole, "actor-1")
	entry.TargetType = TargetTypeUser
	entry.TargetID = "user-9"
	entry.PreviousRole = &role
	if err := logger.Record(ctx, entry); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	entries, err := logger.ReadEntries(0)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].PreviousRole == nil || *entries[0].PreviousRole != role {
		t.Errorf("expected previous role %q, got %v", role, entries[0].PreviousRole)
	}
}
