package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// DBLogger persists audit entries to a SQL database. The schema is created on
// construction so the table exists before the first write.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures the
// audit_log table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	l := &DBLogger{db: db}
	if err := l.ensureTable(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *DBLogger) ensureTable() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			actor_user_id TEXT NOT NULL,
			target_type TEXT NOT NULL DEFAULT '',
			target_id TEXT NOT NULL DEFAULT '',
			tenant_id TEXT,
			previous_role TEXT,
			new_role TEXT,
			reason TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}'
		)`)
	if err != nil {
		return fmt.Errorf("failed to create audit_log table: %w", err)
	}
	_, err = l.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor_user_id, timestamp)`)
	if err != nil {
		return fmt.Errorf("failed to create audit_log index: %w", err)
	}
	return nil
}

// Record writes one entry. The metadata map is stored as JSON text.
func (l *DBLogger) Record(ctx context.Context, entry *Entry) error {
	metadata := "{}"
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = string(b)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, event_type, actor_user_id, target_type, target_id, tenant_id, previous_role, new_role, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.Timestamp, entry.EventType, entry.ActorUserID,
		entry.TargetType, entry.TargetID, entry.TenantID,
		entry.PreviousRole, entry.NewRole, entry.Reason, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Search returns entries matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	query := `
		SELECT id, timestamp, event_type, actor_user_id, target_type, target_id, tenant_id, previous_role, new_role, reason, metadata
		FROM audit_log`

	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = arg(string(et))
		}
		conditions = append(conditions, fmt.Sprintf("event_type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.ActorUserID != "" {
		conditions = append(conditions, fmt.Sprintf("actor_user_id = %s", arg(filter.ActorUserID)))
	}
	if filter.TargetType != "" {
		conditions = append(conditions, fmt.Sprintf("target_type = %s", arg(string(filter.TargetType))))
	}
	if filter.TargetID != "" {
		conditions = append(conditions, fmt.Sprintf("target_id = %s", arg(filter.TargetID)))
	}
	if filter.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = %s", arg(filter.TenantID)))
	}
	if filter.StartTime != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= %s", arg(*filter.StartTime)))
	}
	if filter.EndTime != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= %s", arg(*filter.EndTime)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY timestamp DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %s", arg(limit))
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %s", arg(filter.Offset))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit log: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var metadata string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.ActorUserID,
			&e.TargetType, &e.TargetID, &e.TenantID,
			&e.PreviousRole, &e.NewRole, &e.Reason, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than the cutoff and returns how many were
// removed.
func (l *DBLogger) Cleanup(ctx context.Context, before SearchFilter) (int64, error) {
	if before.EndTime == nil {
		return 0, fmt.Errorf("cleanup requires an end time")
	}
	result, err := l.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < $1", *before.EndTime)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit log: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the DBLogger does not own the database handle.
func (l *DBLogger) Close() error { return nil }
