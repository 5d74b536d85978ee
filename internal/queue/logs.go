package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BnJam/hyperion/internal/storage"
	"github.com/BnJam/hyperion/internal/types"
)

// LogEvent appends one journal row. queueID 0 marks events not tied to an
// entry. details may be any JSON-serializable value or nil.
func (q *Queue) LogEvent(ctx context.Context, queueID int64, taskID, level, message string, details any) error {
	var detailsJSON any
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("serialize log details: %w", err)
		}
		detailsJSON = string(data)
	}
	_, err := q.store.DB().ExecContext(ctx,
		`INSERT INTO queue_logs (queue_id, task_id, level, message, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		queueID, taskID, level, message, detailsJSON, q.now().Unix())
	return storage.WrapDBError("log event", err)
}

// RecentLogs returns the newest journal rows, newest first.
func (q *Queue) RecentLogs(ctx context.Context, limit int) ([]types.LogEvent, error) {
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT id, queue_id, task_id, level, message, details, created_at
		 FROM queue_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storage.WrapDBError("recent logs", err)
	}
	defer func() { _ = rows.Close() }()

	var events []types.LogEvent
	for rows.Next() {
		var ev types.LogEvent
		var details sql.NullString
		if err := rows.Scan(&ev.ID, &ev.QueueID, &ev.TaskID, &ev.Level, &ev.Message, &details, &ev.CreatedAt); err != nil {
			return nil, storage.WrapDBError("scan log event", err)
		}
		ev.Details = details.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecordFileEvent appends one filesystem notification to the journal.
func (q *Queue) RecordFileEvent(ctx context.Context, path, event, source string, details any) error {
	var detailsJSON any
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("serialize file event details: %w", err)
		}
		detailsJSON = string(data)
	}
	_, err := q.store.DB().ExecContext(ctx,
		`INSERT INTO file_events (path, event, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		path, event, source, detailsJSON, q.now().Unix())
	return storage.WrapDBError("record file event", err)
}

// RecentFileEvents returns the newest file events, newest first.
func (q *Queue) RecentFileEvents(ctx context.Context, limit int) ([]types.FileEvent, error) {
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT id, path, event, source, details, created_at
		 FROM file_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storage.WrapDBError("recent file events", err)
	}
	defer func() { _ = rows.Close() }()

	var events []types.FileEvent
	for rows.Next() {
		var ev types.FileEvent
		var details sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Path, &ev.Event, &ev.Source, &details, &ev.CreatedAt); err != nil {
			return nil, storage.WrapDBError("scan file event", err)
		}
		ev.Details = details.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CleanupFileEvents deletes file events older than ttlSecs, keeping the
// journal bounded.
func (q *Queue) CleanupFileEvents(ctx context.Context, ttlSecs int64) (int64, error) {
	cutoff := q.now().Unix() - ttlSecs
	result, err := q.store.DB().ExecContext(ctx,
		`DELETE FROM file_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, storage.WrapDBError("cleanup file events", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, storage.WrapDBError("cleanup file events count", err)
	}
	return deleted, nil
}
