// Package queue implements the durable leased job queue over the storage
// layer: exactly-one-claim dequeue, time-bounded leases, bounded retries, and
// atomic dead-lettering.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BnJam/hyperion/internal/storage"
	"github.com/BnJam/hyperion/internal/types"
)

// DefaultAppliedRetentionSecs is how long terminal rows are kept before
// cleanup deletes them (7 days).
const DefaultAppliedRetentionSecs int64 = 7 * 24 * 60 * 60

// DeadLetterRetentionSecs is the archival window for dead letters (30 days).
const DeadLetterRetentionSecs int64 = 30 * 24 * 60 * 60

// Queue is the leased change-request queue. All mutation goes through the
// store; its transactions are the only critical section.
type Queue struct {
	store *storage.Store

	// now is the clock used for leases and timestamps. Tests override it to
	// expire leases without sleeping.
	now func() time.Time
}

// New wraps an open store.
func New(store *storage.Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// Store exposes the underlying store to read-mostly consumers (doctor,
// dashboard).
func (q *Queue) Store() *storage.Store {
	return q.store
}

// SetClock overrides the queue clock. Intended for tests.
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
}

// Enqueue serializes request and inserts it as a pending entry, returning the
// new id. Insertion order equals dispatch order.
func (q *Queue) Enqueue(ctx context.Context, request *types.ChangeRequest) (int64, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return 0, fmt.Errorf("serialize change request: %w", err)
	}
	now := q.now().Unix()
	result, err := q.store.DB().ExecContext(ctx,
		`INSERT INTO change_queue (status, payload, attempts, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)`,
		string(types.StatusPending), string(payload), now, now)
	if err != nil {
		return 0, storage.WrapDBError("enqueue", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storage.WrapDBError("enqueue id", err)
	}
	return id, nil
}

// Dequeue atomically claims the oldest eligible entry: pending rows and
// in_progress rows whose lease has expired are equally claimable. Returns nil
// when nothing is eligible. The returned entry has attempts >= 1.
func (q *Queue) Dequeue(ctx context.Context, lease time.Duration, owner string) (*types.QueueEntry, error) {
	now := q.now().Unix()
	leasedUntil := now + int64(lease.Seconds())

	var entry *types.QueueEntry
	err := q.store.RunInTransaction(ctx, func(tx *storage.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT id, status, payload, attempts, last_error, leased_until, lease_owner, created_at, updated_at
			 FROM change_queue
			 WHERE status = ?
			    OR (status = ? AND leased_until < ?)
			 ORDER BY id
			 LIMIT 1`,
			string(types.StatusPending), string(types.StatusInProgress), now)

		claimed, err := scanEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE change_queue
			 SET status = ?, attempts = attempts + 1, leased_until = ?, lease_owner = ?, updated_at = ?
			 WHERE id = ?`,
			string(types.StatusInProgress), leasedUntil, owner, now, claimed.ID); err != nil {
			return fmt.Errorf("claim entry %d: %w", claimed.ID, err)
		}

		claimed.Status = types.StatusInProgress
		claimed.Attempts++
		claimed.LeasedUntil = &leasedUntil
		claimed.LeaseOwner = owner
		claimed.UpdatedAt = now
		entry = claimed
		return nil
	})
	if err != nil {
		return nil, storage.WrapDBError("dequeue", err)
	}
	return entry, nil
}

// MarkApplied transitions an entry to applied and clears its lease. A second
// call on an applied row is a no-op; calling it on a failed row is an illegal
// transition (terminal states never un-terminate).
func (q *Queue) MarkApplied(ctx context.Context, id int64) error {
	return q.markTerminalSafe(ctx, id, types.StatusApplied, "")
}

// MarkRetry returns an entry to pending for another claim, clearing the lease
// and recording the error that sent it back.
func (q *Queue) MarkRetry(ctx context.Context, id int64, errMsg string) error {
	now := q.now().Unix()
	err := q.store.RunInTransaction(ctx, func(tx *storage.Tx) error {
		status, err := entryStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if status.Terminal() {
			return fmt.Errorf("mark entry %d retry from %s: %w", id, status, storage.ErrIllegalTransition)
		}
		_, err = tx.Exec(ctx,
			`UPDATE change_queue
			 SET status = ?, leased_until = NULL, lease_owner = NULL, last_error = ?, updated_at = ?
			 WHERE id = ?`,
			string(types.StatusPending), nullable(errMsg), now, id)
		return err
	})
	return storage.WrapDBError("mark retry", err)
}

// MarkFailed transitions an entry to failed and archives a dead-letter copy of
// its payload in the same transaction: both happen or neither does. A second
// call on an already-failed row is a no-op (and writes no duplicate dead
// letter); calling it on an applied row is an illegal transition.
func (q *Queue) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	now := q.now().Unix()
	err := q.store.RunInTransaction(ctx, func(tx *storage.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT status, payload FROM change_queue WHERE id = ?`, id)
		var statusStr, payload string
		if err := row.Scan(&statusStr, &payload); err != nil {
			return err
		}
		status, err := types.ParseStatus(statusStr)
		if err != nil {
			return err
		}
		switch status {
		case types.StatusFailed:
			return nil
		case types.StatusApplied:
			return fmt.Errorf("mark entry %d failed from %s: %w", id, status, storage.ErrIllegalTransition)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE change_queue
			 SET status = ?, leased_until = NULL, lease_owner = NULL, last_error = ?, updated_at = ?
			 WHERE id = ?`,
			string(types.StatusFailed), nullable(errMsg), now, id); err != nil {
			return fmt.Errorf("fail entry %d: %w", id, err)
		}

		taskID, agent := payloadIdentity(payload)
		if _, err := tx.Exec(ctx,
			`INSERT INTO dead_letters (queue_id, task_id, agent, payload, error, failed_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, taskID, agent, payload, nullable(errMsg), now); err != nil {
			return fmt.Errorf("archive entry %d: %w", id, err)
		}
		return nil
	})
	return storage.WrapDBError("mark failed", err)
}

// markTerminalSafe implements MarkApplied's idempotence rules.
func (q *Queue) markTerminalSafe(ctx context.Context, id int64, target types.Status, errMsg string) error {
	now := q.now().Unix()
	err := q.store.RunInTransaction(ctx, func(tx *storage.Tx) error {
		status, err := entryStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if status == target {
			return nil
		}
		if status.Terminal() {
			return fmt.Errorf("mark entry %d %s from %s: %w", id, target, status, storage.ErrIllegalTransition)
		}
		_, err = tx.Exec(ctx,
			`UPDATE change_queue
			 SET status = ?, leased_until = NULL, lease_owner = NULL, last_error = ?, updated_at = ?
			 WHERE id = ?`,
			string(target), nullable(errMsg), now, id)
		return err
	})
	return storage.WrapDBError("mark "+string(target), err)
}

// Get returns a single entry by id.
func (q *Queue) Get(ctx context.Context, id int64) (*types.QueueEntry, error) {
	row := q.store.DB().QueryRowContext(ctx,
		`SELECT id, status, payload, attempts, last_error, leased_until, lease_owner, created_at, updated_at
		 FROM change_queue WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, storage.WrapDBError("get entry", err)
	}
	return entry, nil
}

// List returns every entry with the given status, oldest first.
func (q *Queue) List(ctx context.Context, status types.Status) ([]types.QueueEntry, error) {
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT id, status, payload, attempts, last_error, leased_until, lease_owner, created_at, updated_at
		 FROM change_queue WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, storage.WrapDBError("list entries", err)
	}
	return collectEntries(rows)
}

// RecentRecords returns the most recently updated entries, newest first.
func (q *Queue) RecentRecords(ctx context.Context, limit int) ([]types.QueueEntry, error) {
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT id, status, payload, attempts, last_error, leased_until, lease_owner, created_at, updated_at
		 FROM change_queue ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storage.WrapDBError("recent records", err)
	}
	return collectEntries(rows)
}

// ListDeadLetters returns every dead letter, newest first.
func (q *Queue) ListDeadLetters(ctx context.Context) ([]types.DeadLetter, error) {
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT id, queue_id, task_id, agent, payload, error, failed_at
		 FROM dead_letters ORDER BY id DESC`)
	if err != nil {
		return nil, storage.WrapDBError("list dead letters", err)
	}
	defer func() { _ = rows.Close() }()

	var letters []types.DeadLetter
	for rows.Next() {
		var dl types.DeadLetter
		var errMsg sql.NullString
		if err := rows.Scan(&dl.ID, &dl.QueueID, &dl.TaskID, &dl.Agent, &dl.Payload, &errMsg, &dl.FailedAt); err != nil {
			return nil, storage.WrapDBError("scan dead letter", err)
		}
		dl.Error = errMsg.String
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

// DeadLetterCount returns the number of archived dead letters.
func (q *Queue) DeadLetterCount(ctx context.Context) (int64, error) {
	var count int64
	err := q.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&count)
	if err != nil {
		return 0, storage.WrapDBError("dead letter count", err)
	}
	return count, nil
}

// CleanupStale deletes terminal entries not updated within ttlSecs, returning
// how many were removed. The deletion is journaled as a cleanup event.
func (q *Queue) CleanupStale(ctx context.Context, ttlSecs int64) (int64, error) {
	cutoff := q.now().Unix() - ttlSecs
	result, err := q.store.DB().ExecContext(ctx,
		`DELETE FROM change_queue WHERE status IN (?, ?) AND updated_at < ?`,
		string(types.StatusApplied), string(types.StatusFailed), cutoff)
	if err != nil {
		return 0, storage.WrapDBError("cleanup stale", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, storage.WrapDBError("cleanup stale count", err)
	}
	_ = q.LogEvent(ctx, 0, "cleanup", "info", "cleanup removed stale records",
		map[string]any{"deleted": deleted, "ttl_seconds": ttlSecs})
	return deleted, nil
}

// CountAppliedOlderThan counts applied rows whose last update is older than
// the retention window. Used by doctor.
func (q *Queue) CountAppliedOlderThan(ctx context.Context, retentionSecs int64) (int64, error) {
	cutoff := q.now().Unix() - retentionSecs
	var count int64
	err := q.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_queue WHERE status = ? AND updated_at < ?`,
		string(types.StatusApplied), cutoff).Scan(&count)
	if err != nil {
		return 0, storage.WrapDBError("count stale applied", err)
	}
	return count, nil
}

// CountDeadLettersOlderThan counts dead letters past the retention window.
func (q *Queue) CountDeadLettersOlderThan(ctx context.Context, retentionSecs int64) (int64, error) {
	cutoff := q.now().Unix() - retentionSecs
	var count int64
	err := q.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dead_letters WHERE failed_at < ?`, cutoff).Scan(&count)
	if err != nil {
		return 0, storage.WrapDBError("count stale dead letters", err)
	}
	return count, nil
}

// entryStatus reads an entry's status inside a transaction.
func entryStatus(ctx context.Context, tx *storage.Tx, id int64) (types.Status, error) {
	var statusStr string
	if err := tx.QueryRow(ctx, `SELECT status FROM change_queue WHERE id = ?`, id).Scan(&statusStr); err != nil {
		return "", err
	}
	return types.ParseStatus(statusStr)
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry decodes one change_queue row. A payload that no longer parses
// surfaces ErrCorruptPayload without touching the row.
func scanEntry(row rowScanner) (*types.QueueEntry, error) {
	var entry types.QueueEntry
	var statusStr, payload string
	var lastError, leaseOwner sql.NullString
	var leasedUntil sql.NullInt64
	if err := row.Scan(&entry.ID, &statusStr, &payload, &entry.Attempts,
		&lastError, &leasedUntil, &leaseOwner, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return nil, err
	}

	status, err := types.ParseStatus(statusStr)
	if err != nil {
		return nil, err
	}
	entry.Status = status
	entry.LastError = lastError.String
	entry.LeaseOwner = leaseOwner.String
	if leasedUntil.Valid {
		v := leasedUntil.Int64
		entry.LeasedUntil = &v
	}

	if err := json.Unmarshal([]byte(payload), &entry.Payload); err != nil {
		return nil, fmt.Errorf("entry %d: %w: %v", entry.ID, storage.ErrCorruptPayload, err)
	}
	return &entry, nil
}

func collectEntries(rows *sql.Rows) ([]types.QueueEntry, error) {
	defer func() { _ = rows.Close() }()
	var entries []types.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// payloadIdentity pulls task_id and agent out of a raw payload for the dead
// letter row. A payload too corrupt to parse still gets archived.
func payloadIdentity(payload string) (taskID, agent string) {
	var req types.ChangeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "<corrupt>", "<corrupt>"
	}
	return req.TaskID, req.Agent
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
