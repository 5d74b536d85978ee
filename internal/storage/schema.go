package storage

const schema = `
-- Change queue: the coordination primitive. Claim ordering is strictly by id.
CREATE TABLE IF NOT EXISTS change_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    status TEXT NOT NULL DEFAULT 'pending',
    payload TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    leased_until INTEGER,
    lease_owner TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_change_queue_claim ON change_queue(status, leased_until, id);
CREATE INDEX IF NOT EXISTS idx_change_queue_updated_at ON change_queue(updated_at);

-- Dead letters: immutable archival copies of failed entries, written in the
-- same transaction as the Failed transition.
CREATE TABLE IF NOT EXISTS dead_letters (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    queue_id INTEGER NOT NULL,
    task_id TEXT NOT NULL,
    agent TEXT NOT NULL,
    payload TEXT NOT NULL,
    error TEXT,
    failed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dead_letters_failed_at ON dead_letters(failed_at);

-- Append-only journal. queue_id = 0 for events not tied to an entry. The
-- metrics aggregator reads dequeue_metrics/applied events back out of here.
CREATE TABLE IF NOT EXISTS queue_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    queue_id INTEGER NOT NULL DEFAULT 0,
    task_id TEXT NOT NULL DEFAULT '',
    level TEXT NOT NULL DEFAULT 'info',
    message TEXT NOT NULL,
    details TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_logs_created_at ON queue_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_queue_logs_message ON queue_logs(message);

-- Filesystem notification journal, bounded by periodic cleanup.
CREATE TABLE IF NOT EXISTS file_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    event TEXT NOT NULL,
    source TEXT NOT NULL,
    details TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_events_created_at ON file_events(created_at);

-- Agent sessions, upserted by resume_id.
CREATE TABLE IF NOT EXISTS agent_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    resume_id TEXT NOT NULL UNIQUE,
    model TEXT NOT NULL,
    allow_all_tools INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    last_used INTEGER NOT NULL
);
`

// requiredColumns lists every column the current code reads or writes, per
// table. VerifySchema checks these against PRAGMA table_info.
var requiredColumns = map[string][]string{
	"change_queue": {
		"id", "status", "payload", "attempts", "last_error",
		"leased_until", "lease_owner", "created_at", "updated_at",
	},
	"dead_letters": {
		"id", "queue_id", "task_id", "agent", "payload", "error", "failed_at",
	},
	"queue_logs": {
		"id", "queue_id", "task_id", "level", "message", "details", "created_at",
	},
	"file_events": {
		"id", "path", "event", "source", "details", "created_at",
	},
	"agent_sessions": {
		"id", "resume_id", "model", "allow_all_tools", "created_at", "last_used",
	},
}

// requiredIndexes lists the indexes dequeue and the retention queries rely on.
var requiredIndexes = []string{
	"idx_change_queue_claim",
	"idx_change_queue_updated_at",
	"idx_dead_letters_failed_at",
	"idx_queue_logs_created_at",
	"idx_file_events_created_at",
}
