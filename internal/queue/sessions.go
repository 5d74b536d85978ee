package queue

import (
	"context"
	"database/sql"
	"errors"

	"github.com/BnJam/hyperion/internal/storage"
	"github.com/BnJam/hyperion/internal/types"
)

// UpsertAgentSession creates or refreshes the session addressed by resumeID
// and returns the stored row.
func (q *Queue) UpsertAgentSession(ctx context.Context, resumeID, model string, allowAllTools bool) (*types.AgentSession, error) {
	now := q.now().Unix()
	_, err := q.store.DB().ExecContext(ctx,
		`INSERT INTO agent_sessions (resume_id, model, allow_all_tools, created_at, last_used)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(resume_id) DO UPDATE SET
		   model = excluded.model,
		   allow_all_tools = excluded.allow_all_tools,
		   last_used = excluded.last_used`,
		resumeID, model, boolToInt(allowAllTools), now, now)
	if err != nil {
		return nil, storage.WrapDBError("upsert agent session", err)
	}
	return q.getAgentSession(ctx, resumeID)
}

// TouchAgentSession bumps last_used for the session addressed by resumeID.
func (q *Queue) TouchAgentSession(ctx context.Context, resumeID string) error {
	result, err := q.store.DB().ExecContext(ctx,
		`UPDATE agent_sessions SET last_used = ? WHERE resume_id = ?`,
		q.now().Unix(), resumeID)
	if err != nil {
		return storage.WrapDBError("touch agent session", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.WrapDBError("touch agent session count", err)
	}
	if affected == 0 {
		return storage.WrapDBError("touch agent session", sql.ErrNoRows)
	}
	return nil
}

// ListAgentSessions returns every recorded session, most recently used first.
func (q *Queue) ListAgentSessions(ctx context.Context) ([]types.AgentSession, error) {
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT id, resume_id, model, allow_all_tools, created_at, last_used
		 FROM agent_sessions ORDER BY last_used DESC, id DESC`)
	if err != nil {
		return nil, storage.WrapDBError("list agent sessions", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []types.AgentSession
	for rows.Next() {
		session, err := scanAgentSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// LatestAgentSession returns the most recently used session, or nil when none
// are recorded.
func (q *Queue) LatestAgentSession(ctx context.Context) (*types.AgentSession, error) {
	row := q.store.DB().QueryRowContext(ctx,
		`SELECT id, resume_id, model, allow_all_tools, created_at, last_used
		 FROM agent_sessions ORDER BY last_used DESC, id DESC LIMIT 1`)
	session, err := scanAgentSession(row)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (q *Queue) getAgentSession(ctx context.Context, resumeID string) (*types.AgentSession, error) {
	row := q.store.DB().QueryRowContext(ctx,
		`SELECT id, resume_id, model, allow_all_tools, created_at, last_used
		 FROM agent_sessions WHERE resume_id = ?`, resumeID)
	return scanAgentSession(row)
}

func scanAgentSession(row rowScanner) (*types.AgentSession, error) {
	var session types.AgentSession
	var allowAllTools int
	if err := row.Scan(&session.ID, &session.ResumeID, &session.Model,
		&allowAllTools, &session.CreatedAt, &session.LastUsed); err != nil {
		return nil, storage.WrapDBError("scan agent session", err)
	}
	session.AllowAllTools = allowAllTools != 0
	return &session, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
