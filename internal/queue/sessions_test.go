package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BnJam/hyperion/internal/storage"
)

func TestUpsertAgentSession(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	session, err := q.UpsertAgentSession(ctx, "resume-1", "gpt-5-mini", true)
	require.NoError(t, err)
	assert.Equal(t, "resume-1", session.ResumeID)
	assert.Equal(t, "gpt-5-mini", session.Model)
	assert.True(t, session.AllowAllTools)

	// Upsert by the same resume_id updates in place.
	updated, err := q.UpsertAgentSession(ctx, "resume-1", "claude-sonnet", false)
	require.NoError(t, err)
	assert.Equal(t, session.ID, updated.ID)
	assert.Equal(t, "claude-sonnet", updated.Model)
	assert.False(t, updated.AllowAllTools)

	sessions, err := q.ListAgentSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestLatestAgentSession(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	latest, err := q.LatestAgentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "no sessions recorded yet")

	base := time.Now()
	q.SetClock(func() time.Time { return base })
	_, err = q.UpsertAgentSession(ctx, "old", "m", true)
	require.NoError(t, err)
	q.SetClock(func() time.Time { return base.Add(time.Second) })
	_, err = q.UpsertAgentSession(ctx, "new", "m", true)
	require.NoError(t, err)

	latest, err = q.LatestAgentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "new", latest.ResumeID)

	// Touch bumps old back to the top.
	q.SetClock(func() time.Time { return base.Add(2 * time.Second) })
	require.NoError(t, q.TouchAgentSession(ctx, "old"))
	latest, err = q.LatestAgentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "old", latest.ResumeID)
}

func TestTouchAgentSessionMissing(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)
	assert.ErrorIs(t, q.TouchAgentSession(ctx, "ghost"), storage.ErrNotFound)
}

func TestFileEventJournal(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	require.NoError(t, q.RecordFileEvent(ctx, "src/a.go", "Modify", "fsnotify",
		map[string]string{"path": "src/a.go"}))
	require.NoError(t, q.RecordFileEvent(ctx, "src/b.go", "Create", "fsnotify", nil))

	events, err := q.RecentFileEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "src/b.go", events[0].Path, "newest first")
	assert.Equal(t, "fsnotify", events[0].Source)
	assert.Empty(t, events[0].Details)
	assert.Contains(t, events[1].Details, "src/a.go")
}

func TestCleanupFileEvents(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	base := time.Now()
	q.SetClock(func() time.Time { return base.Add(-2 * time.Hour) })
	require.NoError(t, q.RecordFileEvent(ctx, "old.go", "Modify", "fsnotify", nil))
	q.SetClock(func() time.Time { return base })
	require.NoError(t, q.RecordFileEvent(ctx, "new.go", "Modify", "fsnotify", nil))

	deleted, err := q.CleanupFileEvents(ctx, 3600)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, err := q.RecentFileEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new.go", events[0].Path)
}
