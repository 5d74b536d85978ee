package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BnJam/hyperion/internal/queue"
	"github.com/BnJam/hyperion/internal/storage"
	"github.com/BnJam/hyperion/internal/types"
)

func setupQueue(t *testing.T) *queue.Queue {
	t.Helper()
	store, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return queue.New(store)
}

func TestRecentFilesBounded(t *testing.T) {
	var r RecentFiles
	for i := 0; i < 15; i++ {
		r.Push(fmt.Sprintf("file-%d", i))
	}
	got := r.Snapshot()
	require.Len(t, got, 10)
	assert.Equal(t, "file-14", got[0], "newest first")
	assert.Equal(t, "file-5", got[9], "oldest kept entry")
}

func TestIngestChangeRequest(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	patch := "+++ b/x.txt\n@@ -0,0 +1 @@\n+hi\n"
	request := types.ChangeRequest{
		TaskID: "T1",
		Agent:  "drop",
		Changes: []types.ChangeOperation{{
			Path: "x.txt", Operation: types.OpAdd, Patch: patch,
		}},
		Checks: []string{"true"},
	}
	data, err := json.Marshal(request)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	require.NoError(t, IngestChangeRequest(ctx, q, path))

	entries, err := q.List(ctx, types.StatusPending)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "T1", entries[0].Payload.TaskID)
}

func TestIngestRejectsInvalidRequest(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"task_id":"T1"}`), 0o644))

	err := IngestChangeRequest(ctx, q, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid change request")

	entries, err := q.List(ctx, types.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, entries, "invalid files must not reach the queue")
}

func TestIngestRejectsMalformedJSON(t *testing.T) {
	q := setupQueue(t)
	path := filepath.Join(t.TempDir(), "garbage.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	err := IngestChangeRequest(context.Background(), q, path)
	assert.Error(t, err)
}

func TestMonitorJournalsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := setupQueue(t)
	root := t.TempDir()

	var recent RecentFiles
	done := make(chan error, 1)
	go func() { done <- Monitor(ctx, q, root, &recent) }()

	// Give the watcher a moment to attach before touching files.
	time.Sleep(100 * time.Millisecond)
	target := filepath.Join(root, "touched.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		events, err := q.RecentFileEvents(ctx, 10)
		return err == nil && len(events) > 0
	}, 3*time.Second, 50*time.Millisecond, "file event should be journaled")

	assert.NotEmpty(t, recent.Snapshot())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}

func TestWatchDirectoryIngestsDroppedFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := setupQueue(t)
	dir := t.TempDir()

	done := make(chan error, 1)
	go func() { done <- WatchDirectory(ctx, q, dir) }()
	time.Sleep(100 * time.Millisecond)

	patch := "+++ b/x.txt\n@@ -0,0 +1 @@\n+hi\n"
	request := types.ChangeRequest{
		TaskID: "DROP-1",
		Agent:  "drop",
		Changes: []types.ChangeOperation{{
			Path: "x.txt", Operation: types.OpAdd, Patch: patch,
		}},
		Checks: []string{"true"},
	}
	data, err := json.Marshal(request)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop.json"), data, 0o644))

	require.Eventually(t, func() bool {
		entries, err := q.List(ctx, types.StatusPending)
		return err == nil && len(entries) == 1
	}, 3*time.Second, 50*time.Millisecond, "dropped request should be enqueued")

	// Non-JSON files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	entries, err := q.List(ctx, types.StatusPending)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}
