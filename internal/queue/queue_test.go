package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BnJam/hyperion/internal/storage"
	"github.com/BnJam/hyperion/internal/types"
)

func setupQueue(t *testing.T) *Queue {
	t.Helper()
	store, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func testRequest(taskID string) *types.ChangeRequest {
	patch := "+++ b/x.txt\n@@ -0,0 +1 @@\n+hi\n"
	return &types.ChangeRequest{
		TaskID: taskID,
		Agent:  "a1",
		Changes: []types.ChangeOperation{{
			Path:      "x.txt",
			Operation: types.OpAdd,
			Patch:     patch,
			PatchHash: types.PatchHash(patch),
		}},
		Checks: []string{"true"},
	}
}

func TestEnqueueDequeueHappyPath(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	id, err := q.Enqueue(ctx, testRequest("T1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	entry, err := q.Dequeue(ctx, 10*time.Second, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(1), entry.ID)
	assert.Equal(t, types.StatusInProgress, entry.Status)
	assert.Equal(t, int64(1), entry.Attempts)
	assert.Equal(t, "worker-1", entry.LeaseOwner)
	require.NotNil(t, entry.LeasedUntil)
	assert.Greater(t, *entry.LeasedUntil, time.Now().Unix())
	assert.Equal(t, "T1", entry.Payload.TaskID)

	require.NoError(t, q.MarkApplied(ctx, entry.ID))

	applied, err := q.List(ctx, types.StatusApplied)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "T1", applied[0].Payload.TaskID)
	assert.Nil(t, applied[0].LeasedUntil, "terminal rows must not hold a lease")
	assert.Empty(t, applied[0].LeaseOwner)
}

func TestDequeueEmptyQueue(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	entry, err := q.Dequeue(ctx, time.Second, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestEnqueueOrderEqualsDispatchOrder(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	a, err := q.Enqueue(ctx, testRequest("A"))
	require.NoError(t, err)
	b, err := q.Enqueue(ctx, testRequest("B"))
	require.NoError(t, err)
	assert.Less(t, a, b)

	entry, err := q.Dequeue(ctx, 10*time.Second, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, a, entry.ID, "first dequeue must return the oldest entry")
}

func TestDequeueDoesNotDoubleClaim(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	_, err := q.Enqueue(ctx, testRequest("T1"))
	require.NoError(t, err)

	first, err := q.Dequeue(ctx, 60*time.Second, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := q.Dequeue(ctx, 60*time.Second, "worker-b")
	require.NoError(t, err)
	assert.Nil(t, second, "live lease must block a second claim")
}

func TestLeaseReclamation(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	_, err := q.Enqueue(ctx, testRequest("T1"))
	require.NoError(t, err)

	base := time.Now()
	q.SetClock(func() time.Time { return base })

	first, err := q.Dequeue(ctx, 1*time.Second, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(1), first.Attempts)

	// Advance the clock 2s: worker-a's lease is now expired.
	q.SetClock(func() time.Time { return base.Add(2 * time.Second) })

	second, err := q.Dequeue(ctx, 1*time.Second, "worker-b")
	require.NoError(t, err)
	require.NotNil(t, second, "expired lease must be reclaimable")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2), second.Attempts, "attempts increment on reclamation")
	assert.Equal(t, "worker-b", second.LeaseOwner)
}

func TestConcurrentDequeueDisjointClaims(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	const entries = 6
	for i := 0; i < entries; i++ {
		_, err := q.Enqueue(ctx, testRequest("T"))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := make(map[int64]string)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		owner := string(rune('a' + w))
		go func() {
			defer wg.Done()
			for {
				entry, err := q.Dequeue(ctx, time.Minute, owner)
				if err != nil || entry == nil {
					return
				}
				mu.Lock()
				prev, dup := claimed[entry.ID]
				claimed[entry.ID] = owner
				mu.Unlock()
				assert.False(t, dup, "entry %d claimed by both %s and %s", entry.ID, prev, owner)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, claimed, entries)
}

func TestMarkRetryReturnsEntryToPending(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	id, err := q.Enqueue(ctx, testRequest("T1"))
	require.NoError(t, err)

	entry, err := q.Dequeue(ctx, time.Minute, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, entry)

	require.NoError(t, q.MarkRetry(ctx, id, "apply failed: transient"))

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Nil(t, got.LeasedUntil)
	assert.Empty(t, got.LeaseOwner)
	assert.Equal(t, "apply failed: transient", got.LastError)
	assert.Equal(t, int64(1), got.Attempts, "retry must not reset attempts")

	// Second claim sees attempts = 2.
	entry, err = q.Dequeue(ctx, time.Minute, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(2), entry.Attempts)
}

func TestMarkFailedWritesDeadLetterAtomically(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	id, err := q.Enqueue(ctx, testRequest("T1"))
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Minute, "worker-a")
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(ctx, id, "max attempts reached (3/2)"))

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Nil(t, got.LeasedUntil)

	letters, err := q.ListDeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, id, letters[0].QueueID)
	assert.Equal(t, "T1", letters[0].TaskID)
	assert.Equal(t, "a1", letters[0].Agent)
	assert.Equal(t, "max attempts reached (3/2)", letters[0].Error)

	// Failing an already-failed row is a no-op: exactly one dead letter.
	require.NoError(t, q.MarkFailed(ctx, id, "again"))
	letters, err = q.ListDeadLetters(ctx)
	require.NoError(t, err)
	assert.Len(t, letters, 1)
}

func TestTerminalStatesDoNotUnterminate(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	appliedID, err := q.Enqueue(ctx, testRequest("T1"))
	require.NoError(t, err)
	failedID, err := q.Enqueue(ctx, testRequest("T2"))
	require.NoError(t, err)

	_, err = q.Dequeue(ctx, time.Minute, "w")
	require.NoError(t, err)
	require.NoError(t, q.MarkApplied(ctx, appliedID))
	_, err = q.Dequeue(ctx, time.Minute, "w")
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, failedID, "boom"))

	// Applied is idempotent; every cross-terminal move is illegal.
	require.NoError(t, q.MarkApplied(ctx, appliedID))
	assert.ErrorIs(t, q.MarkFailed(ctx, appliedID, "x"), storage.ErrIllegalTransition)
	assert.ErrorIs(t, q.MarkApplied(ctx, failedID), storage.ErrIllegalTransition)
	assert.ErrorIs(t, q.MarkRetry(ctx, appliedID, "x"), storage.ErrIllegalTransition)
	assert.ErrorIs(t, q.MarkRetry(ctx, failedID, "x"), storage.ErrIllegalTransition)
}

func TestMarkAppliedMissingEntry(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)
	assert.ErrorIs(t, q.MarkApplied(ctx, 42), storage.ErrNotFound)
}

func TestCorruptPayloadSurfacesWithoutAlteringRow(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	id, err := q.Enqueue(ctx, testRequest("T1"))
	require.NoError(t, err)

	_, err = q.Store().DB().ExecContext(ctx,
		`UPDATE change_queue SET payload = 'not json' WHERE id = ?`, id)
	require.NoError(t, err)

	_, err = q.Get(ctx, id)
	assert.ErrorIs(t, err, storage.ErrCorruptPayload)

	_, err = q.Dequeue(ctx, time.Minute, "w")
	assert.ErrorIs(t, err, storage.ErrCorruptPayload)

	// The failed claim must not have leased the row.
	var status string
	var attempts int64
	require.NoError(t, q.Store().DB().QueryRow(
		`SELECT status, attempts FROM change_queue WHERE id = ?`, id).Scan(&status, &attempts))
	assert.Equal(t, string(types.StatusPending), status)
	assert.Equal(t, int64(0), attempts)
}

func TestCleanupStaleDeletesOnlyOldTerminalRows(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	base := time.Now()
	q.SetClock(func() time.Time { return base.Add(-2 * time.Hour) })

	oldApplied, err := q.Enqueue(ctx, testRequest("OLD"))
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Minute, "w")
	require.NoError(t, err)
	require.NoError(t, q.MarkApplied(ctx, oldApplied))

	q.SetClock(func() time.Time { return base })
	freshPending, err := q.Enqueue(ctx, testRequest("FRESH"))
	require.NoError(t, err)

	deleted, err := q.CleanupStale(ctx, 3600)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = q.Get(ctx, oldApplied)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = q.Get(ctx, freshPending)
	assert.NoError(t, err)
}

func TestRecentRecordsNewestFirst(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	base := time.Now()
	q.SetClock(func() time.Time { return base })
	_, err := q.Enqueue(ctx, testRequest("T1"))
	require.NoError(t, err)
	q.SetClock(func() time.Time { return base.Add(time.Second) })
	second, err := q.Enqueue(ctx, testRequest("T2"))
	require.NoError(t, err)

	records, err := q.RecentRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second, records[0].ID)
}
