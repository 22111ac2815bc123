package queue

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "extraction_queue.jsonl"))
}

func item(sessionID string) Item {
	return Item{
		SessionID:      sessionID,
		TranscriptPath: "/tmp/session_" + sessionID + ".jsonl",
		Timestamp:      "2026-01-12T10:00:00Z",
		HookEvent:      "Stop",
	}
}

func TestPushAndItems(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Push(item("s1")))
	require.NoError(t, q.Push(item("s2")))

	items, err := q.Items()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "s1", items[0].SessionID)
	assert.Equal(t, "Stop", items[0].HookEvent)
}

func TestEmptyQueue(t *testing.T) {
	q := newTestQueue(t)
	items, err := q.Items()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRemove(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Push(item("s1")))
	require.NoError(t, q.Push(item("s2")))
	require.NoError(t, q.Push(item("s3")))

	require.NoError(t, q.Remove("s2"))

	items, err := q.Items()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "s1", items[0].SessionID)
	assert.Equal(t, "s3", items[1].SessionID)
}

func TestRemoveAbsentSession(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Push(item("s1")))
	require.NoError(t, q.Remove("ghost"))

	items, err := q.Items()
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// Queue round-trip: remaining sessions equal queued minus removed.
func TestQueueRoundTrip(t *testing.T) {
	q := newTestQueue(t)

	queued := map[string]bool{}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("s%d", i)
		require.NoError(t, q.Push(item(id)))
		queued[id] = true
	}
	for _, id := range []string{"s1", "s4", "s7"} {
		require.NoError(t, q.Remove(id))
		delete(queued, id)
	}

	items, err := q.Items()
	require.NoError(t, err)
	remaining := map[string]bool{}
	for _, it := range items {
		remaining[it.SessionID] = true
	}
	assert.Equal(t, queued, remaining)
}

func TestRecordFailure(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Push(item("s1")))

	require.NoError(t, q.RecordFailure("s1", "extractor unavailable"))
	require.NoError(t, q.RecordFailure("s1", "still unavailable"))

	items, err := q.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Retries)
	assert.Equal(t, "still unavailable", items[0].LastError)
}

func TestClear(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Push(item("s1")))
	require.NoError(t, q.Clear())

	items, err := q.Items()
	require.NoError(t, err)
	assert.Empty(t, items)
}
