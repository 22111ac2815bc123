package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/recall/internal/storage"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return New(filepath.Join(t.TempDir(), ".extraction_state.json"))
}

func initialState() *ExtractionState {
	return &ExtractionState{
		Status:    StatusRunning,
		StartedAt: "2026-01-12T10:00:00Z",
		Transcripts: []TranscriptState{
			{ID: "s1", Status: TranscriptPending},
			{ID: "s2", Status: TranscriptPending},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Save(initialState()))

	s, err := tr.Load()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, StatusRunning, s.Status)
	assert.Len(t, s.Transcripts, 2)
	assert.NotEmpty(t, s.LastUpdate)
}

func TestLoadMissingReturnsNil(t *testing.T) {
	tr := newTestTracker(t)
	s, err := tr.Load()
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoadCorruptSurfaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".extraction_state.json")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))

	_, err := New(path).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrCorrupt))
}

func TestUpdateTranscriptProgression(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Save(initialState()))

	require.NoError(t, tr.UpdateTranscript("s1", TranscriptInProgress, 0))
	require.NoError(t, tr.UpdateTranscript("s1", TranscriptCompleted, 5))

	s, err := tr.Load()
	require.NoError(t, err)
	assert.Equal(t, TranscriptCompleted, s.Transcripts[0].Status)
	assert.Equal(t, 5, s.Transcripts[0].Memories)
	assert.NotEmpty(t, s.Transcripts[0].CompletedAt)
	// The sibling transcript is untouched.
	assert.Equal(t, TranscriptPending, s.Transcripts[1].Status)
}

func TestUpdateTranscriptUnknownID(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Save(initialState()))
	require.NoError(t, tr.UpdateTranscript("ghost", TranscriptCompleted, 3))

	s, err := tr.Load()
	require.NoError(t, err)
	assert.Equal(t, TranscriptPending, s.Transcripts[0].Status)
}

func TestUpdateTranscriptNoState(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.UpdateTranscript("s1", TranscriptCompleted, 1))
}

func TestSetPidAndFinish(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Save(initialState()))

	require.NoError(t, tr.SetPid(4242))
	s, err := tr.Load()
	require.NoError(t, err)
	assert.Equal(t, 4242, s.Pid)
	assert.Equal(t, StatusRunning, s.Status)

	require.NoError(t, tr.Finish(StatusCompletedWithErrors))
	s, err = tr.Load()
	require.NoError(t, err)
	assert.Equal(t, StatusCompletedWithErrors, s.Status)
	assert.Zero(t, s.Pid)
}

func TestClear(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Save(initialState()))
	require.NoError(t, tr.Save(initialState())) // create backup too
	require.NoError(t, tr.Clear())

	s, err := tr.Load()
	require.NoError(t, err)
	assert.Nil(t, s)
	_, statErr := os.Stat(storage.BackupPath(tr.Path))
	assert.True(t, os.IsNotExist(statErr))

	// Clearing again is safe.
	require.NoError(t, tr.Clear())
}

func TestAggregates(t *testing.T) {
	s := &ExtractionState{Transcripts: []TranscriptState{
		{ID: "a", Status: TranscriptCompleted, Memories: 3},
		{ID: "b", Status: TranscriptFailed},
		{ID: "c", Status: TranscriptCompleted, Memories: 4},
	}}
	assert.Equal(t, 2, s.CompletedCount())
	assert.Equal(t, 7, s.MemoriesTotal())
}
