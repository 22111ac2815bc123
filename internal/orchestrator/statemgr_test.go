package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	return NewManager(
		filepath.Join(dir, "session_manifest.json"),
		filepath.Join(dir, "checkpoints"),
		filepath.Join(dir, "impl_status.md"),
	)
}

func sampleCheckpoint(id, ts string) *Checkpoint {
	return &Checkpoint{
		CheckpointID:  id,
		Timestamp:     ts,
		SessionID:     "sess_001",
		Chunk:         "1.1",
		FilesModified: []string{"internal/x/x.go"},
		TestStatus:    "passing",
		Context:       map[string]any{"tokens_used": float64(1000)},
		NextActions:   []string{"continue"},
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	m := newTestManager(t)

	manifest, err := m.LoadManifest()
	require.NoError(t, err)
	assert.Empty(t, manifest.Sessions)
	assert.Zero(t, manifest.TotalChunks)
	assert.Empty(t, manifest.CurrentSession)
}

func TestManifestRoundTrip(t *testing.T) {
	m := newTestManager(t)

	manifest := &Manifest{
		Sessions: []Session{{
			SessionID:       "sess_001",
			Started:         "2026-01-12T10:00:00Z",
			Status:          SessionActive,
			ChunksCompleted: []string{"1.1", "1.2"},
			TokensUsed:      4000,
		}},
		TotalChunks:     5,
		CompletedChunks: []string{"1.1", "1.2"},
		CurrentSession:  "sess_001",
	}
	require.NoError(t, m.SaveManifest(manifest))

	loaded, err := m.LoadManifest()
	require.NoError(t, err)
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, "sess_001", loaded.Sessions[0].SessionID)
	assert.Equal(t, []string{"1.1", "1.2"}, loaded.Sessions[0].ChunksCompleted)
	assert.Equal(t, "sess_001", loaded.CurrentSession)
	assert.Equal(t, 5, loaded.TotalChunks)
}

func TestCorruptManifest(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.ManifestPath), 0o755))
	require.NoError(t, os.WriteFile(m.ManifestPath, []byte("{ invalid json"), 0o644))

	_, err := m.LoadManifest()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupted session manifest")
}

func TestCheckpointRoundTrip(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.SaveCheckpoint(sampleCheckpoint("chk_001", "2026-01-12T10:30:00Z")))

	loaded, err := m.LoadCheckpoint("chk_001")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "1.1", loaded.Chunk)
	assert.Equal(t, []string{"internal/x/x.go"}, loaded.FilesModified)
	assert.Equal(t, float64(1000), loaded.Context["tokens_used"])
}

func TestLoadCheckpointMissing(t *testing.T) {
	m := newTestManager(t)
	c, err := m.LoadCheckpoint("nope")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestLatestCheckpoint(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.SaveCheckpoint(sampleCheckpoint("chk_a", "2026-01-12T10:00:00Z")))
	require.NoError(t, m.SaveCheckpoint(sampleCheckpoint("chk_b", "2026-01-12T12:00:00Z")))
	require.NoError(t, m.SaveCheckpoint(sampleCheckpoint("chk_c", "2026-01-12T11:00:00Z")))

	latest, err := m.LatestCheckpoint()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "chk_b", latest.CheckpointID)
}

func TestLatestCheckpointEmpty(t *testing.T) {
	m := newTestManager(t)
	latest, err := m.LatestCheckpoint()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestUpdateImplStatusSections(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdateImplStatus("sess_001", "session_start", "STARTED"))
	require.NoError(t, m.UpdateImplStatus("sess_001", "1.1", "COMPLETED (passing)"))
	require.NoError(t, m.UpdateImplStatus("sess_002", "1.2", "COMPLETED (passing)"))

	data, err := os.ReadFile(m.ImplStatusPath)
	require.NoError(t, err)
	content := string(data)

	assert.Equal(t, 1, strings.Count(content, "## Session sess_001"))
	assert.Equal(t, 1, strings.Count(content, "## Session sess_002"))
	assert.Contains(t, content, "- [STARTED] session_start (")
	assert.Contains(t, content, "- [COMPLETED (passing)] Chunk 1.1 (")
	assert.Contains(t, content, "- [COMPLETED (passing)] Chunk 1.2 (")

	// Events land under their own session's header.
	idx001 := strings.Index(content, "## Session sess_001")
	idx002 := strings.Index(content, "## Session sess_002")
	idxChunk11 := strings.Index(content, "Chunk 1.1")
	assert.True(t, idx001 < idxChunk11 && idxChunk11 < idx002)
}

func TestIsSessionActive(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.IsSessionActive())

	require.NoError(t, m.UpdateImplStatus("sess_001", "session_start", "STARTED"))
	assert.True(t, m.IsSessionActive())
}

func TestTrackEditRequiresActiveSession(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.TrackEdit("internal/a/a.go"))
	_, err := os.Stat(m.ImplStatusPath)
	assert.True(t, os.IsNotExist(err))
}

func TestTrackEditAppendsUnderSession(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.UpdateImplStatus("sess_001", "session_start", "STARTED"))

	require.NoError(t, m.TrackEdit("internal/a/a.go"))
	require.NoError(t, m.TrackEdit("internal/b/b.go"))

	data, err := os.ReadFile(m.ImplStatusPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "- [MODIFIED] internal/a/a.go (")
	assert.Contains(t, content, "- [MODIFIED] internal/b/b.go (")
	assert.True(t, strings.Index(content, "## Session sess_001") < strings.Index(content, "[MODIFIED]"))
}

func TestCurrentSessionInfo(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdateImplStatus("sess_001", "session_start", "STARTED"))
	require.NoError(t, m.UpdateImplStatus("sess_001", "1.1", "COMPLETED (passing)"))
	require.NoError(t, m.TrackEdit("internal/old/old.go"))
	require.NoError(t, m.UpdateImplStatus("sess_002", "2.1", "COMPLETED (passing)"))
	require.NoError(t, m.TrackEdit("internal/a/a.go"))
	require.NoError(t, m.TrackEdit("internal/b/b.go"))

	info := m.CurrentSessionInfo()
	require.NotNil(t, info)
	assert.Equal(t, "sess_002", info.SessionID)
	assert.Equal(t, "2.1", info.LastChunk)
	assert.Equal(t, []string{"internal/a/a.go", "internal/b/b.go"}, info.FilesModified)
}

func TestCurrentSessionInfoEmpty(t *testing.T) {
	m := newTestManager(t)
	assert.Nil(t, m.CurrentSessionInfo())
}

func TestPreCompactWithoutSession(t *testing.T) {
	m := newTestManager(t)

	result := m.PreCompact()
	assert.True(t, result.Continue)
	assert.False(t, result.CheckpointCreated)
}

func TestPreCompactCreatesEmergencyCheckpoint(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.UpdateImplStatus("sess_001", "1.1", "COMPLETED (passing)"))
	require.NoError(t, m.TrackEdit("internal/a/a.go"))

	result := m.PreCompact()
	assert.True(t, result.Continue)
	assert.True(t, result.CheckpointCreated)
	assert.True(t, strings.HasPrefix(result.CheckpointID, "emergency_"))

	checkpoint, err := m.LoadCheckpoint(result.CheckpointID)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Equal(t, "sess_001", checkpoint.SessionID)
	assert.Equal(t, "1.1", checkpoint.Chunk)
	assert.Equal(t, []string{"internal/a/a.go"}, checkpoint.FilesModified)
	assert.Equal(t, true, checkpoint.Context["emergency"])
	assert.Equal(t, "pre_compact", checkpoint.Context["reason"])
}

func TestManualCheckpoint(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.SaveManifest(&Manifest{
		Sessions: []Session{{
			SessionID:       "sess_001",
			Status:          SessionActive,
			ChunksCompleted: []string{"1.1"},
			TokensUsed:      2000,
		}},
		CurrentSession: "sess_001",
	}))

	checkpoint, err := m.ManualCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, "1.1", checkpoint.Chunk)
	assert.Equal(t, "manual", checkpoint.TestStatus)
	assert.Contains(t, checkpoint.CheckpointID, "sess_001_manual_")
}

func TestManualCheckpointNoSession(t *testing.T) {
	m := newTestManager(t)
	_, err := m.ManualCheckpoint()
	assert.Error(t, err)
}
