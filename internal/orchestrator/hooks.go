package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PreCompactResult is returned to the host before a context compaction.
// Continue is always true: a checkpoint failure must never block the host.
type PreCompactResult struct {
	CheckpointID      string
	Error             string
	Continue          bool
	SuppressOutput    bool
	CheckpointCreated bool
}

// PreCompact writes an emergency checkpoint before the host compacts its
// context. State is reconstructed from the impl-status log, the only record
// guaranteed to survive whatever the orchestrator was doing.
func (m *Manager) PreCompact() PreCompactResult {
	result := PreCompactResult{Continue: true, SuppressOutput: true}

	if !m.IsSessionActive() {
		return result
	}

	info := m.CurrentSessionInfo()
	if info == nil {
		return result
	}

	checkpoint := &Checkpoint{
		CheckpointID:  fmt.Sprintf("emergency_%s_%s", m.now().UTC().Format("20060102_150405"), uuid.NewString()[:8]),
		Timestamp:     m.now().UTC().Format(time.RFC3339),
		SessionID:     info.SessionID,
		Chunk:         info.LastChunk,
		FilesModified: info.FilesModified,
		TestStatus:    "unknown",
		Context: map[string]any{
			"emergency": true,
			"reason":    "pre_compact",
		},
		NextActions: []string{"Resume from checkpoint after compaction"},
	}

	if err := m.SaveCheckpoint(checkpoint); err != nil {
		result.Error = err.Error()
		return result
	}

	result.CheckpointCreated = true
	result.CheckpointID = checkpoint.CheckpointID
	return result
}

// ManualCheckpoint creates a checkpoint on operator demand for the current
// manifest session.
func (m *Manager) ManualCheckpoint() (*Checkpoint, error) {
	manifest, err := m.LoadManifest()
	if err != nil {
		return nil, err
	}
	if manifest.CurrentSession == "" {
		return nil, fmt.Errorf("no active session in manifest")
	}
	session := manifest.FindSession(manifest.CurrentSession)
	if session == nil {
		return nil, fmt.Errorf("session %s not found", manifest.CurrentSession)
	}

	lastChunk := "manual"
	if len(session.ChunksCompleted) > 0 {
		lastChunk = session.ChunksCompleted[len(session.ChunksCompleted)-1]
	}

	checkpoint := &Checkpoint{
		CheckpointID: fmt.Sprintf("%s_manual_%s", session.SessionID, m.now().UTC().Format("20060102_150405")),
		Timestamp:    m.now().UTC().Format(time.RFC3339),
		SessionID:    session.SessionID,
		Chunk:        lastChunk,
		TestStatus:   "manual",
		Context: map[string]any{
			"tokens_used":      session.TokensUsed,
			"completed_chunks": session.ChunksCompleted,
		},
		NextActions: []string{"Manual checkpoint - continue session normally"},
	}

	if err := m.SaveCheckpoint(checkpoint); err != nil {
		return nil, err
	}
	if err := m.UpdateImplStatus(session.SessionID, "manual_checkpoint", "MANUAL CHECKPOINT"); err != nil {
		return nil, err
	}
	return checkpoint, nil
}
