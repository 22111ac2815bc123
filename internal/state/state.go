// Package state tracks extraction progress for crash recovery. The worker
// and the watchdog both mutate the state document; the update methods
// (UpdateTranscript, SetPid, Finish) re-read the backing file before saving
// so cross-process updates are not lost, while Save writes the state as given.
//
// Storage: .data/memories/.extraction_state.json
package state

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/storage"
)

// Overall extraction statuses.
const (
	StatusRunning             = "running"
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusCancelled           = "cancelled"
)

// Per-transcript statuses.
const (
	TranscriptPending    = "pending"
	TranscriptInProgress = "in_progress"
	TranscriptCompleted  = "completed"
	TranscriptFailed     = "failed"
)

// TranscriptState is the progress of one transcript within a run.
type TranscriptState struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CompletedAt string `json:"completed_at,omitempty"`
	Memories    int    `json:"memories"`
}

// ExtractionState is the overall run state. Invariant: a non-zero Pid
// implies Status == running; terminal statuses carry Pid == 0.
type ExtractionState struct {
	Status      string            `json:"status"`
	StartedAt   string            `json:"started_at"`
	LastUpdate  string            `json:"last_update"`
	Transcripts []TranscriptState `json:"transcripts"`
	Pid         int               `json:"pid,omitempty"`
}

// CompletedCount returns how many transcripts finished successfully.
func (s *ExtractionState) CompletedCount() int {
	n := 0
	for _, t := range s.Transcripts {
		if t.Status == TranscriptCompleted {
			n++
		}
	}
	return n
}

// MemoriesTotal sums extracted memories across transcripts.
func (s *ExtractionState) MemoriesTotal() int {
	n := 0
	for _, t := range s.Transcripts {
		n += t.Memories
	}
	return n
}

// Tracker persists extraction state.
type Tracker struct {
	now  func() time.Time
	Path string
}

// New returns a tracker backed by the given file.
func New(path string) *Tracker {
	return &Tracker{Path: path, now: time.Now}
}

// Save writes the state, stamping LastUpdate.
func (t *Tracker) Save(s *ExtractionState) error {
	s.LastUpdate = t.now().Format(time.RFC3339)
	if err := storage.SaveJSON(t.Path, s); err != nil {
		return fmt.Errorf("save extraction state: %w", err)
	}
	log.Info().Str("status", s.Status).Msg("Saved extraction state")
	return nil
}

// Load returns the current state, or nil when none exists. A corrupt state
// file surfaces as an error; it is never silently discarded.
func (t *Tracker) Load() (*ExtractionState, error) {
	var s ExtractionState
	found, err := storage.LoadJSON(t.Path, &s)
	if err != nil {
		return nil, fmt.Errorf("load extraction state: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &s, nil
}

// Clear deletes the state document and its backup. Safe when absent.
func (t *Tracker) Clear() error {
	if err := storage.Remove(t.Path); err != nil {
		return fmt.Errorf("clear extraction state: %w", err)
	}
	log.Info().Msg("Cleared extraction state")
	return nil
}

// UpdateTranscript advances one transcript's status in the persisted state.
// The state is re-read first so concurrent watchdog writes are preserved.
// Progression is pending -> in_progress -> (completed | failed).
func (t *Tracker) UpdateTranscript(sessionID, status string, memories int) error {
	s, err := t.Load()
	if err != nil {
		return err
	}
	if s == nil {
		log.Warn().Str("sessionId", sessionID).Msg("No extraction state to update")
		return nil
	}

	found := false
	for i := range s.Transcripts {
		if s.Transcripts[i].ID == sessionID {
			s.Transcripts[i].Status = status
			s.Transcripts[i].Memories = memories
			if status == TranscriptCompleted {
				s.Transcripts[i].CompletedAt = t.now().Format(time.RFC3339)
			}
			found = true
			break
		}
	}

	if !found {
		log.Warn().Str("sessionId", sessionID).Msg("Transcript not found in extraction state")
		return nil
	}

	return t.Save(s)
}

// SetPid records the worker pid on the persisted state.
func (t *Tracker) SetPid(pid int) error {
	s, err := t.Load()
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("set pid: no extraction state")
	}
	s.Pid = pid
	return t.Save(s)
}

// Finish marks the run terminal and drops the pid.
func (t *Tracker) Finish(status string) error {
	s, err := t.Load()
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	s.Status = status
	s.Pid = 0
	return t.Save(s)
}
