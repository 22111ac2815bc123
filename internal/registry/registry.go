// Package registry is the single source of truth for which conversation
// transcripts exist and which have been digested into memories.
//
// Storage: .data/transcripts.json
package registry

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/storage"
)

// Record tracks one transcript file.
type Record struct {
	SessionID         string `json:"session_id"`
	TranscriptPath    string `json:"transcript_path"`
	CreatedAt         string `json:"created_at"`
	ProcessedAt       string `json:"processed_at,omitempty"`
	MemoriesExtracted int    `json:"memories_extracted"`
	Processed         bool   `json:"processed"`
}

type document struct {
	Version     string   `json:"version"`
	Transcripts []Record `json:"transcripts"`
}

// Registry persists transcript records keyed by session id.
type Registry struct {
	now  func() time.Time
	Path string
}

// New returns a registry backed by the given file.
func New(path string) *Registry {
	return &Registry{Path: path, now: time.Now}
}

// Add registers a new transcript with processed=false. Adding an already
// tracked session id is a no-op; registration is idempotent.
func (r *Registry) Add(sessionID, transcriptPath string) error {
	doc, err := r.load()
	if err != nil {
		return err
	}

	for _, t := range doc.Transcripts {
		if t.SessionID == sessionID {
			log.Warn().Str("sessionId", sessionID).Msg("Transcript already tracked")
			return nil
		}
	}

	doc.Transcripts = append(doc.Transcripts, Record{
		SessionID:      sessionID,
		TranscriptPath: transcriptPath,
		CreatedAt:      r.now().Format(time.RFC3339),
	})

	if err := r.save(doc); err != nil {
		return err
	}
	log.Info().Str("sessionId", sessionID).Msg("Transcript registered")
	return nil
}

// MarkProcessed flips a record to processed with the extracted memory count.
// Unknown session ids are logged and ignored.
func (r *Registry) MarkProcessed(sessionID string, memories int) error {
	doc, err := r.load()
	if err != nil {
		return err
	}

	found := false
	for i := range doc.Transcripts {
		if doc.Transcripts[i].SessionID == sessionID {
			doc.Transcripts[i].Processed = true
			doc.Transcripts[i].ProcessedAt = r.now().Format(time.RFC3339)
			doc.Transcripts[i].MemoriesExtracted = memories
			found = true
			break
		}
	}

	if !found {
		log.Warn().Str("sessionId", sessionID).Msg("Transcript not found in registry")
		return nil
	}

	if err := r.save(doc); err != nil {
		return err
	}
	log.Info().Str("sessionId", sessionID).Int("memories", memories).Msg("Transcript marked processed")
	return nil
}

// All returns every tracked record in registration order.
func (r *Registry) All() ([]Record, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	return doc.Transcripts, nil
}

// Unprocessed returns the records still awaiting extraction, in
// registration order.
func (r *Registry) Unprocessed() ([]Record, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	pending := make([]Record, 0, len(doc.Transcripts))
	for _, t := range doc.Transcripts {
		if !t.Processed {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

// BySession returns the record for a session id, or nil if untracked.
func (r *Registry) BySession(sessionID string) (*Record, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Transcripts {
		if doc.Transcripts[i].SessionID == sessionID {
			return &doc.Transcripts[i], nil
		}
	}
	return nil, nil
}

func (r *Registry) load() (*document, error) {
	doc := &document{Version: "1.0"}
	if _, err := storage.LoadJSON(r.Path, doc); err != nil {
		return nil, fmt.Errorf("load transcript registry: %w", err)
	}
	return doc, nil
}

func (r *Registry) save(doc *document) error {
	if err := storage.SaveJSON(r.Path, doc); err != nil {
		return fmt.Errorf("save transcript registry: %w", err)
	}
	return nil
}
