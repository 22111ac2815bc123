// Package memstore is the default file-backed memory sink. The extraction
// pipeline only depends on the extract.Sink interface; this implementation
// keeps memories in a single JSON document under the data directory so the
// system works without an external store.
//
// Storage: .data/memories/memories.json
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/extract"
	"github.com/thebtf/recall/internal/storage"
)

// StoredMemory is one persisted memory record.
type StoredMemory struct {
	Metadata  map[string]any `json:"metadata"`
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Category  string         `json:"category"`
	CreatedAt string         `json:"created_at"`
}

type document struct {
	Version  string         `json:"version"`
	Memories []StoredMemory `json:"memories"`
}

// Store is a JSON-file memory sink.
type Store struct {
	now  func() time.Time
	Path string
	mu   sync.Mutex
}

var _ extract.Sink = (*Store)(nil)

// New returns a store backed by the given file.
func New(path string) *Store {
	return &Store{Path: path, now: time.Now}
}

// Store appends one memory to the document.
func (s *Store) Store(_ context.Context, mem extract.StoredMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := document{Version: "1.0"}
	if _, err := storage.LoadJSON(s.Path, &doc); err != nil {
		return fmt.Errorf("load memory store: %w", err)
	}

	doc.Memories = append(doc.Memories, StoredMemory{
		ID:        uuid.NewString(),
		Content:   mem.Content,
		Category:  mem.Category,
		Metadata:  mem.Metadata,
		CreatedAt: s.now().Format(time.RFC3339),
	})

	if err := storage.SaveJSON(s.Path, &doc); err != nil {
		return fmt.Errorf("save memory store: %w", err)
	}

	log.Debug().Str("category", mem.Category).Msg("Memory stored")
	return nil
}

// All returns every stored memory.
func (s *Store) All() ([]StoredMemory, error) {
	doc := document{}
	if _, err := storage.LoadJSON(s.Path, &doc); err != nil {
		return nil, fmt.Errorf("load memory store: %w", err)
	}
	return doc.Memories, nil
}

// BySession returns memories whose metadata session_id matches.
func (s *Store) BySession(sessionID string) ([]StoredMemory, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	var matched []StoredMemory
	for _, mem := range all {
		if id, ok := mem.Metadata["session_id"].(string); ok && id == sessionID {
			matched = append(matched, mem)
		}
	}
	return matched, nil
}
