// Package queue is the append-only JSONL extraction queue. Each line is one
// deferred extraction task written by the event router and removed by the
// transcript processor after a successful run.
//
// Storage: .data/extraction_queue.jsonl
package queue

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/storage"
)

// Item is one queued extraction task.
type Item struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Timestamp      string `json:"timestamp"`
	HookEvent      string `json:"hook_event"`
	LastError      string `json:"last_error,omitempty"`
	Retries        int    `json:"retries"`
}

// Queue persists extraction tasks one per line.
type Queue struct {
	Path string
}

// New returns a queue backed by the given JSONL file.
func New(path string) *Queue {
	return &Queue{Path: path}
}

// Push appends an item to the queue.
func (q *Queue) Push(item Item) error {
	line, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode queue item: %w", err)
	}
	if err := storage.AppendLine(q.Path, line); err != nil {
		return fmt.Errorf("queue extraction: %w", err)
	}
	log.Info().Str("sessionId", item.SessionID).Msg("Queued extraction")
	return nil
}

// Items returns all queued tasks in append order. Malformed lines fail the
// read; the queue is singly owned and a bad line means external damage.
func (q *Queue) Items() ([]Item, error) {
	lines, err := storage.ReadLines(q.Path)
	if err != nil {
		return nil, fmt.Errorf("read extraction queue: %w", err)
	}

	items := make([]Item, 0, len(lines))
	for _, line := range lines {
		var item Item
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, &storage.CorruptError{Path: q.Path, Err: err}
		}
		items = append(items, item)
	}
	return items, nil
}

// Remove drops every item for a session id, rewriting the file without the
// matching lines. Removing an absent session id is a no-op.
func (q *Queue) Remove(sessionID string) error {
	items, err := q.Items()
	if err != nil {
		return err
	}

	remaining := make([][]byte, 0, len(items))
	for _, item := range items {
		if item.SessionID == sessionID {
			continue
		}
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode queue item: %w", err)
		}
		remaining = append(remaining, line)
	}

	if err := storage.RewriteLines(q.Path, remaining); err != nil {
		return fmt.Errorf("rewrite extraction queue: %w", err)
	}
	log.Info().Str("sessionId", sessionID).Msg("Removed session from queue")
	return nil
}

// RecordFailure increments the retry counter and records the error for a
// session's queued item, leaving it in place for a later attempt.
func (q *Queue) RecordFailure(sessionID, message string) error {
	items, err := q.Items()
	if err != nil {
		return err
	}

	lines := make([][]byte, 0, len(items))
	for _, item := range items {
		if item.SessionID == sessionID {
			item.Retries++
			item.LastError = message
		}
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode queue item: %w", err)
		}
		lines = append(lines, line)
	}

	if err := storage.RewriteLines(q.Path, lines); err != nil {
		return fmt.Errorf("rewrite extraction queue: %w", err)
	}
	return nil
}

// Clear deletes the queue file. For testing and maintenance.
func (q *Queue) Clear() error {
	if err := storage.Remove(q.Path); err != nil {
		return fmt.Errorf("clear extraction queue: %w", err)
	}
	return nil
}
