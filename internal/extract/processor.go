package extract

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const maxTranscriptLineSize = 1024 * 1024

// ExtractionResult reports the outcome of processing one transcript.
type ExtractionResult struct {
	SessionID         string `json:"session_id"`
	Error             string `json:"error,omitempty"`
	MemoriesExtracted int    `json:"memories_extracted"`
	Success           bool   `json:"success"`
}

// QueueRemover is the slice of the extraction queue the processor needs:
// successful sessions leave the queue, failed ones stay with the error
// recorded.
type QueueRemover interface {
	Remove(sessionID string) error
	RecordFailure(sessionID, message string) error
}

// Processor loads a transcript, runs two-pass extraction and persists the
// resulting memories.
type Processor struct {
	Client Client
	Sink   Sink
	Queue  QueueRemover // optional
}

// NewProcessor returns a transcript processor.
func NewProcessor(client Client, sink Sink) *Processor {
	return &Processor{Client: client, Sink: sink}
}

// Process extracts memories from one transcript file. Failures are reported
// in the result rather than returned; a single bad transcript must never
// abort a worker run.
func (p *Processor) Process(ctx context.Context, transcriptPath string) ExtractionResult {
	sessionID := SessionIDFromPath(transcriptPath)

	result := p.process(ctx, sessionID, transcriptPath)

	if p.Queue != nil {
		if result.Success {
			if err := p.Queue.Remove(sessionID); err != nil {
				log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to dequeue session")
			}
		} else {
			if err := p.Queue.RecordFailure(sessionID, result.Error); err != nil {
				log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to record queue failure")
			}
		}
	}

	return result
}

func (p *Processor) process(ctx context.Context, sessionID, transcriptPath string) ExtractionResult {
	fail := func(err error) ExtractionResult {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Transcript processing failed")
		return ExtractionResult{SessionID: sessionID, Success: false, Error: err.Error()}
	}

	messages, err := loadMessages(transcriptPath)
	if err != nil {
		return fail(err)
	}

	messages = FilterSidechain(messages)

	extracted, err := TwoPass(ctx, messages, p.Client)
	if err != nil {
		return fail(err)
	}

	for _, mem := range extracted.Memories {
		stored := StoredMemory{
			Content:  mem.Content,
			Category: mem.Type,
			Metadata: map[string]any{
				"session_id": sessionID,
				"importance": mem.Importance,
				"tags":       mem.Tags,
			},
		}
		if err := p.Sink.Store(ctx, stored); err != nil {
			return fail(fmt.Errorf("store memory: %w", err))
		}
	}

	log.Info().
		Str("sessionId", sessionID).
		Int("memories", len(extracted.Memories)).
		Msg("Transcript processed")

	return ExtractionResult{
		SessionID:         sessionID,
		MemoriesExtracted: len(extracted.Memories),
		Success:           true,
	}
}

// SessionIDFromPath derives the session id from a transcript filename by
// stripping the session_ prefix: session_abc123.jsonl -> abc123.
func SessionIDFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimPrefix(stem, "session_")
}

// loadMessages reads one JSON object per line. Empty lines are skipped; a
// malformed line fails the whole transcript.
func loadMessages(path string) ([]Message, error) {
	f, err := os.Open(path) // #nosec G304 -- transcript paths come from the registry
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer func() { _ = f.Close() }()

	var messages []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTranscriptLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("malformed transcript line %d in %s: %w", lineNo, path, err)
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}

	return messages, nil
}
