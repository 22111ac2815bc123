// Package extract implements the memory extraction pipeline: sidechain
// filtering, the two-pass triage/extraction flow, and the transcript
// processor that persists extracted memories.
//
// The LLM doing the actual extraction and the memory store receiving the
// results are external collaborators, reached through the Client and Sink
// interfaces.
package extract

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned when extraction is attempted with no messages.
var ErrEmptyInput = errors.New("no messages provided for extraction")

// Message is one decoded transcript line. Transcript formats vary across
// host versions, so lines stay generic and field access is defensive.
type Message map[string]any

// Client is the LLM connection used for triage and extraction prompts.
// Implementations must honor context cancellation; the triage pass runs
// under a hard deadline.
type Client interface {
	// Complete sends a prompt and returns the model's raw response text,
	// expected to contain JSON.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Memory is a single extracted memory as returned by the extraction pass.
type Memory struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	Importance float64  `json:"importance"`
}

// Metadata describes how an extraction run covered the session.
type Metadata struct {
	ExtractionMethod  string  `json:"extraction_method"`
	TotalMessages     int     `json:"total_messages"`
	ProcessedMessages int     `json:"processed_messages"`
	RangesIdentified  int     `json:"ranges_identified"`
	Coverage          float64 `json:"coverage"`
}

// Result is the outcome of a two-pass extraction.
type Result struct {
	Memories      []Memory `json:"memories"`
	KeyLearnings  []string `json:"key_learnings"`
	DecisionsMade []string `json:"decisions_made"`
	IssuesSolved  []string `json:"issues_solved"`
	Metadata      Metadata `json:"metadata"`
}

// StoredMemory is a memory enriched for persistence: category plus a
// metadata map carrying at least session_id, importance and tags.
type StoredMemory struct {
	Metadata map[string]any `json:"metadata"`
	Content  string         `json:"content"`
	Category string         `json:"category"`
}

// Sink receives extracted memories. The concrete store lives outside this
// system; internal/memstore provides the default file-backed one.
type Sink interface {
	Store(ctx context.Context, mem StoredMemory) error
}
