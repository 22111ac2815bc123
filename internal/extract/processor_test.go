package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/recall/internal/queue"
)

type memorySink struct {
	stored []StoredMemory
	err    error
}

func (s *memorySink) Store(_ context.Context, mem StoredMemory) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, mem)
	return nil
}

func writeTranscript(t *testing.T, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSessionIDFromPath(t *testing.T) {
	assert.Equal(t, "abc123", SessionIDFromPath("/tmp/session_abc123.jsonl"))
	assert.Equal(t, "plain", SessionIDFromPath("plain.jsonl"))
}

func TestProcessSuccess(t *testing.T) {
	path := writeTranscript(t, "session_abc.jsonl", []string{
		`{"role": "user", "content": "how do locks work"}`,
		``,
		`{"role": "assistant", "content": "advisory locks serialize writers"}`,
	})

	sink := &memorySink{}
	client := &fakeClient{
		triage:     `[{"start": 0, "end": 2, "reason": "locks"}]`,
		extraction: extractionResponse,
	}

	result := NewProcessor(client, sink).Process(context.Background(), path)

	assert.True(t, result.Success)
	assert.Equal(t, "abc", result.SessionID)
	assert.Equal(t, 1, result.MemoriesExtracted)

	require.Len(t, sink.stored, 1)
	stored := sink.stored[0]
	assert.Equal(t, "decision", stored.Category)
	assert.Equal(t, "Chose file-backed state", stored.Content)
	assert.Equal(t, "abc", stored.Metadata["session_id"])
	assert.Equal(t, 0.8, stored.Metadata["importance"])
	assert.Equal(t, []string{"architecture"}, stored.Metadata["tags"])
}

func TestProcessMalformedLineFailsTranscript(t *testing.T) {
	path := writeTranscript(t, "session_bad.jsonl", []string{
		`{"role": "user", "content": "fine"}`,
		`{ this is not json`,
	})

	result := NewProcessor(&fakeClient{}, &memorySink{}).Process(context.Background(), path)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "malformed transcript line 2")
}

func TestProcessMissingFile(t *testing.T) {
	result := NewProcessor(&fakeClient{}, &memorySink{}).Process(context.Background(), "/nowhere/session_x.jsonl")
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestProcessEmptyTranscript(t *testing.T) {
	path := writeTranscript(t, "session_empty.jsonl", nil)

	result := NewProcessor(&fakeClient{}, &memorySink{}).Process(context.Background(), path)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no messages")
}

func TestProcessDequeuesOnSuccess(t *testing.T) {
	path := writeTranscript(t, "session_ok.jsonl", []string{
		`{"role": "user", "content": "hello"}`,
	})

	q := queue.New(filepath.Join(t.TempDir(), "queue.jsonl"))
	require.NoError(t, q.Push(queue.Item{SessionID: "ok", TranscriptPath: path, HookEvent: "Stop"}))

	p := NewProcessor(&fakeClient{triage: "[]", extraction: extractionResponse}, &memorySink{})
	p.Queue = q

	result := p.Process(context.Background(), path)
	require.True(t, result.Success)

	items, err := q.Items()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestProcessRecordsQueueFailure(t *testing.T) {
	q := queue.New(filepath.Join(t.TempDir(), "queue.jsonl"))
	require.NoError(t, q.Push(queue.Item{SessionID: "x", HookEvent: "Stop"}))

	p := NewProcessor(&fakeClient{}, &memorySink{})
	p.Queue = q

	result := p.Process(context.Background(), "/nowhere/session_x.jsonl")
	require.False(t, result.Success)

	items, err := q.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Retries)
	assert.NotEmpty(t, items[0].LastError)
}
