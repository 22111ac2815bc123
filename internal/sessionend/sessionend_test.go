package sessionend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/recall/internal/registry"
	"github.com/thebtf/recall/internal/state"
	"github.com/thebtf/recall/internal/watchdog"
)

func TestHandleMissingTranscript(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(filepath.Join(dir, "transcripts.json"))
	wd := watchdog.New(reg, state.New(filepath.Join(dir, ".extraction_state.json")))

	result := Handle(reg, wd, "s1", filepath.Join(dir, "missing.jsonl"))
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not found")

	rec, err := reg.BySession("s1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestHandleRegistersTranscript(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(filepath.Join(dir, "transcripts.json"))
	wd := watchdog.New(reg, state.New(filepath.Join(dir, ".extraction_state.json")))

	transcript := filepath.Join(dir, "session_s1.jsonl")
	require.NoError(t, os.WriteFile(transcript, []byte(`{"role":"user","content":"hi"}`+"\n"), 0o644))

	// The worker binary is absent in tests; registration must still land
	// and the failure to start must be reported, not raised.
	result := Handle(reg, wd, "s1", transcript)
	assert.NotEmpty(t, result.Message)

	rec, err := reg.BySession("s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, transcript, rec.TranscriptPath)
}
