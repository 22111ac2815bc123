package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestLoadJSONMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	var d doc
	found, err := LoadJSON(path, &d)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	require.NoError(t, SaveJSON(path, doc{Name: "a", Count: 3}))

	var d doc
	found, err := LoadJSON(path, &d)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", d.Name)
	assert.Equal(t, 3, d.Count)

	// File must end with a trailing newline.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestSaveCreatesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	require.NoError(t, SaveJSON(path, doc{Name: "first"}))
	require.NoError(t, SaveJSON(path, doc{Name: "second"}))

	var prev doc
	found, err := LoadJSON(BackupPath(path), &prev)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "first", prev.Name)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{ not json"), 0o644))

	var d doc
	_, err := LoadJSON(path, &d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))

	var corrupt *CorruptError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, path, corrupt.Path)
}

func TestAppendAndReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")

	require.NoError(t, AppendLine(path, []byte(`{"id":1}`)))
	require.NoError(t, AppendLine(path, []byte(`{"id":2}`)))

	lines, err := ReadLines(path)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, `{"id":1}`, string(lines[0]))
}

func TestRewriteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")

	require.NoError(t, AppendLine(path, []byte("a")))
	require.NoError(t, AppendLine(path, []byte("b")))
	require.NoError(t, RewriteLines(path, [][]byte{[]byte("b")}))

	lines, err := ReadLines(path)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "b", string(lines[0]))
}

func TestReadLinesMissingFile(t *testing.T) {
	lines, err := ReadLines(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, SaveJSON(path, doc{Name: "a"}))
	require.NoError(t, SaveJSON(path, doc{Name: "b"}))

	require.NoError(t, Remove(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(BackupPath(path))
	assert.True(t, os.IsNotExist(err))

	// Removing again is not an error.
	require.NoError(t, Remove(path))
}
