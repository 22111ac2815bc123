package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `# Code Plan

## Phase 1

### Chunk 1.1: State Manager (~150 lines)

**Purpose**: Persist session state
**Files**: internal/statemgr/state.go
Complexity: simple

### Chunk 1.2: Chunk Analyzer (~300 lines)

**Files**: internal/plan/plan.go, internal/plan/validate.go
Depends on Chunk 1.1

### Chunk 2.1: Orchestrator Core (~450 lines)

**Files**: cmd/ddd/main.go
Depends on Chunk 1.1 and Chunk 1.2
`

func parseSample(t *testing.T) []ChunkSpec {
	t.Helper()
	chunks, err := NewParser().ParseContent(samplePlan)
	require.NoError(t, err)
	return chunks
}

func TestParseChunks(t *testing.T) {
	chunks := parseSample(t)
	require.Len(t, chunks, 3)

	first := chunks[0]
	assert.Equal(t, "1.1", first.ID)
	assert.Equal(t, "State Manager", first.Title)
	assert.Equal(t, Simple, first.Complexity)
	assert.Equal(t, 150*8, first.EstimatedTokens)
	assert.Equal(t, []string{"internal/statemgr/state.go"}, first.FilesToCreate)
	assert.Empty(t, first.Dependencies)

	second := chunks[1]
	assert.Equal(t, []string{"internal/plan/plan.go", "internal/plan/validate.go"}, second.FilesToCreate)
	assert.Equal(t, []string{"1.1"}, second.Dependencies)
	assert.Equal(t, Medium, second.Complexity)

	third := chunks[2]
	assert.Equal(t, Complex, third.Complexity)
	assert.ElementsMatch(t, []string{"1.1", "1.2"}, third.Dependencies)
}

func TestParseFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code_plan.md")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o644))

	chunks, err := NewParser().Parse(path)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestParseNoChunks(t *testing.T) {
	_, err := NewParser().ParseContent("# Just prose\n\nNothing here.\n")
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestParseMissingFile(t *testing.T) {
	_, err := NewParser().Parse(filepath.Join(t.TempDir(), "nope.md"))
	assert.Error(t, err)
}

func TestExplicitComplexityOverridesInference(t *testing.T) {
	content := "### Chunk 1.1: Small But Hard (~100 lines)\n\n**Files**: internal/x/x.go\nComplexity: complex\n"
	chunks, err := NewParser().ParseContent(content)
	require.NoError(t, err)
	assert.Equal(t, Complex, chunks[0].Complexity)
}

func TestZeroLinesDefaults(t *testing.T) {
	content := "### Chunk 1.1: No Estimate\n\n**Files**: internal/x/x.go\n"
	chunks, err := NewParser().ParseContent(content)
	require.NoError(t, err)
	assert.Equal(t, Medium, chunks[0].Complexity)
	assert.Equal(t, 1000, chunks[0].EstimatedTokens)
}

func TestTitleFallbackFromPurpose(t *testing.T) {
	content := "### Chunk 1.1: (~100 lines)\n\n**Purpose**: Track modified files\n**Files**: internal/x/x.go\n"
	chunks, err := NewParser().ParseContent(content)
	require.NoError(t, err)
	assert.Equal(t, "Track modified files", chunks[0].Title)
}

func TestCustomExtensions(t *testing.T) {
	content := "### Chunk 1.1: Python Plan (~100 lines)\n\n**Files**: tools/state.py, tools/notes.txt\n"
	chunks, err := NewParser(".py").ParseContent(content)
	require.NoError(t, err)
	assert.Equal(t, []string{"tools/state.py"}, chunks[0].FilesToCreate)
}

func TestNextChunkRespectsOrderAndDeps(t *testing.T) {
	chunks := parseSample(t)

	next := NextChunk(chunks, nil)
	require.NotNil(t, next)
	assert.Equal(t, "1.1", next.ID)

	next = NextChunk(chunks, []string{"1.1"})
	require.NotNil(t, next)
	assert.Equal(t, "1.2", next.ID)

	next = NextChunk(chunks, []string{"1.1", "1.2"})
	require.NotNil(t, next)
	assert.Equal(t, "2.1", next.ID)

	assert.Nil(t, NextChunk(chunks, []string{"1.1", "1.2", "2.1"}))
}

func TestNextChunkNeverReturnsBlocked(t *testing.T) {
	chunks := []ChunkSpec{
		{ID: "1.1", Dependencies: []string{"9.9"}},
		{ID: "1.2"},
	}

	next := NextChunk(chunks, nil)
	require.NotNil(t, next)
	assert.Equal(t, "1.2", next.ID)
}

func TestValidateMissingDependency(t *testing.T) {
	chunks := []ChunkSpec{{ID: "1.1", Dependencies: []string{"7.7"}}}

	errs := Validate(chunks)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "non-existent chunk 7.7")
}

func TestValidateCycle(t *testing.T) {
	chunks := []ChunkSpec{
		{ID: "1.1", Dependencies: []string{"1.2"}},
		{ID: "1.2", Dependencies: []string{"1.1"}},
	}

	errs := Validate(chunks)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "Circular dependency detected")
	assert.Contains(t, errs[0], "1.1")
	assert.Contains(t, errs[0], "1.2")
}

func TestValidateSelfLoop(t *testing.T) {
	chunks := []ChunkSpec{{ID: "1.1", Dependencies: []string{"1.1"}}}

	errs := Validate(chunks)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "Circular dependency detected")
}

func TestValidateCleanGraph(t *testing.T) {
	assert.Empty(t, Validate(parseSample(t)))
}
