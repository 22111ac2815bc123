// Package plan parses implementation plan documents into ordered chunks
// with a dependency graph, selects the next ready chunk, and validates the
// graph for cycles and dangling references.
package plan

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Complexity levels.
const (
	Simple  = "simple"
	Medium  = "medium"
	Complex = "complex"
)

// ErrNoChunks is returned when a plan parses to nothing.
var ErrNoChunks = errors.New("no chunks found in plan")

const (
	tokensPerLine        = 8
	defaultTokenEstimate = 1000
)

// ChunkSpec is one unit of implementation work from the plan.
type ChunkSpec struct {
	ID              string
	Title           string
	Complexity      string
	Dependencies    []string
	FilesToCreate   []string
	EstimatedTokens int
}

var (
	headingPattern  = regexp.MustCompile(`(?i)\*?\*?(?:Layer|Chunk)\s+(\d+\.\d+):\s*([^*(]*)`)
	linesPattern    = regexp.MustCompile(`\(~(\d+)\s+lines`)
	filesPattern    = regexp.MustCompile(`(?i)\*\*Files?\*\*:\s*(.+)`)
	depPattern      = regexp.MustCompile(`(?i)(?:Layer|Chunk)\s+(\d+\.\d+)`)
	explicitPattern = regexp.MustCompile(`(?i)(simple|medium|complex)`)
	purposePattern  = regexp.MustCompile(`\*?\*?Purpose\*?\*?:\s*(.+)`)
)

// Parser parses plan documents. The extensions given to NewParser decide
// which source-file extensions are recognized in file lists.
type Parser struct {
	filePattern *regexp.Regexp
}

// NewParser returns a parser recognizing the given file extensions
// (defaults to .go when none are given).
func NewParser(extensions ...string) *Parser {
	if len(extensions) == 0 {
		extensions = []string{".go"}
	}
	quoted := make([]string, len(extensions))
	for i, ext := range extensions {
		quoted[i] = regexp.QuoteMeta(strings.TrimPrefix(ext, "."))
	}
	pattern := fmt.Sprintf(`(?:tools|tests|cmd|internal|pkg)/[\w/.\-]+\.(?:%s)`, strings.Join(quoted, "|"))
	return &Parser{filePattern: regexp.MustCompile(pattern)}
}

// Parse reads a plan file into chunks in document order.
func (p *Parser) Parse(path string) ([]ChunkSpec, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- plan path is operator input
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return p.ParseContent(string(data))
}

// ParseContent parses plan markdown.
func (p *Parser) ParseContent(content string) ([]ChunkSpec, error) {
	var chunks []ChunkSpec
	var current *ChunkSpec
	var currentLines []string

	flush := func() {
		if current == nil {
			return
		}
		p.finalize(current, currentLines)
		chunks = append(chunks, *current)
	}

	for _, line := range strings.Split(content, "\n") {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()

			estimatedLines := 0
			if lm := linesPattern.FindStringSubmatch(line); lm != nil {
				estimatedLines, _ = strconv.Atoi(lm[1])
			}

			current = &ChunkSpec{
				ID:              m[1],
				Title:           strings.TrimSpace(m[2]),
				EstimatedTokens: estimateTokens(estimatedLines),
				Complexity:      inferComplexity(estimatedLines),
			}
			currentLines = nil
			continue
		}

		if current == nil {
			continue
		}
		currentLines = append(currentLines, line)

		if fm := filesPattern.FindStringSubmatch(line); fm != nil {
			for _, file := range p.filePattern.FindAllString(fm[1], -1) {
				if !contains(current.FilesToCreate, file) {
					current.FilesToCreate = append(current.FilesToCreate, file)
				}
			}
		}

		lower := strings.ToLower(line)
		if strings.Contains(lower, "depends") || strings.Contains(lower, "dependency") || strings.Contains(lower, "layer") {
			for _, dm := range depPattern.FindAllStringSubmatch(line, -1) {
				if dm[1] != current.ID && !contains(current.Dependencies, dm[1]) {
					current.Dependencies = append(current.Dependencies, dm[1])
				}
			}
		}

		if strings.Contains(lower, "complexity") {
			if cm := explicitPattern.FindStringSubmatch(line); cm != nil {
				current.Complexity = strings.ToLower(cm[1])
			}
		}
	}
	flush()

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	return chunks, nil
}

// finalize fills missing title and file list from the chunk body.
func (p *Parser) finalize(chunk *ChunkSpec, body []string) {
	if chunk.Title == "" {
		for _, line := range body {
			if m := purposePattern.FindStringSubmatch(line); m != nil {
				title := strings.TrimSpace(m[1])
				if len(title) > 50 {
					title = title[:50]
				}
				chunk.Title = title
				break
			}
		}
	}
	if chunk.Title == "" {
		chunk.Title = "Chunk " + chunk.ID
	}

	if len(chunk.FilesToCreate) == 0 {
		for _, line := range body {
			if files := p.filePattern.FindAllString(line, -1); len(files) > 0 {
				chunk.FilesToCreate = append(chunk.FilesToCreate, files...)
				break
			}
		}
	}
}

// NextChunk returns the first chunk in plan order not yet completed whose
// dependencies are all completed, or nil when none is ready.
func NextChunk(chunks []ChunkSpec, completed []string) *ChunkSpec {
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}

	for i := range chunks {
		if done[chunks[i].ID] {
			continue
		}
		ready := true
		for _, dep := range chunks[i].Dependencies {
			if !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			return &chunks[i]
		}
	}
	return nil
}

// Validate reports dangling dependency references and cycles. Cycle
// messages name the offending path so the plan can be fixed by hand.
func Validate(chunks []ChunkSpec) []string {
	var errs []string

	byID := make(map[string]*ChunkSpec, len(chunks))
	for i := range chunks {
		byID[chunks[i].ID] = &chunks[i]
	}

	for _, chunk := range chunks {
		for _, dep := range chunk.Dependencies {
			if _, ok := byID[dep]; !ok {
				errs = append(errs, fmt.Sprintf("Chunk %s depends on non-existent chunk %s", chunk.ID, dep))
			}
		}
	}

	// DFS coloring: white (unvisited), gray (on path), black (done).
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(chunks))

	var visit func(id string, path []string) string
	visit = func(id string, path []string) string {
		switch color[id] {
		case gray:
			return fmt.Sprintf("Circular dependency detected: %s -> %s", strings.Join(path, " -> "), id)
		case black:
			return ""
		}

		color[id] = gray
		chunk := byID[id]
		if chunk != nil {
			for _, dep := range chunk.Dependencies {
				if _, ok := byID[dep]; !ok {
					continue
				}
				if cycle := visit(dep, append(path, id)); cycle != "" {
					return cycle
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, chunk := range chunks {
		if color[chunk.ID] != white {
			continue
		}
		if cycle := visit(chunk.ID, nil); cycle != "" && !contains(errs, cycle) {
			errs = append(errs, cycle)
		}
	}

	return errs
}

func estimateTokens(lines int) int {
	if lines == 0 {
		return defaultTokenEstimate
	}
	return lines * tokensPerLine
}

func inferComplexity(lines int) string {
	switch {
	case lines == 0:
		return Medium
	case lines < 200:
		return Simple
	case lines < 400:
		return Medium
	default:
		return Complex
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
