// Package agents discovers worker-role descriptors and selects the role
// best suited to an implementation chunk. Selection is pure: it returns a
// name string and the host performs the actual delegation.
package agents

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/recall/internal/plan"
)

// DefaultAgent is the fallback role when no better match exists, resolved
// by the host even when undiscovered.
const DefaultAgent = "modular-builder"

// ArchitectAgent is preferred for complex chunks.
const ArchitectAgent = "zen-architect"

// TokenWarningThreshold triggers a warning for oversized chunk estimates.
const TokenWarningThreshold = 10_000

// Metadata describes one discovered agent.
type Metadata struct {
	Name            string
	Description     string
	Location        string
	Specializations []string
}

// specializationKeywords maps specialization tags to the description
// keywords that imply them.
var specializationKeywords = map[string][]string{
	"testing":        {"test", "testing", "coverage"},
	"architecture":   {"architecture", "design", "architect", "planning"},
	"implementation": {"implement", "build", "code", "builder", "implementation"},
	"debugging":      {"debug", "bug", "fix", "hunter"},
	"integration":    {"integrate", "integration", "specialist"},
	"review":         {"review", "quality", "assessment"},
	"analysis":       {"analyze", "analysis", "expert"},
}

var frontmatterPattern = regexp.MustCompile(`(?s)\A---\s*\n(.*?)\n---`)

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Discover scans a directory of Markdown descriptors. Missing or malformed
// descriptors are skipped silently; a missing directory yields no agents.
func Discover(dir string) []Metadata {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var agents []Metadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		meta, ok := parseDescriptor(path)
		if !ok {
			continue
		}
		agents = append(agents, meta)
	}
	return agents
}

// parseDescriptor reads a descriptor's leading metadata block. Both name
// and description are required.
func parseDescriptor(path string) (Metadata, bool) {
	content, err := os.ReadFile(path) // #nosec G304 -- descriptor paths come from directory scan
	if err != nil {
		return Metadata{}, false
	}

	m := frontmatterPattern.FindSubmatch(content)
	if m == nil {
		return Metadata{}, false
	}

	var fm frontmatter
	if err := yaml.Unmarshal(m[1], &fm); err != nil {
		return Metadata{}, false
	}
	if fm.Name == "" || fm.Description == "" {
		return Metadata{}, false
	}

	return Metadata{
		Name:            fm.Name,
		Description:     fm.Description,
		Specializations: extractSpecializations(fm.Description),
		Location:        path,
	}, true
}

// extractSpecializations derives tags from keyword matches against the
// fixed vocabulary. Tags are sorted for stable output.
func extractSpecializations(description string) []string {
	lower := strings.ToLower(description)

	var tags []string
	for tag, keywords := range specializationKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				tags = append(tags, tag)
				break
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// Select picks an agent name for a chunk. Rules, in order:
//  1. No dependencies: prefer modular-builder.
//  2. Chunk id or title mentions test: first agent tagged testing.
//  3. Complex chunks: prefer zen-architect, else first architecture agent.
//  4. Highest keyword-match count between title and specializations.
//  5. modular-builder, else first discovered, else the literal default.
//
// Estimates above TokenWarningThreshold warn but still select.
func Select(chunk plan.ChunkSpec, agents []Metadata) string {
	byName := make(map[string]Metadata, len(agents))
	for _, a := range agents {
		byName[a.Name] = a
	}

	if chunk.EstimatedTokens > TokenWarningThreshold {
		log.Warn().
			Str("chunk", chunk.ID).
			Int("estimatedTokens", chunk.EstimatedTokens).
			Msg("High token estimate, may exceed context limits")
	}

	if len(chunk.Dependencies) == 0 {
		if _, ok := byName[DefaultAgent]; ok {
			return DefaultAgent
		}
	}

	if strings.Contains(strings.ToLower(chunk.ID), "test") || strings.Contains(strings.ToLower(chunk.Title), "test") {
		for _, a := range agents {
			if hasTag(a, "testing") {
				return a.Name
			}
		}
	}

	if chunk.Complexity == plan.Complex {
		if _, ok := byName[ArchitectAgent]; ok {
			return ArchitectAgent
		}
		for _, a := range agents {
			if hasTag(a, "architecture") {
				return a.Name
			}
		}
	}

	titleLower := strings.ToLower(chunk.Title)
	var best *Metadata
	maxMatches := 0
	for i := range agents {
		matches := 0
		for _, spec := range agents[i].Specializations {
			for _, kw := range specializationKeywords[spec] {
				if strings.Contains(titleLower, kw) {
					matches++
					break
				}
			}
		}
		if matches > maxMatches {
			maxMatches = matches
			best = &agents[i]
		}
	}
	if best != nil {
		return best.Name
	}

	if _, ok := byName[DefaultAgent]; ok {
		return DefaultAgent
	}
	if len(agents) > 0 {
		return agents[0].Name
	}
	return DefaultAgent
}

func hasTag(a Metadata, tag string) bool {
	for _, t := range a.Specializations {
		if t == tag {
			return true
		}
	}
	return false
}
