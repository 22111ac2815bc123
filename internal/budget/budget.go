// Package budget tracks the session token budget: per-chunk cost estimates,
// the handoff decision, and the remaining-budget status band.
package budget

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/thebtf/recall/internal/plan"
)

const (
	// BaseTokensPerFile is the estimated cost per file a chunk creates.
	BaseTokensPerFile = 1000

	// DependencyTokens is the estimated context cost per dependency.
	DependencyTokens = 500

	// HandoffThreshold is the safety margin kept free before a handoff.
	HandoffThreshold = 30_000

	// DefaultMaxTokens is the assumed session context budget.
	DefaultMaxTokens = 200_000
)

// Budget status bands.
const (
	StatusOK       = "ok"
	StatusLow      = "low"
	StatusCritical = "critical"
)

var complexityMultipliers = map[string]float64{
	plan.Simple:  1.0,
	plan.Medium:  1.5,
	plan.Complex: 3.0,
}

// EstimateChunk estimates the token cost of implementing a chunk:
// (files*BASE + deps*DEP) * complexity multiplier, floored. Unknown
// complexity multiplies by 1.0.
func EstimateChunk(chunk plan.ChunkSpec) int {
	base := len(chunk.FilesToCreate) * BaseTokensPerFile
	deps := len(chunk.Dependencies) * DependencyTokens

	mult, ok := complexityMultipliers[chunk.Complexity]
	if !ok {
		mult = 1.0
	}

	return int(float64(base+deps) * mult)
}

// ShouldHandoff reports whether the remaining budget cannot safely fit the
// next chunk plus the handoff safety margin.
func ShouldHandoff(usedTokens, estimatedNext, maxTokens int) bool {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	remaining := maxTokens - usedTokens
	return remaining < estimatedNext+HandoffThreshold
}

// Status returns the budget band for the tokens used so far:
// remaining > 30k is ok, 10k..30k is low, under 10k is critical.
func Status(usedTokens, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	remaining := maxTokens - usedTokens

	switch {
	case remaining > 30_000:
		return StatusOK
	case remaining >= 10_000:
		return StatusLow
	default:
		return StatusCritical
	}
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// CountTokens returns the exact token count of text under the cl100k
// vocabulary; falls back to a bytes/4 approximation if the vocabulary
// cannot be loaded. The extraction pipeline does not call it.
func CountTokens(text string) int {
	codecOnce.Do(func() {
		var err error
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("Tokenizer unavailable, using byte approximation")
		}
	})

	if codec == nil {
		return len(text) / 4
	}

	count, err := codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}
