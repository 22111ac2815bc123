package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// MaxRanges is the maximum ranges the triage pass may identify.
	MaxRanges = 5

	// TriageTimeout is the hard deadline on the triage LLM call.
	TriageTimeout = 30 * time.Second

	// FallbackCount is how many trailing messages to process when triage
	// fails or identifies nothing.
	FallbackCount = 50
)

// MessageRange is a half-open range [Start, End) of important messages
// identified by the triage pass.
type MessageRange struct {
	Reason string `json:"reason"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// TwoPass runs the two-pass intelligent extraction: a bounded triage pass
// to find important message ranges, then a deep extraction pass over those
// ranges only. Triage failure of any kind degrades to the last-N fallback;
// only an empty input or a failed extraction pass is fatal.
func TwoPass(ctx context.Context, messages []Message, client Client) (*Result, error) {
	total := len(messages)
	log.Info().Int("messages", total).Msg("Two-pass extraction starting")

	if total == 0 {
		return nil, ErrEmptyInput
	}

	ranges, err := triagePass(ctx, messages, client)
	if err != nil {
		log.Warn().Err(err).Msg("Triage failed, using fallback")
		ranges = nil
	}

	if len(ranges) == 0 {
		start := total - FallbackCount
		if start < 0 {
			start = 0
		}
		log.Warn().Int("fallbackCount", FallbackCount).Msg("No triage ranges, using trailing messages")
		ranges = []MessageRange{{Start: start, End: total, Reason: "fallback"}}
	}

	log.Info().Int("ranges", len(ranges)).Msg("Triage complete")

	result, err := extractionPass(ctx, messages, ranges, client)
	if err != nil {
		return nil, err
	}

	processed := 0
	for _, r := range ranges {
		processed += r.End - r.Start
	}
	coverage := 0.0
	if total > 0 {
		coverage = float64(processed) / float64(total)
	}

	result.Metadata = Metadata{
		ExtractionMethod:  "two_pass_intelligent",
		TotalMessages:     total,
		ProcessedMessages: processed,
		Coverage:          coverage,
		RangesIdentified:  len(ranges),
	}

	log.Info().
		Int("memories", len(result.Memories)).
		Float64("coverage", coverage).
		Msg("Two-pass extraction complete")

	return result, nil
}

// triagePass asks the LLM for up to MaxRanges important ranges under the
// triage deadline.
func triagePass(ctx context.Context, messages []Message, client Client) ([]MessageRange, error) {
	ctx, cancel := context.WithTimeout(ctx, TriageTimeout)
	defer cancel()

	prompt := buildTriagePrompt(messages)

	response, err := client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("triage call: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		return nil, fmt.Errorf("triage returned empty response")
	}

	ranges := parseRanges(response, len(messages))
	if len(ranges) == 0 {
		log.Warn().Msg("No valid ranges parsed from triage response")
	}
	return ranges, nil
}

// parseRanges extracts ranges from the triage response. The model may
// return a bare array or wrap it under a ranges key; indices are clamped
// to the message slice and invalid ranges dropped.
func parseRanges(response string, total int) []MessageRange {
	raw := extractJSON(response)

	var parsed []MessageRange
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			return nil
		}
		for _, key := range []string{"ranges", "important_ranges", "message_ranges"} {
			if inner, ok := wrapper[key]; ok {
				if err := json.Unmarshal(inner, &parsed); err == nil {
					break
				}
			}
		}
	}

	ranges := make([]MessageRange, 0, MaxRanges)
	for _, r := range parsed {
		if r.Start < 0 {
			r.Start = 0
		}
		if r.End > total {
			r.End = total
		}
		if r.Start >= r.End {
			continue
		}
		if r.Reason == "" {
			r.Reason = "unknown"
		}
		ranges = append(ranges, r)
		if len(ranges) == MaxRanges {
			break
		}
	}
	return ranges
}

// extractionPass concatenates the selected ranges with full content and
// requests structured memory output.
func extractionPass(ctx context.Context, messages []Message, ranges []MessageRange, client Client) (*Result, error) {
	var sections []string
	for _, r := range ranges {
		sections = append(sections, fmt.Sprintf("## Range %d-%d: %s\n\n%s", r.Start, r.End, r.Reason, formatRange(messages, r.Start, r.End)))
	}

	prompt := buildExtractionPrompt(strings.Join(sections, "\n\n---\n\n"))

	response, err := client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	var result Result
	if err := json.Unmarshal([]byte(extractJSON(response)), &result); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	log.Info().Int("memories", len(result.Memories)).Msg("Extraction pass complete")
	return &result, nil
}

func buildTriagePrompt(messages []Message) string {
	return fmt.Sprintf(`Analyze this conversation and identify the 3-5 most important message ranges.

Focus on:
- Important decisions made
- Problems solved
- Critical discussions
- Technical breakthroughs
- Key learnings

Return ONLY a JSON array of ranges (no explanations, no markdown):
[
  {"start": 10, "end": 25, "reason": "Initial architecture decision"},
  {"start": 150, "end": 180, "reason": "Bug fix and solution discussion"}
]

Rules:
- Start and end are 0-based message indices; end is exclusive
- Each range should be 10-50 messages
- Maximum %d ranges
- Focus on quality over quantity
- Reason should be brief (5-10 words)

Conversation has %d messages.

Messages (condensed format - role and brief content):
%s
`, MaxRanges, len(messages), formatForTriage(messages))
}

func buildExtractionPrompt(sections string) string {
	return fmt.Sprintf(`Extract detailed memories from these important conversation sections.

Focus on:
- Technical decisions and rationale
- Problems solved and solutions
- Key learnings and insights
- Patterns identified
- User preferences

Return as JSON:
{
  "memories": [
    {
      "type": "learning|decision|issue_solved|pattern|preference",
      "content": "Concise memory content (1-2 sentences)",
      "importance": 0.0-1.0,
      "tags": ["tag1", "tag2"]
    }
  ],
  "key_learnings": ["What was learned"],
  "decisions_made": ["Decisions made"],
  "issues_solved": ["Problems resolved"]
}

Sections to extract from (with full context):

%s

Remember:
- Be specific and actionable
- Include technical details
- Capture "why" not just "what"
- Each memory should be useful in future conversations
`, sections)
}

// extractJSON trims markdown fences and any prose before the first '[' or
// '{'; text after the JSON value is kept.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.IndexAny(s, "[{"); start > 0 {
		s = s[start:]
	}
	return s
}
