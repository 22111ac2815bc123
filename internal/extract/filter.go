package extract

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// triageTruncateLen bounds per-message content in the triage prompt.
const triageTruncateLen = 100

// FilterSidechain removes sidechain messages (internal host operations such
// as warmup, tool execution and subagent coordination) that are not part of
// the main user-assistant conversation.
func FilterSidechain(messages []Message) []Message {
	filtered := make([]Message, 0, len(messages))

	for _, msg := range messages {
		if isTrue(msg["isSidechain"]) {
			continue
		}
		if inner, ok := msg["message"].(map[string]any); ok && isTrue(inner["isSidechain"]) {
			continue
		}
		filtered = append(filtered, msg)
	}

	log.Info().
		Int("before", len(messages)).
		Int("after", len(filtered)).
		Msg("Filtered sidechain messages")

	return filtered
}

// roleAndContent resolves a message's role and flattened text content.
// Handles both the host transcript format (role nested under "message") and
// plain {role, content} messages.
func roleAndContent(msg Message) (string, string) {
	var role string
	var content any

	if inner, ok := msg["message"].(map[string]any); ok {
		role, _ = inner["role"].(string)
		content = inner["content"]
	} else {
		role, _ = msg["role"].(string)
		content = msg["content"]
	}
	if role == "" {
		role, _ = msg["type"].(string)
	}

	return role, flattenContent(content)
}

// flattenContent reduces message content to plain text: typed block lists
// are joined on their text blocks, strings pass through, anything else is
// stringified.
func flattenContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var texts []string
		for _, item := range v {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if block["type"] == "text" {
				if text, ok := block["text"].(string); ok {
					texts = append(texts, text)
				}
			}
		}
		return strings.Join(texts, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatForTriage renders messages as a numbered, condensed list for the
// triage prompt. Non-conversation roles and empty messages are dropped;
// indices refer to the original message slice.
func formatForTriage(messages []Message) string {
	var b strings.Builder

	for idx, msg := range messages {
		role, content := roleAndContent(msg)
		if role != "user" && role != "assistant" {
			continue
		}
		if content == "" {
			continue
		}

		if len(content) > triageTruncateLen {
			content = content[:triageTruncateLen] + "..."
		}

		fmt.Fprintf(&b, "%d: %s: %s\n", idx, strings.ToUpper(role), content)
	}

	return strings.TrimRight(b.String(), "\n")
}

// formatRange renders messages[start:end) with full content for the
// extraction prompt.
func formatRange(messages []Message, start, end int) string {
	var parts []string

	for _, msg := range messages[start:end] {
		role, content := roleAndContent(msg)
		if role != "user" && role != "assistant" {
			continue
		}
		if content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToUpper(role), content))
	}

	return strings.Join(parts, "\n\n")
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
