package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

// charsPerToken is the approximate number of characters per token for
// English text. Used for threshold estimation only, not exact counting.
const charsPerToken = 4

// messageOverheadTokens covers the per-message role and framing tokens
// the chat template adds around the content.
const messageOverheadTokens = 4

// EstimateTokens returns an approximate token count for the given text
// using the common ~4 characters per token heuristic. len counts bytes,
// so multi-byte content overestimates slightly; erring high makes
// compaction trigger a little early, which is the safe direction.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken // Round up
}

// estimateMessages estimates the input token count of a conversation,
// including tool-call arguments carried on assistant messages.
func estimateMessages(messages []openai.ChatCompletionMessage) int {
	total := 0
	for _, msg := range messages {
		total += messageOverheadTokens
		total += EstimateTokens(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += EstimateTokens(tc.Function.Name)
			total += EstimateTokens(tc.Function.Arguments)
		}
	}
	return total
}

// truncateAtLineBoundary cuts at the last newline before the limit to
// avoid splitting mid-line, which matters when the content is indented
// JSON, YAML, or log output. The cut point is first adjusted backwards
// so a multi-byte UTF-8 character is never split.
func truncateAtLineBoundary(content string, maxChars int, marker string) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	truncated := content[:cut]
	if idx := strings.LastIndex(truncated, "\n"); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + fmt.Sprintf(
		"\n\n[TRUNCATED: %s — Original size: %s, limit: %s]",
		marker, formatSize(len(content)), formatSize(maxChars),
	)
}

// truncateToolResult bounds one tool result before it is fed back to
// the model. Ten full-size results must not crowd out the conversation.
func truncateToolResult(content string, maxChars int) string {
	return truncateAtLineBoundary(content, maxChars, "Tool output exceeded reply budget")
}

// formatSize returns a human-readable size string. Uses bytes for
// values under 1KB to avoid confusing "0KB" output on small content.
func formatSize(bytes int) string {
	if bytes < 1024 {
		return fmt.Sprintf("%dB", bytes)
	}
	return fmt.Sprintf("%dKB", bytes/1024)
}
