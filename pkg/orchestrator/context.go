package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// compactThreshold is the input fraction of the context window at
	// which the conversation gets compacted before the next call.
	compactThreshold = 0.70

	// minOutputTokens is the floor for max_tokens. A reply budget below
	// this produces answers cut off mid-sentence.
	minOutputTokens = 256

	// safetyPadTokens absorbs the estimation error between the chars/4
	// heuristic and the model's real tokenizer.
	safetyPadTokens = 512

	// summaryMaxTokens bounds the auxiliary summarization reply.
	summaryMaxTokens = 512

	// summaryTimeout bounds the auxiliary summarization call. It runs
	// inside a user-facing request and must not eat the whole model
	// timeout on its own.
	summaryTimeout = 60 * time.Second
)

const summarySystemPrompt = "You summarize conversations. Reply with a concise summary of the " +
	"conversation below, preserving facts, decisions, file names, numbers and open questions. " +
	"Reply with the summary only."

// maxOutputTokens computes a safe max_tokens for one call:
// min(cap, 40% of the window, what is left after the input and a
// safety pad), floored at minOutputTokens.
func maxOutputTokens(maxContext, inputTokens, configuredCap int) int {
	budget := min(configuredCap, maxContext*2/5, maxContext-inputTokens-safetyPadTokens)
	if budget < minOutputTokens {
		return minOutputTokens
	}
	return budget
}

// compactIfNeeded checks the estimated input size against the context
// window and compacts the conversation when it crosses the threshold:
// the system message and the last keepLast messages survive verbatim,
// the middle is replaced by a summary obtained from the model itself.
// A failed summarization falls back to a deterministic digest so the
// request still proceeds.
func (o *Orchestrator) compactIfNeeded(
	ctx context.Context,
	modelID string,
	port int,
	maxContext int,
	messages []openai.ChatCompletionMessage,
) []openai.ChatCompletionMessage {
	input := estimateMessages(messages)
	if float64(input) <= compactThreshold*float64(maxContext) {
		return messages
	}

	head := 0
	if len(messages) > 0 && messages[0].Role == openai.ChatMessageRoleSystem {
		head = 1
	}
	tailStart := len(messages) - o.cfg.CompactKeepLast
	if tailStart <= head {
		// Nothing in the middle to fold away.
		return messages
	}
	middle := messages[head:tailStart]

	summary, err := o.summarize(ctx, modelID, port, middle)
	if err != nil {
		slog.Warn("Conversation summarization failed, using digest fallback",
			"model_id", modelID, "error", err)
		summary = digestMessages(middle)
	}

	compacted := make([]openai.ChatCompletionMessage, 0, head+1+o.cfg.CompactKeepLast)
	compacted = append(compacted, messages[:head]...)
	compacted = append(compacted, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: "Summary of the earlier conversation:\n" + summary,
	})
	compacted = append(compacted, messages[tailStart:]...)

	slog.Info("Compacted conversation",
		"model_id", modelID,
		"messages_before", len(messages),
		"messages_after", len(compacted),
		"input_tokens_before", input,
		"input_tokens_after", estimateMessages(compacted))
	return compacted
}

// summarize asks the model for a summary of the middle of the
// conversation. Tool messages are rendered as plain text; the summary
// call itself carries no tools.
func (o *Orchestrator) summarize(
	ctx context.Context,
	modelID string,
	port int,
	middle []openai.ChatCompletionMessage,
) (string, error) {
	sumCtx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	resp, err := o.client.Complete(sumCtx, modelID, port, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: renderTranscript(middle)},
		},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("summarization returned no content")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// renderTranscript flattens messages into role-prefixed lines for the
// summarization prompt.
func renderTranscript(messages []openai.ChatCompletionMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		content := msg.Content
		if content == "" && len(msg.ToolCalls) > 0 {
			names := make([]string, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				names = append(names, tc.Function.Name)
			}
			content = "(called tools: " + strings.Join(names, ", ") + ")"
		}
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, truncateAtLineBoundary(content, 2000, "Message shortened for summarization"))
	}
	return sb.String()
}

// digestMessages is the deterministic fallback when summarization
// fails: the user's questions plus the last assistant reply, headlined.
func digestMessages(middle []openai.ChatCompletionMessage) string {
	var userLines []string
	lastAssistant := ""
	for _, msg := range middle {
		switch msg.Role {
		case openai.ChatMessageRoleUser:
			userLines = append(userLines, "- "+firstLine(msg.Content, 200))
		case openai.ChatMessageRoleAssistant:
			if msg.Content != "" {
				lastAssistant = msg.Content
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("Earlier user messages:\n")
	if len(userLines) == 0 {
		sb.WriteString("- (none)\n")
	} else {
		sb.WriteString(strings.Join(userLines, "\n"))
		sb.WriteString("\n")
	}
	if lastAssistant != "" {
		sb.WriteString("Last assistant reply:\n")
		sb.WriteString(firstLine(lastAssistant, 500))
	}
	return sb.String()
}

// firstLine returns the first line of s, cut to maxChars.
func firstLine(s string, maxChars int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > maxChars {
		s = s[:maxChars] + "..."
	}
	return strings.TrimSpace(s)
}
