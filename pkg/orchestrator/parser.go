package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"
)

// Patterns for tagged tool-call fragments (compiled once).
var (
	// <tool_call>{"name": ..., "arguments": {...}}</tool_call> as
	// emitted by Hermes-style chat templates.
	toolCallTagPattern = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)

	// Fenced ```json blocks. Only blocks that decode to a named call
	// are treated as tool calls; ordinary code examples fall through.
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

	// Tool names are function identifiers, no dots or slashes.
	toolNamePattern = regexp.MustCompile(`^[A-Za-z][\w\-]*$`)
)

// taggedToolCall is the JSON shape inside a tagged fragment. Some chat
// templates emit "arguments", older ones "args"; accept both.
type taggedToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Args      json.RawMessage `json:"args"`
}

// ParseTextToolCalls scans assistant text for tool calls that the
// model emitted as tagged text instead of structured tool_calls. The
// parser is intentionally forgiving: <tool_call> tags are tried first,
// then fenced JSON blocks, and candidate payloads that fail to decode
// are run through JSON repair before being rejected.
func ParseTextToolCalls(content string) []openai.ToolCall {
	if content == "" || !strings.Contains(content, "{") {
		return nil
	}

	if calls := parseTagged(toolCallTagPattern, content); len(calls) > 0 {
		return calls
	}
	return parseTagged(fencedJSONPattern, content)
}

// parseTagged extracts tool calls for one fragment pattern. Fragments
// that do not decode to a valid named call are skipped, not errors:
// the model may legitimately mix prose and JSON examples.
func parseTagged(pattern *regexp.Regexp, content string) []openai.ToolCall {
	matches := pattern.FindAllStringSubmatch(content, -1)
	var calls []openai.ToolCall
	for _, match := range matches {
		var tagged taggedToolCall
		if err := decodeLenient([]byte(match[1]), &tagged); err != nil {
			continue
		}
		if !toolNamePattern.MatchString(tagged.Name) {
			continue
		}

		args := tagged.Arguments
		if len(args) == 0 {
			args = tagged.Args
		}
		calls = append(calls, openai.ToolCall{
			ID:   fmt.Sprintf("call_%d", len(calls)),
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tagged.Name,
				Arguments: normalizeArguments(args),
			},
		})
	}
	return calls
}

// normalizeArguments renders raw argument JSON as an object string.
// Missing or scalar arguments become an empty object so downstream
// decoding never sees invalid JSON.
func normalizeArguments(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return "{}"
	}
	return trimmed
}

// decodeLenient unmarshals JSON, retrying through jsonrepair when the
// payload is malformed. Local models routinely emit unquoted keys,
// trailing commas, or truncated objects in tool arguments.
func decodeLenient(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(string(data))
	if err != nil {
		return fmt.Errorf("repair tool call JSON: %w", err)
	}
	return json.Unmarshal([]byte(repaired), v)
}

// decodeArguments decodes a tool call's argument payload leniently.
// An empty payload decodes as an empty object.
func decodeArguments(arguments string, v any) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	return decodeLenient([]byte(arguments), v)
}
