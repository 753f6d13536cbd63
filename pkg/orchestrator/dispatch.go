package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/inferlab/modelmgr/pkg/metrics"
	"github.com/inferlab/modelmgr/pkg/tools"
)

// toolOutcome carries one tool call's result plus the structured
// intermediates the response surfaces to the caller.
type toolOutcome struct {
	result   tools.ToolResult
	searches []tools.SearchResult
	sandbox  *tools.ExecuteResult
}

// dispatchAll runs every tool call concurrently and returns outcomes
// in the order the model emitted the calls. Tool failures ride in the
// result slots; nothing here aborts the chat request.
func (o *Orchestrator) dispatchAll(ctx context.Context, calls []openai.ToolCall, sessionID string, known map[string]bool) []toolOutcome {
	outcomes := make([]toolOutcome, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			outcomes[i] = o.dispatch(gctx, call, sessionID, known)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// dispatch executes one tool call and classifies the outcome for
// metrics. Unknown tools get a synthesized error result listing what
// is actually available, so the model can self-correct.
func (o *Orchestrator) dispatch(ctx context.Context, call openai.ToolCall, sessionID string, known map[string]bool) toolOutcome {
	name := call.Function.Name
	start := time.Now()

	var out toolOutcome
	switch {
	case name == tools.WebSearchToolName && known[name]:
		out = o.dispatchSearch(ctx, call)
	case known[name]:
		out = o.dispatchSandbox(ctx, call, sessionID)
	default:
		out = toolOutcome{result: tools.ToolResult{
			CallID:  call.ID,
			Name:    name,
			Content: unknownToolMessage(name, known),
			IsError: true,
		}}
	}

	status := "ok"
	if out.result.IsError {
		status = "error"
	}
	metrics.RecordToolExecution(name, status, time.Since(start).Seconds())
	return out
}

// dispatchSearch handles a web_search call. The search client carries
// its own per-call timeout.
func (o *Orchestrator) dispatchSearch(ctx context.Context, call openai.ToolCall) toolOutcome {
	var args struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := decodeArguments(call.Function.Arguments, &args); err != nil {
		return errorOutcome(call, fmt.Sprintf("Invalid arguments for %s: %s", call.Function.Name, err))
	}
	if strings.TrimSpace(args.Query) == "" {
		return errorOutcome(call, "web_search requires a non-empty query")
	}

	results, err := o.search.Search(ctx, args.Query, args.MaxResults)
	if err != nil {
		slog.Warn("Search call failed", "query", args.Query, "error", err)
		return errorOutcome(call, fmt.Sprintf("Error executing %s: %s", call.Function.Name, err))
	}

	return toolOutcome{
		result: tools.ToolResult{
			CallID:  call.ID,
			Name:    call.Function.Name,
			Content: tools.FormatResults(results),
		},
		searches: results,
	}
}

// dispatchSandbox handles a sandbox tool call. A run that fails inside
// the sandbox is still a result; only transport failures with the
// sandbox itself become error results without an execution record.
func (o *Orchestrator) dispatchSandbox(ctx context.Context, call openai.ToolCall, sessionID string) toolOutcome {
	args, err := normalizedRawArguments(call.Function.Arguments)
	if err != nil {
		return errorOutcome(call, fmt.Sprintf("Invalid arguments for %s: %s", call.Function.Name, err))
	}

	exec, err := o.sandbox.Execute(ctx, call.Function.Name, args, sessionID)
	if err != nil {
		slog.Warn("Sandbox call failed", "tool", call.Function.Name, "error", err)
		return errorOutcome(call, fmt.Sprintf("Error executing %s: %s", call.Function.Name, err))
	}

	out := toolOutcome{sandbox: exec}
	if exec.Success {
		content := exec.Output
		if content == "" {
			content = "(no output)"
		}
		out.result = tools.ToolResult{CallID: call.ID, Name: call.Function.Name, Content: content}
		return out
	}

	content := exec.Error
	if content == "" {
		content = "execution failed"
	}
	if exec.Output != "" {
		content = exec.Output + "\n" + content
	}
	out.result = tools.ToolResult{CallID: call.ID, Name: call.Function.Name, Content: content, IsError: true}
	return out
}

// normalizedRawArguments validates argument JSON for pass-through to
// the sandbox, repairing it when the model emitted malformed JSON.
func normalizedRawArguments(arguments string) (json.RawMessage, error) {
	var parsed map[string]any
	if err := decodeArguments(arguments, &parsed); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(parsed)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func errorOutcome(call openai.ToolCall, content string) toolOutcome {
	return toolOutcome{result: tools.ToolResult{
		CallID:  call.ID,
		Name:    call.Function.Name,
		Content: content,
		IsError: true,
	}}
}

// unknownToolMessage names the available tools so the model can pick a
// real one on its next turn.
func unknownToolMessage(name string, known map[string]bool) string {
	names := make([]string, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return fmt.Sprintf("Unknown tool '%s'. No tools are available for this request.", name)
	}
	return fmt.Sprintf("Unknown tool '%s'. Available tools: %s", name, strings.Join(names, ", "))
}

// webSearchTool is the OpenAI function definition for web_search.
func webSearchTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        tools.WebSearchToolName,
			Description: "Search the web for current information. Returns result titles, URLs and snippets.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results to return",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}
