// Package orchestrator drives chat requests that may produce tool
// calls: a bounded loop of model call, tool dispatch, and re-send
// until the model answers without tools or the iteration cap fires.
// The orchestrator is stateless per request; all conversation state
// lives in the message list it threads through the loop.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/inferlab/modelmgr/pkg/config"
	"github.com/inferlab/modelmgr/pkg/llm"
	"github.com/inferlab/modelmgr/pkg/metrics"
	"github.com/inferlab/modelmgr/pkg/models"
	"github.com/inferlab/modelmgr/pkg/services"
	"github.com/inferlab/modelmgr/pkg/tools"
)

// ModelResolver yields the view of a model that is ready to serve.
type ModelResolver interface {
	ReadyView(id string) (models.RuntimeView, error)
}

// ModelClient posts chat completions to a local model endpoint.
type ModelClient interface {
	Complete(ctx context.Context, modelID string, port int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// SearchService performs web searches on behalf of the model.
type SearchService interface {
	Search(ctx context.Context, query string, maxResults int) ([]tools.SearchResult, error)
}

// SandboxService exposes and executes code-execution tools.
type SandboxService interface {
	Tools(ctx context.Context) ([]openai.Tool, error)
	Execute(ctx context.Context, tool string, args json.RawMessage, sessionID string) (*tools.ExecuteResult, error)
}

// Orchestrator runs the tool-calling loop for one model at a time.
type Orchestrator struct {
	resolver ModelResolver
	client   ModelClient
	search   SearchService
	sandbox  SandboxService
	warnings *services.SystemWarningsService
	cfg      config.ChatConfig
}

// New creates an orchestrator. warnings may be nil. Zero config
// fields fall back to the built-in chat defaults.
func New(
	resolver ModelResolver,
	client ModelClient,
	search SearchService,
	sandbox SandboxService,
	warnings *services.SystemWarningsService,
	cfg config.ChatConfig,
) *Orchestrator {
	defaults := config.DefaultConfig().Chat
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = defaults.MaxToolIterations
	}
	if cfg.ToolResultMaxChars <= 0 {
		cfg.ToolResultMaxChars = defaults.ToolResultMaxChars
	}
	if cfg.MaxOutputTokensCap <= 0 {
		cfg.MaxOutputTokensCap = defaults.MaxOutputTokensCap
	}
	if cfg.CompactKeepLast <= 0 {
		cfg.CompactKeepLast = defaults.CompactKeepLast
	}
	if cfg.DefaultMaxContextTokens <= 0 {
		cfg.DefaultMaxContextTokens = defaults.DefaultMaxContextTokens
	}
	return &Orchestrator{
		resolver: resolver,
		client:   client,
		search:   search,
		sandbox:  sandbox,
		warnings: warnings,
		cfg:      cfg,
	}
}

// Chat executes one chat request through the tool loop. The request's
// model field names a catalog model, which must be running. A model
// transport failure aborts the request; tool failures do not, they are
// reported back to the model as error results.
func (o *Orchestrator) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	view, err := o.resolver.ReadyView(req.Model)
	if err != nil {
		return nil, err
	}

	maxContext := view.MaxContextLength
	if maxContext <= 0 {
		maxContext = o.cfg.DefaultMaxContextTokens
	}

	toolList, known := o.buildTools(ctx, req)

	messages := req.Messages
	iterations := 0
	var lastResp openai.ChatCompletionResponse
	var searches []tools.SearchResult
	var sandboxOuts []tools.ExecuteResult

	for iterations < o.cfg.MaxToolIterations {
		messages = o.compactIfNeeded(ctx, req.Model, view.Port, maxContext, messages)

		outReq := req.ChatCompletionRequest
		outReq.Messages = messages
		outReq.Stream = false
		if len(toolList) > 0 {
			outReq.Tools = toolList
			outReq.ToolChoice = "auto"
		}
		budget := maxOutputTokens(maxContext, estimateMessages(messages), o.cfg.MaxOutputTokensCap)
		if req.MaxTokens > 0 && req.MaxTokens < budget {
			budget = req.MaxTokens
		}
		outReq.MaxTokens = budget

		resp, err := o.client.Complete(ctx, req.Model, view.Port, outReq)
		if err != nil {
			return nil, err
		}
		iterations++
		lastResp = resp

		if len(resp.Choices) == 0 {
			return nil, &llm.UpstreamError{ModelID: req.Model, Err: errors.New("model returned no choices")}
		}
		choice := resp.Choices[0]

		calls := choice.Message.ToolCalls
		if len(calls) == 0 && len(toolList) > 0 {
			if parsed := ParseTextToolCalls(choice.Message.Content); len(parsed) > 0 {
				calls = parsed
				metrics.RecordParserFallback(req.Model)
				o.warnParserFallback(req.Model)
			}
		}

		// No tools advertised means nothing to dispatch; whatever the
		// model wrote is the answer.
		if len(calls) == 0 || len(toolList) == 0 {
			metrics.ObserveChatIterations(iterations)
			return &ChatResponse{
				ChatCompletionResponse: resp,
				SearchResults:          searches,
				SandboxOutputs:         sandboxOuts,
				Iterations:             iterations,
			}, nil
		}

		outcomes := o.dispatchAll(ctx, calls, req.SessionID, known)

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   choice.Message.Content,
			ToolCalls: calls,
		})
		for i, outcome := range outcomes {
			searches = append(searches, outcome.searches...)
			if outcome.sandbox != nil {
				sandboxOuts = append(sandboxOuts, *outcome.sandbox)
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    truncateToolResult(outcome.result.Content, o.cfg.ToolResultMaxChars),
				Name:       outcome.result.Name,
				ToolCallID: calls[i].ID,
			})
		}
	}

	// Cap reached. The most recent content goes back to the caller,
	// flagged so the client can tell it is not a settled answer.
	metrics.ObserveChatIterations(iterations)
	o.warnToolLoopCapped(req.Model)
	slog.Warn("Tool loop hit iteration cap",
		"model_id", req.Model, "iterations", iterations)
	return &ChatResponse{
		ChatCompletionResponse: lastResp,
		SearchResults:          searches,
		SandboxOutputs:         sandboxOuts,
		Iterations:             iterations,
		ToolLoopCapped:         true,
	}, nil
}

// buildTools assembles the outbound tool list from the request flags.
// A sandbox manifest fetch failure degrades to a tool-less request for
// that class instead of failing the chat; the model can still answer.
func (o *Orchestrator) buildTools(ctx context.Context, req *ChatRequest) ([]openai.Tool, map[string]bool) {
	var list []openai.Tool
	known := make(map[string]bool)

	if req.WebSearch && o.search != nil {
		list = append(list, webSearchTool())
		known[tools.WebSearchToolName] = true
	}

	if req.Sandbox && o.sandbox != nil {
		manifest, err := o.sandbox.Tools(ctx)
		if err != nil {
			slog.Warn("Sandbox tool manifest unavailable, continuing without sandbox tools",
				"model_id", req.Model, "error", err)
		}
		for _, tool := range manifest {
			if tool.Function == nil || tool.Function.Name == "" {
				continue
			}
			list = append(list, tool)
			known[tool.Function.Name] = true
		}
	}

	return list, known
}

func (o *Orchestrator) warnParserFallback(modelID string) {
	if o.warnings == nil {
		return
	}
	o.warnings.AddWarning(services.WarningCategoryToolCallParser,
		fmt.Sprintf("Model %s emitted tool calls as text instead of structured tool_calls", modelID),
		"the text fallback parser recovered the calls; check the model's chat template",
		modelID)
}

func (o *Orchestrator) warnToolLoopCapped(modelID string) {
	if o.warnings == nil {
		return
	}
	o.warnings.AddWarning(services.WarningCategoryToolLoop,
		fmt.Sprintf("Chat request against %s hit the tool iteration cap (%d)", modelID, o.cfg.MaxToolIterations),
		"the last model content was returned unverified",
		modelID)
}
