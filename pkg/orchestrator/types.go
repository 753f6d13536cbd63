package orchestrator

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/inferlab/modelmgr/pkg/tools"
)

// ChatRequest is the inbound chat payload: a standard OpenAI chat
// completion request plus the manager's extension flags. The model
// field selects a catalog model id.
type ChatRequest struct {
	openai.ChatCompletionRequest

	// WebSearch exposes the web_search tool to the model.
	WebSearch bool `json:"web_search,omitempty"`

	// Sandbox exposes the sandbox tool manifest to the model.
	Sandbox bool `json:"sandbox,omitempty"`

	// SessionID keys sandbox executions to one workspace so files
	// survive across tool calls within a conversation.
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the model's final response plus everything the tool
// loop collected on the way there.
type ChatResponse struct {
	openai.ChatCompletionResponse

	// SearchResults are all web_search hits across iterations, in
	// dispatch order.
	SearchResults []tools.SearchResult `json:"search_results,omitempty"`

	// SandboxOutputs are all sandbox execution records across
	// iterations, in dispatch order.
	SandboxOutputs []tools.ExecuteResult `json:"sandbox_outputs,omitempty"`

	// Iterations is the number of model round trips made.
	Iterations int `json:"iterations"`

	// ToolLoopCapped is set when the iteration cap fired before the
	// model produced a tool-free answer. The content is the model's
	// most recent text, not a verified conclusion.
	ToolLoopCapped bool `json:"tool_loop_capped,omitempty"`
}
