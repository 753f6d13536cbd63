// Package tools implements the chat loop's tool collaborators: a web
// search service and a code-execution sandbox, both HTTP sidecars on
// the same workstation. Failures of either are reported as tool-result
// errors to the model, never as aborted chat requests.
package tools

// WebSearchToolName is the built-in search tool exposed to models.
const WebSearchToolName = "web_search"

// ToolResult is the outcome of one executed tool call, keyed back to
// the originating call so conversation messages line up.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}
