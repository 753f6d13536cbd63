package e2e

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// CompletionScript produces the endpoint's answer for the given
// 1-based completion call number.
type CompletionScript func(call int, req openai.ChatCompletionRequest) openai.ChatCompletionResponse

// FakeModelEndpoint impersonates an OpenAI-compatible inference server:
// GET /v1/models for health probes and POST /v1/chat/completions driven
// by a script. It listens on a real loopback port so the production
// prober and completion client exercise their full HTTP paths.
type FakeModelEndpoint struct {
	srv     *httptest.Server
	healthy atomic.Bool
	maxLen  int

	mu       sync.Mutex
	script   CompletionScript
	requests []openai.ChatCompletionRequest
}

// NewFakeModelEndpoint starts a fake endpoint that is healthy from the
// first probe. A nil script answers every completion with plain text.
func NewFakeModelEndpoint(t *testing.T, script CompletionScript) *FakeModelEndpoint {
	t.Helper()
	if script == nil {
		script = func(int, openai.ChatCompletionRequest) openai.ChatCompletionResponse {
			return textCompletion("ok")
		}
	}

	e := &FakeModelEndpoint{script: script, maxLen: 32768}
	e.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", e.handleModels)
	mux.HandleFunc("/v1/chat/completions", e.handleCompletions)
	e.srv = httptest.NewServer(mux)
	t.Cleanup(e.srv.Close)
	return e
}

// Port returns the endpoint's loopback port, for building the model
// spec that points at this server.
func (e *FakeModelEndpoint) Port() int {
	return e.srv.Listener.Addr().(*net.TCPAddr).Port
}

// SetHealthy flips whether /v1/models answers 200 or 503.
func (e *FakeModelEndpoint) SetHealthy(healthy bool) {
	e.healthy.Store(healthy)
}

// Calls returns how many completion requests the endpoint served.
func (e *FakeModelEndpoint) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

// Request returns the nth completion request, 1-based.
func (e *FakeModelEndpoint) Request(n int) openai.ChatCompletionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[n-1]
}

func (e *FakeModelEndpoint) handleModels(w http.ResponseWriter, r *http.Request) {
	if !e.healthy.Load() {
		http.Error(w, "loading", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"object":"list","data":[{"id":"served-model","object":"model","max_model_len":%d}]}`, e.maxLen)
}

func (e *FakeModelEndpoint) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.requests = append(e.requests, req)
	call := len(e.requests)
	script := e.script
	e.mu.Unlock()

	resp := script(call, req)
	if resp.Model == "" {
		resp.Model = req.Model
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// textCompletion builds a plain assistant answer.
func textCompletion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      "chatcmpl-e2e",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	}
}

// toolCallCompletion builds an assistant turn requesting the given
// tool calls.
func toolCallCompletion(calls ...openai.ToolCall) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      "chatcmpl-e2e",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: calls,
			},
			FinishReason: openai.FinishReasonToolCalls,
		}},
		Usage: openai.Usage{PromptTokens: 20, CompletionTokens: 15, TotalTokens: 35},
	}
}

// functionCall builds one structured tool call.
func functionCall(id, name, arguments string) openai.ToolCall {
	return openai.ToolCall{
		ID:   id,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}
