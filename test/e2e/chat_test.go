package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/inferlab/modelmgr/pkg/api"
	"github.com/inferlab/modelmgr/pkg/config"
	"github.com/inferlab/modelmgr/pkg/models"
)

// startLiveModel boots the model backed by the fake endpoint and waits
// until it serves. The real HTTP prober drives the startup, so the
// whole start path runs against an actual socket.
func startLiveModel(t *testing.T, app *TestApp, id string) {
	t.Helper()
	app.StartModel(id)
	app.WaitForState(id, models.StateRunning, 10*time.Second)
}

func TestChatAgainstLiveModel(t *testing.T) {
	endpoint := NewFakeModelEndpoint(t, func(call int, req openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		return textCompletion("Paris is the capital of France.")
	})
	app := NewTestApp(t,
		WithSpecs(testSpec("llama-8b", endpoint.Port(), withToolSupport())),
	)
	startLiveModel(t, app, "llama-8b")

	// The probe discovered the endpoint's context window on the way up.
	require.Equal(t, 32768, app.GetModel("llama-8b").MaxContextLength)

	resp := app.ChatOK(chatRequest("llama-8b", "What is the capital of France?"))
	require.Equal(t, 1, resp.Iterations)
	require.False(t, resp.ToolLoopCapped)
	require.Equal(t, "Paris is the capital of France.", resp.Choices[0].Message.Content)

	sent := endpoint.Request(1)
	require.Equal(t, "llama-8b", sent.Model)
	require.Len(t, sent.Messages, 1)
	require.Equal(t, "What is the capital of France?", sent.Messages[0].Content)
	require.False(t, sent.Stream)
	require.Positive(t, sent.MaxTokens, "output budget is always set")
}

func TestChatRequiresRunningModel(t *testing.T) {
	app := NewTestApp(t, WithSpecs(testSpec("llama-8b", 18101)))

	status, body := app.Chat(chatRequest("llama-8b", "hello"))
	require.Equal(t, http.StatusConflict, status)
	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	require.Equal(t, "model_not_ready", errResp.Error)
}

func TestChatWebSearchRoundTrip(t *testing.T) {
	search := NewFakeSearchService(t)
	endpoint := NewFakeModelEndpoint(t, func(call int, req openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		if call == 1 {
			return toolCallCompletion(functionCall("call_1", "web_search", `{"query":"golang generics release"}`))
		}
		return textCompletion("Go 1.18 introduced generics.")
	})
	app := NewTestApp(t,
		WithSpecs(testSpec("llama-8b", endpoint.Port(), withToolSupport())),
		WithChatConfig(config.ChatConfig{SearchURL: search.URL()}),
	)
	startLiveModel(t, app, "llama-8b")

	req := chatRequest("llama-8b", "When did Go get generics?")
	req.WebSearch = true
	resp := app.ChatOK(req)

	require.Equal(t, 2, resp.Iterations)
	require.Equal(t, "Go 1.18 introduced generics.", resp.Choices[0].Message.Content)
	require.Len(t, resp.SearchResults, 1)
	require.Equal(t, "Result for golang generics release", resp.SearchResults[0].Title)
	require.Equal(t, []string{"golang generics release"}, search.Queries())

	// The follow-up call carries the assistant tool call and its result.
	second := endpoint.Request(2)
	require.Len(t, second.Messages, 3)
	require.Equal(t, openai.ChatMessageRoleAssistant, second.Messages[1].Role)
	require.Len(t, second.Messages[1].ToolCalls, 1)
	require.Equal(t, openai.ChatMessageRoleTool, second.Messages[2].Role)
	require.Equal(t, "call_1", second.Messages[2].ToolCallID)
	require.Contains(t, second.Messages[2].Content, "Result for golang generics release")
	require.NotEmpty(t, second.Tools, "tools stay advertised on follow-up calls")
}

func TestChatToolLoopCapped(t *testing.T) {
	search := NewFakeSearchService(t)
	// The model never stops asking for another search.
	endpoint := NewFakeModelEndpoint(t, func(call int, req openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		return toolCallCompletion(functionCall(fmt.Sprintf("call_%d", call), "web_search", `{"query":"more"}`))
	})
	app := NewTestApp(t,
		WithSpecs(testSpec("llama-8b", endpoint.Port(), withToolSupport())),
		WithChatConfig(config.ChatConfig{SearchURL: search.URL()}),
	)
	startLiveModel(t, app, "llama-8b")

	req := chatRequest("llama-8b", "search forever")
	req.WebSearch = true
	resp := app.ChatOK(req)

	require.True(t, resp.ToolLoopCapped)
	require.Equal(t, 10, resp.Iterations)
	require.Equal(t, 10, endpoint.Calls(), "exactly the cap, no extra model call")
	require.Len(t, search.Queries(), 10)
	require.Len(t, resp.SearchResults, 10)

	warnings := app.SystemWarnings()
	require.Len(t, warnings, 1)
	require.Equal(t, "tool_loop", warnings[0].Category)
	require.Equal(t, "llama-8b", warnings[0].ModelID)
}

func TestChatParallelToolFanOut(t *testing.T) {
	search := NewFakeSearchService(t)
	sandbox := NewFakeSandboxService(t)
	search.SetDelay(500 * time.Millisecond)
	sandbox.SetDelay(500 * time.Millisecond)

	endpoint := NewFakeModelEndpoint(t, func(call int, req openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		if call == 1 {
			return toolCallCompletion(
				functionCall("call_py", "run_python", `{"code":"print(6*7)"}`),
				functionCall("call_ws", "web_search", `{"query":"meaning of life"}`),
			)
		}
		return textCompletion("The answer is 42.")
	})
	app := NewTestApp(t,
		WithSpecs(testSpec("llama-8b", endpoint.Port(), withToolSupport())),
		WithChatConfig(config.ChatConfig{SearchURL: search.URL(), SandboxURL: sandbox.URL()}),
	)
	startLiveModel(t, app, "llama-8b")

	req := chatRequest("llama-8b", "Compute 6*7 and verify it online")
	req.WebSearch = true
	req.Sandbox = true
	req.SessionID = "sess-7"

	started := time.Now()
	resp := app.ChatOK(req)
	elapsed := time.Since(started)

	// Both tools take 500ms; running them serially would need a full
	// second. Staying under that shows the fan-out is concurrent.
	require.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	require.Less(t, elapsed, 900*time.Millisecond)

	require.Equal(t, 2, resp.Iterations)
	require.Len(t, resp.SandboxOutputs, 1)
	require.True(t, resp.SandboxOutputs[0].Success)
	require.Len(t, resp.SearchResults, 1)

	execs := sandbox.Execs()
	require.Len(t, execs, 1)
	require.Equal(t, "run_python", execs[0].Tool)
	require.Equal(t, "sess-7", execs[0].SessionID)
	require.JSONEq(t, `{"code":"print(6*7)"}`, execs[0].Args)

	// Tool results come back in the order the model emitted the calls,
	// whatever order they finished in.
	second := endpoint.Request(2)
	require.Len(t, second.Messages, 4)
	require.Equal(t, "call_py", second.Messages[2].ToolCallID)
	require.Equal(t, "call_ws", second.Messages[3].ToolCallID)
	require.Contains(t, second.Messages[2].Content, "42")
}
