package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sandboxManifest() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "run_python",
				Description: "Execute Python code in an isolated sandbox",
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "run_shell",
				Description: "Execute a shell command in an isolated sandbox",
			},
		},
	}
}

func TestToolsManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/tools-openai", r.URL.Path)
		json.NewEncoder(w).Encode(sandboxManifest())
	}))
	defer server.Close()

	client := NewSandboxClient(server.URL, 0)
	tools, err := client.Tools(context.Background())

	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "run_python", tools[0].Function.Name)
	assert.Equal(t, "run_shell", tools[1].Function.Name)
}

func TestToolsManifestCached(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		json.NewEncoder(w).Encode(sandboxManifest())
	}))
	defer server.Close()

	client := NewSandboxClient(server.URL, 0)
	for i := 0; i < 5; i++ {
		_, err := client.Tools(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), fetches.Load(), "manifest must be served from cache within its TTL")
}

func TestToolsManifestErrorNotCached(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(sandboxManifest())
	}))
	defer server.Close()

	client := NewSandboxClient(server.URL, 0)

	_, err := client.Tools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	tools, err := client.Tools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 2)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestExecuteSuccess(t *testing.T) {
	var gotReq executeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/execute/run_python", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(ExecuteResult{
			Success:       true,
			Output:        "42\n",
			ExecutionTime: 0.13,
			ExecID:        "exec-7",
		})
	}))
	defer server.Close()

	client := NewSandboxClient(server.URL, 0)
	result, err := client.Execute(context.Background(), "run_python", json.RawMessage(`{"code":"print(6*7)"}`), "sess-1")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "42\n", result.Output)
	assert.Equal(t, "exec-7", result.ExecID)
	assert.JSONEq(t, `{"code":"print(6*7)"}`, string(gotReq.Args))
	assert.Equal(t, "sess-1", gotReq.SessionID)
}

func TestExecuteToolFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExecuteResult{
			Success: false,
			Error:   "NameError: name 'x' is not defined",
		})
	}))
	defer server.Close()

	client := NewSandboxClient(server.URL, 0)
	result, err := client.Execute(context.Background(), "run_python", json.RawMessage(`{"code":"print(x)"}`), "")

	require.NoError(t, err, "a failed execution is a result, not a transport error")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "NameError")
}

func TestExecuteEmptyArgs(t *testing.T) {
	var gotReq executeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(ExecuteResult{Success: true})
	}))
	defer server.Close()

	client := NewSandboxClient(server.URL, 0)
	_, err := client.Execute(context.Background(), "run_shell", nil, "")

	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(gotReq.Args))
}

func TestExecuteServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sandbox overloaded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewSandboxClient(server.URL, 0)
	_, err := client.Execute(context.Background(), "run_python", json.RawMessage(`{}`), "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_python")
	assert.Contains(t, err.Error(), "429")
}

func TestExecuteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewSandboxClient(server.URL, 50*time.Millisecond)
	_, err := client.Execute(context.Background(), "run_python", json.RawMessage(`{}`), "")

	require.Error(t, err)
}
