package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultSandboxTimeout bounds one sandbox execution; code can
// legitimately run for a while.
const DefaultSandboxTimeout = 60 * time.Second

// manifestTTL is how long the tool manifest is served from cache. The
// sandbox's tool set changes rarely; a minute keeps chat requests from
// hammering the manifest endpoint without pinning a stale set for long.
const manifestTTL = time.Minute

const manifestCacheKey = "manifest"

// ExecuteResult is the sandbox's outcome for one tool execution.
type ExecuteResult struct {
	Success       bool    `json:"success"`
	Output        string  `json:"output"`
	Error         string  `json:"error,omitempty"`
	ExecutionTime float64 `json:"execution_time"`
	ExecID        string  `json:"exec_id,omitempty"`
}

type executeRequest struct {
	Args      json.RawMessage `json:"args"`
	SessionID string          `json:"session_id,omitempty"`
}

// SandboxClient talks to the code-execution sandbox: a tool manifest
// in OpenAI function shape, and per-tool execution.
type SandboxClient struct {
	baseURL    string
	httpClient *http.Client
	manifest   *expirable.LRU[string, []openai.Tool]
}

// NewSandboxClient creates a client for the sandbox at baseURL.
// Non-positive timeout means DefaultSandboxTimeout.
func NewSandboxClient(baseURL string, timeout time.Duration) *SandboxClient {
	if timeout <= 0 {
		timeout = DefaultSandboxTimeout
	}
	return &SandboxClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		manifest:   expirable.NewLRU[string, []openai.Tool](1, nil, manifestTTL),
	}
}

// Tools returns the sandbox tool manifest, cached for a minute.
func (c *SandboxClient) Tools(ctx context.Context) ([]openai.Tool, error) {
	if tools, ok := c.manifest.Get(manifestCacheKey); ok {
		return tools, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tools-openai", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sandbox manifest returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var tools []openai.Tool
	if err := json.NewDecoder(resp.Body).Decode(&tools); err != nil {
		return nil, fmt.Errorf("decode sandbox manifest: %w", err)
	}

	c.manifest.Add(manifestCacheKey, tools)
	return tools, nil
}

// Execute runs one sandbox tool with raw JSON arguments. A sandbox
// answer with success=false is returned as a result, not an error;
// errors mean the sandbox itself could not be reached or understood.
func (c *SandboxClient) Execute(ctx context.Context, tool string, args json.RawMessage, sessionID string) (*ExecuteResult, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	body, err := json.Marshal(executeRequest{Args: args, SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/api/execute/" + url.PathEscape(tool)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox execute %s: %w", tool, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sandbox execute %s returned %d: %s", tool, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out ExecuteResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sandbox result for %s: %w", tool, err)
	}
	return &out, nil
}
