package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/inferlab/modelmgr/pkg/tools"
)

// FakeSearchService impersonates the web search sidecar. Each query
// gets one canned hit whose title embeds the query, so assertions can
// tie results back to what the model asked for.
type FakeSearchService struct {
	srv   *httptest.Server
	delay time.Duration

	mu      sync.Mutex
	queries []string
}

// NewFakeSearchService starts a search sidecar answering immediately.
func NewFakeSearchService(t *testing.T) *FakeSearchService {
	t.Helper()
	s := &FakeSearchService{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.handleSearch)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the sidecar base URL for chat config.
func (s *FakeSearchService) URL() string {
	return s.srv.URL
}

// SetDelay makes every subsequent search take at least d.
func (s *FakeSearchService) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Queries returns every query received, in arrival order.
func (s *FakeSearchService) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *FakeSearchService) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.queries = append(s.queries, req.Query)
	delay := s.delay
	s.mu.Unlock()

	if !sleepOrCancel(r, delay) {
		return
	}

	resp := struct {
		Results []tools.SearchResult `json:"results"`
	}{
		Results: []tools.SearchResult{{
			Title:   "Result for " + req.Query,
			URL:     "https://example.com/1",
			Snippet: "Snippet about " + req.Query,
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// SandboxExec records one execution received by the fake sandbox.
type SandboxExec struct {
	Tool      string
	Args      string
	SessionID string
}

// FakeSandboxService impersonates the code-execution sandbox: a
// manifest with one run_python tool and an execute endpoint that
// always succeeds.
type FakeSandboxService struct {
	srv   *httptest.Server
	delay time.Duration

	mu    sync.Mutex
	execs []SandboxExec
}

// NewFakeSandboxService starts a sandbox sidecar answering immediately.
func NewFakeSandboxService(t *testing.T) *FakeSandboxService {
	t.Helper()
	s := &FakeSandboxService{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tools-openai", s.handleManifest)
	mux.HandleFunc("/api/execute/", s.handleExecute)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the sidecar base URL for chat config.
func (s *FakeSandboxService) URL() string {
	return s.srv.URL
}

// SetDelay makes every subsequent execution take at least d.
func (s *FakeSandboxService) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Execs returns every execution received, in arrival order.
func (s *FakeSandboxService) Execs() []SandboxExec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SandboxExec(nil), s.execs...)
}

func (s *FakeSandboxService) handleManifest(w http.ResponseWriter, r *http.Request) {
	manifest := []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        "run_python",
			Description: "Execute Python code in the sandbox.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code": map[string]any{"type": "string"},
				},
				"required": []string{"code"},
			},
		},
	}}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(manifest)
}

func (s *FakeSandboxService) handleExecute(w http.ResponseWriter, r *http.Request) {
	tool := strings.TrimPrefix(r.URL.Path, "/api/execute/")
	var req struct {
		Args      json.RawMessage `json:"args"`
		SessionID string          `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.execs = append(s.execs, SandboxExec{Tool: tool, Args: string(req.Args), SessionID: req.SessionID})
	n := len(s.execs)
	delay := s.delay
	s.mu.Unlock()

	if !sleepOrCancel(r, delay) {
		return
	}

	result := tools.ExecuteResult{
		Success:       true,
		Output:        "42\n",
		ExecutionTime: 0.2,
		ExecID:        fmt.Sprintf("exec-%d", n),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// sleepOrCancel waits out delay unless the client goes away first.
// Returns false when the request was cancelled.
func sleepOrCancel(r *http.Request, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	select {
	case <-time.After(delay):
		return true
	case <-r.Context().Done():
		return false
	}
}
