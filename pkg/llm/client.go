// Package llm talks to the managed models' OpenAI-compatible chat
// endpoints. One shared HTTP client serves every model; per-model
// go-openai clients differ only in base URL and are cached by port.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// endpointHost is where managed endpoints answer. Models run on the
// same workstation as the manager.
const endpointHost = "127.0.0.1"

// DefaultRequestTimeout bounds one completion call. Local models can
// take minutes on long prompts, so this is generous by default and
// overridden from chat config.
const DefaultRequestTimeout = 30 * time.Minute

// UpstreamError marks a failure of the model endpoint itself, as
// opposed to a bad request. The API layer maps it to 503.
type UpstreamError struct {
	ModelID string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("model endpoint %s: %v", e.ModelID, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Pool hands out chat completions against model endpoints. Connection
// pooling lives in the one shared transport; request deadlines are
// enforced per call via context.
type Pool struct {
	httpClient     *http.Client
	requestTimeout time.Duration

	mu      sync.Mutex
	clients map[int]*openai.Client // keyed by endpoint port
}

// NewPool creates a pool whose completion calls are bounded by
// requestTimeout. Non-positive means DefaultRequestTimeout.
func NewPool(requestTimeout time.Duration) *Pool {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Pool{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		requestTimeout: requestTimeout,
		clients:        make(map[int]*openai.Client),
	}
}

// Complete runs one chat completion against the model listening on
// port. The request's Model field is filled with modelID when unset;
// endpoints validate the served model name against it. Any endpoint
// failure comes back as *UpstreamError.
func (p *Pool) Complete(ctx context.Context, modelID string, port int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = modelID
	}

	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	resp, err := p.clientFor(port).CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, &UpstreamError{ModelID: modelID, Err: err}
	}
	return resp, nil
}

// clientFor returns the cached client for one endpoint port. Local
// endpoints take no API key.
func (p *Pool) clientFor(port int) *openai.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[port]; ok {
		return c
	}
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = fmt.Sprintf("http://%s:%d/v1", endpointHost, port)
	cfg.HTTPClient = p.httpClient
	c := openai.NewClientWithConfig(cfg)
	p.clients[port] = c
	return c
}
