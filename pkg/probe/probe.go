// Package probe implements readiness checks against OpenAI-compatible
// model endpoints. A probe is a single short GET /v1/models; probers keep
// no state between calls so a restarted backend is observed immediately.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/inferlab/modelmgr/pkg/models"
)

// DefaultTimeout bounds a single probe. Inference servers either answer
// /v1/models immediately or are still loading weights.
const DefaultTimeout = 2 * time.Second

// maxBodyBytes caps how much of the /v1/models payload is read.
const maxBodyBytes = 1 << 20

// Prober checks whether a model endpoint is serving requests.
type Prober interface {
	Probe(ctx context.Context, host string, port int) models.HealthSample
}

// Func adapts a plain function to the Prober interface.
type Func func(ctx context.Context, host string, port int) models.HealthSample

func (f Func) Probe(ctx context.Context, host string, port int) models.HealthSample {
	return f(ctx, host, port)
}

// HTTPProber probes endpoints over plain HTTP. Keep-alives are disabled
// so every probe opens a fresh connection and cannot report stale health
// through a pooled socket.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber creates a prober with the given per-probe timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProber{
		timeout: timeout,
		client: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}
}

// Probe implements Prober. The outcome is never an error value: transport
// failures and timeouts are classifications, not faults.
func (p *HTTPProber) Probe(ctx context.Context, host string, port int) models.HealthSample {
	sample := models.HealthSample{When: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/v1/models", net.JoinHostPort(host, strconv.Itoa(port)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		sample.Outcome = models.OutcomeTransportError
		return sample
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	sample.RTT = time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			sample.Outcome = models.OutcomeTimeout
		} else {
			sample.Outcome = models.OutcomeTransportError
		}
		return sample
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		sample.Outcome = models.OutcomeHTTPError
		sample.HTTPStatus = resp.StatusCode
		return sample
	}

	sample.Outcome = models.OutcomeOK
	sample.MaxModelLen = decodeMaxModelLen(resp.Body)
	return sample
}

// decodeMaxModelLen extracts the advertised context window from a
// /v1/models payload. vLLM reports max_model_len, OpenRouter-style
// servers context_length, llama.cpp n_ctx. Zero when absent or
// unparseable; the sample stays healthy either way.
func decodeMaxModelLen(r io.Reader) int {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return 0
	}

	var payload struct {
		Data []struct {
			MaxModelLen   int `json:"max_model_len"`
			ContextLength int `json:"context_length"`
			NCtx          int `json:"n_ctx"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0
	}

	for _, m := range payload.Data {
		switch {
		case m.MaxModelLen > 0:
			return m.MaxModelLen
		case m.ContextLength > 0:
			return m.ContextLength
		case m.NCtx > 0:
			return m.NCtx
		}
	}
	return 0
}
