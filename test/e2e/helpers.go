package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/inferlab/modelmgr/pkg/api"
	"github.com/inferlab/modelmgr/pkg/events"
	"github.com/inferlab/modelmgr/pkg/models"
	"github.com/inferlab/modelmgr/pkg/orchestrator"
)

// doJSON issues one request against the app and returns status and body.
func (a *TestApp) doJSON(method, path string, body any) (int, []byte) {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.BaseURL+path, reader)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp.StatusCode, data
}

// ListModels fetches every model's runtime view.
func (a *TestApp) ListModels() []models.RuntimeView {
	a.t.Helper()
	status, body := a.doJSON(http.MethodGet, "/api/models", nil)
	require.Equal(a.t, http.StatusOK, status, "list models: %s", body)
	var views []models.RuntimeView
	require.NoError(a.t, json.Unmarshal(body, &views))
	return views
}

// GetModel fetches one model's runtime view.
func (a *TestApp) GetModel(id string) models.RuntimeView {
	a.t.Helper()
	status, body := a.doJSON(http.MethodGet, "/api/models/"+id, nil)
	require.Equal(a.t, http.StatusOK, status, "get model %s: %s", id, body)
	var view models.RuntimeView
	require.NoError(a.t, json.Unmarshal(body, &view))
	return view
}

// TryStart posts a start request and returns the raw status and body.
func (a *TestApp) TryStart(id string, force bool) (int, []byte) {
	a.t.Helper()
	path := "/api/models/" + id + "/start"
	if force {
		path += "?force=true"
	}
	return a.doJSON(http.MethodPost, path, nil)
}

// StartModel requests a start and requires it accepted.
func (a *TestApp) StartModel(id string) {
	a.t.Helper()
	status, body := a.TryStart(id, false)
	require.Equal(a.t, http.StatusAccepted, status, "start %s: %s", id, body)
}

// TryStop posts a stop request and returns the raw status and body.
func (a *TestApp) TryStop(id string) (int, []byte) {
	a.t.Helper()
	return a.doJSON(http.MethodPost, "/api/models/"+id+"/stop", nil)
}

// StopModel requests a stop and requires it accepted.
func (a *TestApp) StopModel(id string) {
	a.t.Helper()
	status, body := a.TryStop(id)
	require.Equal(a.t, http.StatusAccepted, status, "stop %s: %s", id, body)
}

// WaitForState polls the model endpoint until it reports the state.
func (a *TestApp) WaitForState(id string, state models.State, timeout time.Duration) {
	a.t.Helper()
	require.Eventually(a.t, func() bool {
		return a.GetModel(id).State == state
	}, timeout, 50*time.Millisecond, "model %s never reached %s", id, state)
}

// Chat posts a chat completion and returns the raw status and body.
func (a *TestApp) Chat(req orchestrator.ChatRequest) (int, []byte) {
	a.t.Helper()
	return a.doJSON(http.MethodPost, "/v1/chat/completions", req)
}

// ChatOK posts a chat completion and decodes the successful response.
func (a *TestApp) ChatOK(req orchestrator.ChatRequest) orchestrator.ChatResponse {
	a.t.Helper()
	status, body := a.Chat(req)
	require.Equal(a.t, http.StatusOK, status, "chat: %s", body)
	var out orchestrator.ChatResponse
	require.NoError(a.t, json.Unmarshal(body, &out))
	return out
}

// SystemWarnings fetches the active warning list.
func (a *TestApp) SystemWarnings() []api.SystemWarningItem {
	a.t.Helper()
	status, body := a.doJSON(http.MethodGet, "/api/system/warnings", nil)
	require.Equal(a.t, http.StatusOK, status, "warnings: %s", body)
	var out api.SystemWarningsResponse
	require.NoError(a.t, json.Unmarshal(body, &out))
	return out.Warnings
}

// chatRequest builds a single-message user chat request.
func chatRequest(model, prompt string) orchestrator.ChatRequest {
	req := orchestrator.ChatRequest{}
	req.Model = model
	req.Messages = []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
	return req
}

// WSClient is one dashboard-style status stream subscriber.
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn
}

// DialWS connects to the status stream and consumes the
// connection.established greeting.
func (a *TestApp) DialWS() *WSClient {
	a.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, a.WSURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://localhost:3000"}},
	})
	require.NoError(a.t, err)
	a.t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	c := &WSClient{t: a.t, conn: conn}
	greeting := c.readRaw(5 * time.Second)
	require.Equal(a.t, "connection.established", greeting["type"])
	return c
}

// Subscribe joins a channel and consumes the confirmation. Catchup
// frames, if any, are left on the wire for the caller to read.
func (c *WSClient) Subscribe(channel string) {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := json.Marshal(events.ClientMessage{Action: "subscribe", Channel: channel})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, raw))

	msg := c.readRaw(5 * time.Second)
	require.Equal(c.t, "subscription.confirmed", msg["type"])
	require.Equal(c.t, channel, msg["channel"])
}

// ReadStatus reads the next model.status frame.
func (c *WSClient) ReadStatus(timeout time.Duration) events.ModelStatusPayload {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, data, err := c.conn.Read(ctx)
	require.NoError(c.t, err)

	var payload events.ModelStatusPayload
	require.NoError(c.t, json.Unmarshal(data, &payload))
	require.Equal(c.t, events.EventTypeModelStatus, payload.Type, "frame: %s", data)
	return payload
}

// StatusSequence collects the states observed for one model, in frame
// order, until the wanted state arrives. Frames for other models are
// skipped.
func (c *WSClient) StatusSequence(modelID string, until models.State, timeout time.Duration) []models.State {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	var seq []models.State
	for {
		remaining := time.Until(deadline)
		require.Positive(c.t, remaining,
			"model %s never reached %s on the status stream, saw %v", modelID, until, seq)

		frame := c.ReadStatus(remaining)
		if frame.ModelID != modelID {
			continue
		}
		seq = append(seq, frame.Status)
		if frame.Status == until {
			return seq
		}
	}
}

func (c *WSClient) readRaw(timeout time.Duration) map[string]any {
	c.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, data, err := c.conn.Read(ctx)
	require.NoError(c.t, err)

	var msg map[string]any
	require.NoError(c.t, json.Unmarshal(data, &msg))
	return msg
}
