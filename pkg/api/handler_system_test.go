package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferlab/modelmgr/pkg/memory"
	"github.com/inferlab/modelmgr/pkg/services"
)

func TestHealthAlwaysOK(t *testing.T) {
	s := newTestServer(&fakeEngine{}, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Contains(t, resp.Version, "modelmgr/")
	assert.Equal(t, 0, resp.Warnings)
}

func TestHealthCountsWarnings(t *testing.T) {
	warnings := services.NewSystemWarningsService()
	warnings.AddWarning(services.WarningCategoryHealth, "model llama-8b is unhealthy", "", "llama-8b")
	warnings.AddWarning(services.WarningCategoryToolLoop, "tool loop capped", "", "phi-mini")
	s := newTestServer(&fakeEngine{}, nil, nil, warnings)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[HealthResponse](t, rec)
	assert.Equal(t, 2, resp.Warnings)
}

func TestSystemMemory(t *testing.T) {
	mem := &fakeMemory{snap: memory.Snapshot{TotalGB: 64, AvailableGB: 41.5, UsedPercent: 35.2}}
	s := newTestServer(&fakeEngine{}, nil, mem, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/system/memory", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decodeJSON[memory.Snapshot](t, rec)
	assert.InDelta(t, 64.0, snap.TotalGB, 0.001)
	assert.InDelta(t, 41.5, snap.AvailableGB, 0.001)
	assert.InDelta(t, 35.2, snap.UsedPercent, 0.001)
}

func TestSystemMemoryUnavailable(t *testing.T) {
	s := newTestServer(&fakeEngine{}, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/system/memory", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSystemWarningsEmpty(t *testing.T) {
	s := newTestServer(&fakeEngine{}, nil, nil, services.NewSystemWarningsService())

	rec := doRequest(t, s, http.MethodGet, "/api/system/warnings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Empty list, not null.
	assert.JSONEq(t, `{"warnings":[]}`, rec.Body.String())
}

func TestSystemWarningsListed(t *testing.T) {
	warnings := services.NewSystemWarningsService()
	warnings.AddWarning(services.WarningCategoryHealth, "model llama-8b is unhealthy", "2 consecutive probe failures", "llama-8b")
	s := newTestServer(&fakeEngine{}, nil, nil, warnings)

	rec := doRequest(t, s, http.MethodGet, "/api/system/warnings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[SystemWarningsResponse](t, rec)
	require.Len(t, resp.Warnings, 1)

	w := resp.Warnings[0]
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, services.WarningCategoryHealth, w.Category)
	assert.Equal(t, "model llama-8b is unhealthy", w.Message)
	assert.Equal(t, "2 consecutive probe failures", w.Details)
	assert.Equal(t, "llama-8b", w.ModelID)

	created, err := time.Parse(time.RFC3339, w.CreatedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Minute)
}
