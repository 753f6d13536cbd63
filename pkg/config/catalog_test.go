package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validCatalogYAML = `
models:
  - id: qwen3-32b
    display_name: "Qwen3 32B"
    engine: vllm
    endpoint_port: 8100
    container_name: vllm-qwen3
    start_command: ["/opt/models/start-qwen3.sh"]
    estimated_memory_gb: 22
    max_context_tokens: 32768
    supports_tools: true
    tool_call_parser: hermes
  - id: llama33-70b
    engine: trtllm
    endpoint_port: 8101
    container_name: trt-llama33
    start_command: ["/opt/models/start-llama33.sh", "--profile", "fp8"]
    stop_command: ["/opt/models/stop-llama33.sh"]
    estimated_memory_gb: 45
    startup_timeout_seconds: 900
    health_probe_interval_seconds: 10
`

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, validCatalogYAML)

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	qwen, ok := catalog.ByID("qwen3-32b")
	require.True(t, ok)
	assert.Equal(t, "Qwen3 32B", qwen.DisplayName)
	assert.Equal(t, EngineVLLM, qwen.Engine)
	assert.Equal(t, 8100, qwen.EndpointPort)
	assert.True(t, qwen.SupportsTools)

	// Timing defaults applied to the first entry
	assert.Equal(t, DefaultStartupTimeoutSeconds, qwen.StartupTimeoutSeconds)
	assert.Equal(t, DefaultHealthProbeIntervalSeconds, qwen.HealthProbeIntervalSeconds)

	// Explicit values preserved on the second
	llama, ok := catalog.ByID("llama33-70b")
	require.True(t, ok)
	assert.Equal(t, 900, llama.StartupTimeoutSeconds)
	assert.Equal(t, 10, llama.HealthProbeIntervalSeconds)
	// display_name falls back to the id
	assert.Equal(t, "llama33-70b", llama.DisplayName)

	_, ok = catalog.ByID("missing")
	assert.False(t, ok)
}

func TestLoadCatalogOrderPreserved(t *testing.T) {
	path := writeCatalog(t, validCatalogYAML)

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	all := catalog.All()
	require.Len(t, all, 2)
	assert.Equal(t, "qwen3-32b", all[0].ID)
	assert.Equal(t, "llama33-70b", all[1].ID)
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)

	var loadErr *LoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestLoadCatalogInvalidYAML(t *testing.T) {
	path := writeCatalog(t, "models:\n  - id: [broken")
	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoadCatalogEnvExpansion(t *testing.T) {
	t.Setenv("MODELS_DIR", "/srv/models")

	path := writeCatalog(t, `
models:
  - id: m1
    engine: vllm
    endpoint_port: 8100
    container_name: c1
    start_command: ["{{.MODELS_DIR}}/start.sh"]
`)
	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	spec, ok := catalog.ByID("m1")
	require.True(t, ok)
	assert.Equal(t, []string{"/srv/models/start.sh"}, spec.StartCommand)
}

func TestLoadCatalogEmpty(t *testing.T) {
	path := writeCatalog(t, "models: []")
	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 0, catalog.Len())
}

func TestValidateSpecs(t *testing.T) {
	base := func() []*ModelSpec {
		return []*ModelSpec{
			{
				ID: "m1", Engine: EngineVLLM, EndpointPort: 8100, ContainerName: "c1",
				StartCommand: []string{"start"}, StartupTimeoutSeconds: 600, HealthProbeIntervalSeconds: 5,
			},
			{
				ID: "m2", Engine: EngineOllama, EndpointPort: 8101, ContainerName: "c2",
				StartCommand: []string{"start"}, StartupTimeoutSeconds: 600, HealthProbeIntervalSeconds: 5,
			},
		}
	}

	tests := []struct {
		name     string
		mutate   func([]*ModelSpec)
		errField string
	}{
		{"valid", func(s []*ModelSpec) {}, ""},
		{"empty id", func(s []*ModelSpec) { s[0].ID = "" }, "id"},
		{"unsafe id", func(s []*ModelSpec) { s[0].ID = "has space" }, "id"},
		{"duplicate id", func(s []*ModelSpec) { s[1].ID = "m1" }, "id"},
		{"missing engine", func(s []*ModelSpec) { s[0].Engine = "" }, "engine"},
		{"missing container", func(s []*ModelSpec) { s[0].ContainerName = "" }, "container_name"},
		{"duplicate container", func(s []*ModelSpec) { s[1].ContainerName = "c1" }, "container_name"},
		{"port zero", func(s []*ModelSpec) { s[0].EndpointPort = 0 }, "endpoint_port"},
		{"port too high", func(s []*ModelSpec) { s[0].EndpointPort = 70000 }, "endpoint_port"},
		{"duplicate port", func(s []*ModelSpec) { s[1].EndpointPort = 8100 }, "endpoint_port"},
		{"empty start command", func(s []*ModelSpec) { s[0].StartCommand = nil }, "start_command"},
		{"zero startup timeout", func(s []*ModelSpec) { s[0].StartupTimeoutSeconds = 0 }, "startup_timeout_seconds"},
		{"zero probe interval", func(s []*ModelSpec) { s[0].HealthProbeIntervalSeconds = 0 }, "health_probe_interval_seconds"},
		{"negative memory", func(s []*ModelSpec) { s[0].EstimatedMemoryGB = -1 }, "estimated_memory_gb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs := base()
			tt.mutate(specs)
			err := ValidateSpecs(specs)
			if tt.errField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.errField, ve.Field)
		})
	}
}

func TestEngineKindIsKnown(t *testing.T) {
	assert.True(t, EngineVLLM.IsKnown())
	assert.True(t, EngineOllama.IsKnown())
	assert.False(t, EngineKind("sglang").IsKnown())
}
