package config

import "time"

// EngineKind identifies the inference engine serving a model. The set is
// open: unknown kinds are accepted and treated opaquely, since the engine
// only matters for the declared start/stop commands.
type EngineKind string

const (
	// EngineVLLM is a vLLM OpenAI-compatible server
	EngineVLLM EngineKind = "vllm"
	// EngineTRTLLM is a TensorRT-LLM server
	EngineTRTLLM EngineKind = "trtllm"
	// EngineOllama is an ollama daemon
	EngineOllama EngineKind = "ollama"
	// EngineTransformers is a transformers-based custom server
	EngineTransformers EngineKind = "transformers"
	// EngineLlamaCpp is a llama.cpp server
	EngineLlamaCpp EngineKind = "llamacpp"
)

// IsKnown reports whether the kind is one of the built-in engine kinds.
// Unknown kinds are legal; callers may log them.
func (k EngineKind) IsKnown() bool {
	switch k {
	case EngineVLLM, EngineTRTLLM, EngineOllama, EngineTransformers, EngineLlamaCpp:
		return true
	default:
		return false
	}
}

// Default timing values applied to catalog entries that omit them.
const (
	DefaultStartupTimeoutSeconds      = 600
	DefaultHealthProbeIntervalSeconds = 5
)

// ModelSpec is one declared model deployment. Specs are immutable for the
// lifetime of a catalog value; a reload produces new specs.
type ModelSpec struct {
	// ID is the unique, URL-safe model identifier used in API paths and
	// as the model name in chat requests.
	ID string `yaml:"id" json:"id"`

	// DisplayName is the human-readable name shown by the dashboard.
	DisplayName string `yaml:"display_name" json:"display_name"`

	// Engine selects the inference engine kind. Opaque beyond defaults.
	Engine EngineKind `yaml:"engine" json:"engine"`

	// EndpointPort is the host port of the model's OpenAI-compatible
	// endpoint. Unique across the catalog.
	EndpointPort int `yaml:"endpoint_port" json:"endpoint_port"`

	// ContainerName is the runtime container name. Unique across the catalog.
	ContainerName string `yaml:"container_name" json:"container_name"`

	// StartCommand is the argv array that brings the container into
	// existence. Executed verbatim with no shell interpretation.
	StartCommand []string `yaml:"start_command" json:"start_command"`

	// StopCommand is the argv array that stops the deployment. May be
	// empty, in which case the driver stops the container by name.
	StopCommand []string `yaml:"stop_command,omitempty" json:"stop_command,omitempty"`

	// EstimatedMemoryGB is the declared host-memory footprint used for
	// admission. Zero means unknown; the guard applies a conservative
	// default.
	EstimatedMemoryGB float64 `yaml:"estimated_memory_gb,omitempty" json:"estimated_memory_gb,omitempty"`

	// MaxContextTokens is the advisory context window forwarded to
	// clients and used for chat compaction. Zero means undeclared; the
	// value reported by the endpoint's /v1/models is used when available.
	MaxContextTokens int `yaml:"max_context_tokens,omitempty" json:"max_context_tokens,omitempty"`

	// SupportsTools advertises tool-calling capability to clients.
	SupportsTools bool `yaml:"supports_tools,omitempty" json:"supports_tools,omitempty"`

	// ToolCallParser names the engine-side tool-call parser (advisory).
	ToolCallParser string `yaml:"tool_call_parser,omitempty" json:"tool_call_parser,omitempty"`

	// StartupTimeoutSeconds bounds the whole Starting phase. Default 600.
	StartupTimeoutSeconds int `yaml:"startup_timeout_seconds,omitempty" json:"startup_timeout_seconds,omitempty"`

	// HealthProbeIntervalSeconds is the probe cadence while starting and
	// while running. Default 5.
	HealthProbeIntervalSeconds int `yaml:"health_probe_interval_seconds,omitempty" json:"health_probe_interval_seconds,omitempty"`
}

// StartupTimeout returns the startup deadline as a duration.
func (s *ModelSpec) StartupTimeout() time.Duration {
	return time.Duration(s.StartupTimeoutSeconds) * time.Second
}

// ProbeInterval returns the probe cadence as a duration.
func (s *ModelSpec) ProbeInterval() time.Duration {
	return time.Duration(s.HealthProbeIntervalSeconds) * time.Second
}

// MemoryKnown reports whether the spec declares a memory estimate.
func (s *ModelSpec) MemoryKnown() bool {
	return s.EstimatedMemoryGB > 0
}

// applyDefaults fills unset timing fields with the built-in defaults.
func (s *ModelSpec) applyDefaults() {
	if s.StartupTimeoutSeconds == 0 {
		s.StartupTimeoutSeconds = DefaultStartupTimeoutSeconds
	}
	if s.HealthProbeIntervalSeconds == 0 {
		s.HealthProbeIntervalSeconds = DefaultHealthProbeIntervalSeconds
	}
	if s.DisplayName == "" {
		s.DisplayName = s.ID
	}
}
