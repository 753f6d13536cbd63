package config

import "time"

// Config is the full server configuration. Every section has built-in
// defaults; a missing config file yields a fully usable Config.
type Config struct {
	Server *ServerConfig `yaml:"server"`

	// CatalogPath locates the model catalog. Overridable by the
	// MODELMGR_CATALOG environment variable.
	CatalogPath string `yaml:"catalog_path"`

	// WatchCatalog enables live catalog reloads on file changes. Only
	// stopped runtimes pick up changes; the rest keep their old spec.
	WatchCatalog bool `yaml:"watch_catalog"`

	Driver  *DriverConfig  `yaml:"driver"`
	Probe   *ProbeConfig   `yaml:"probe"`
	Monitor *MonitorConfig `yaml:"monitor"`
	Memory  *MemoryConfig  `yaml:"memory"`
	Chat    *ChatConfig    `yaml:"chat"`
	Events  *EventsConfig  `yaml:"events"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// CORSOrigins are the allowed dashboard origins.
	CORSOrigins []string `yaml:"cors_origins"`
}

// DriverConfig configures the container runtime driver.
type DriverConfig struct {
	// Engine is the container engine binary (docker, podman).
	Engine string `yaml:"engine"`

	// TimeoutSeconds bounds every single driver operation.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-operation driver deadline.
func (c *DriverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProbeConfig configures endpoint health probes.
type ProbeConfig struct {
	// TimeoutSeconds bounds one probe request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-probe deadline.
func (c *ProbeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MonitorConfig configures the running-model health monitor.
type MonitorConfig struct {
	// Disabled turns off background probing of running models.
	Disabled bool `yaml:"disabled"`

	// IntervalSeconds is the sweep period. Slower than the startup probe
	// interval; running models only need drift detection.
	IntervalSeconds int `yaml:"interval_seconds"`

	// FailureThreshold is the number of consecutive failed probes after
	// which a running model is marked failed.
	FailureThreshold int `yaml:"failure_threshold"`
}

// Interval returns the sweep period.
func (c *MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// MemoryConfig configures the admission guard.
type MemoryConfig struct {
	// MinFreeGB is required headroom when a model declares no estimate.
	MinFreeGB float64 `yaml:"min_free_gb"`

	// SafetyMarginGB is added on top of a declared estimate.
	SafetyMarginGB float64 `yaml:"safety_margin_gb"`
}

// ChatConfig configures the tool-orchestration loop and its collaborators.
type ChatConfig struct {
	// SearchURL is the base URL of the search service.
	SearchURL string `yaml:"search_url"`

	// SandboxURL is the base URL of the code-execution sandbox.
	SandboxURL string `yaml:"sandbox_url"`

	// ModelTimeoutSeconds bounds one chat completion call. Local models
	// can take minutes to answer and streaming is not used, so this is
	// much longer than a typical HTTP timeout.
	ModelTimeoutSeconds int `yaml:"model_timeout_seconds"`

	// SearchTimeoutSeconds bounds one search call.
	SearchTimeoutSeconds int `yaml:"search_timeout_seconds"`

	// SandboxTimeoutSeconds bounds one sandbox execution.
	SandboxTimeoutSeconds int `yaml:"sandbox_timeout_seconds"`

	// MaxToolIterations is the hard cap on model↔tools round trips per
	// chat request.
	MaxToolIterations int `yaml:"max_tool_iterations"`

	// ToolResultMaxChars truncates each tool result before it is sent
	// back to the model.
	ToolResultMaxChars int `yaml:"tool_result_max_chars"`

	// MaxOutputTokensCap is the configured ceiling on max_tokens per call.
	MaxOutputTokensCap int `yaml:"max_output_tokens_cap"`

	// CompactKeepLast is how many trailing messages survive compaction.
	CompactKeepLast int `yaml:"compact_keep_last"`

	// DefaultMaxContextTokens is assumed when neither the catalog nor
	// the endpoint reports a context window.
	DefaultMaxContextTokens int `yaml:"default_max_context_tokens"`
}

// ModelTimeout returns the chat completion deadline.
func (c *ChatConfig) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

// SearchTimeout returns the per-search deadline.
func (c *ChatConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

// SandboxTimeout returns the per-execution deadline.
func (c *ChatConfig) SandboxTimeout() time.Duration {
	return time.Duration(c.SandboxTimeoutSeconds) * time.Second
}

// EventsConfig configures the WebSocket status stream.
type EventsConfig struct {
	// WriteTimeoutSeconds bounds one WebSocket send.
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
}

// WriteTimeout returns the per-send deadline.
func (c *EventsConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}
