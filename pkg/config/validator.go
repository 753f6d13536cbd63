package config

import (
	"fmt"
	"regexp"
)

// idPattern restricts model ids to URL-safe characters: they appear in
// API paths and as container label values.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// validateConfig checks the server configuration. Fail-fast: the first
// invalid field aborts startup with a descriptive error.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return NewValidationError("server", "", "port",
			fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidValue, cfg.Server.Port))
	}
	if cfg.Driver.Engine == "" {
		return NewValidationError("driver", "", "engine", ErrMissingRequiredField)
	}
	if cfg.Driver.TimeoutSeconds <= 0 {
		return NewValidationError("driver", "", "timeout_seconds",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.Probe.TimeoutSeconds <= 0 {
		return NewValidationError("probe", "", "timeout_seconds",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.Monitor.IntervalSeconds <= 0 {
		return NewValidationError("monitor", "", "interval_seconds",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.Monitor.FailureThreshold <= 0 {
		return NewValidationError("monitor", "", "failure_threshold",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.Memory.MinFreeGB < 0 {
		return NewValidationError("memory", "", "min_free_gb",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if cfg.Memory.SafetyMarginGB < 0 {
		return NewValidationError("memory", "", "safety_margin_gb",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}

	chat := cfg.Chat
	chatFields := []struct {
		name  string
		value int
	}{
		{"model_timeout_seconds", chat.ModelTimeoutSeconds},
		{"search_timeout_seconds", chat.SearchTimeoutSeconds},
		{"sandbox_timeout_seconds", chat.SandboxTimeoutSeconds},
		{"max_tool_iterations", chat.MaxToolIterations},
		{"tool_result_max_chars", chat.ToolResultMaxChars},
		{"max_output_tokens_cap", chat.MaxOutputTokensCap},
		{"compact_keep_last", chat.CompactKeepLast},
		{"default_max_context_tokens", chat.DefaultMaxContextTokens},
	}
	for _, f := range chatFields {
		if f.value <= 0 {
			return NewValidationError("chat", "", f.name,
				fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}

	if cfg.Events.WriteTimeoutSeconds <= 0 {
		return NewValidationError("events", "", "write_timeout_seconds",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	return nil
}

// ValidateSpecs checks every catalog entry and the cross-entry
// uniqueness rules. Fail-fast on the first violation.
func ValidateSpecs(specs []*ModelSpec) error {
	seenIDs := make(map[string]bool, len(specs))
	seenContainers := make(map[string]string, len(specs))
	seenPorts := make(map[int]string, len(specs))

	for _, spec := range specs {
		if spec.ID == "" {
			return NewValidationError("model", "", "id", ErrMissingRequiredField)
		}
		if !idPattern.MatchString(spec.ID) {
			return NewValidationError("model", spec.ID, "id",
				fmt.Errorf("%w: must be URL-safe", ErrInvalidValue))
		}
		if seenIDs[spec.ID] {
			return NewValidationError("model", spec.ID, "id", ErrDuplicateValue)
		}
		seenIDs[spec.ID] = true

		if spec.Engine == "" {
			return NewValidationError("model", spec.ID, "engine", ErrMissingRequiredField)
		}
		if spec.ContainerName == "" {
			return NewValidationError("model", spec.ID, "container_name", ErrMissingRequiredField)
		}
		if owner, dup := seenContainers[spec.ContainerName]; dup {
			return NewValidationError("model", spec.ID, "container_name",
				fmt.Errorf("%w: %q already used by model %q", ErrDuplicateValue, spec.ContainerName, owner))
		}
		seenContainers[spec.ContainerName] = spec.ID

		if spec.EndpointPort < 1 || spec.EndpointPort > 65535 {
			return NewValidationError("model", spec.ID, "endpoint_port",
				fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidValue, spec.EndpointPort))
		}
		if owner, dup := seenPorts[spec.EndpointPort]; dup {
			return NewValidationError("model", spec.ID, "endpoint_port",
				fmt.Errorf("%w: %d already used by model %q", ErrDuplicateValue, spec.EndpointPort, owner))
		}
		seenPorts[spec.EndpointPort] = spec.ID

		if len(spec.StartCommand) == 0 {
			return NewValidationError("model", spec.ID, "start_command", ErrMissingRequiredField)
		}
		if spec.StartupTimeoutSeconds <= 0 {
			return NewValidationError("model", spec.ID, "startup_timeout_seconds",
				fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if spec.HealthProbeIntervalSeconds <= 0 {
			return NewValidationError("model", spec.ID, "health_probe_interval_seconds",
				fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if spec.EstimatedMemoryGB < 0 {
			return NewValidationError("model", spec.ID, "estimated_memory_gb",
				fmt.Errorf("%w: must not be negative", ErrInvalidValue))
		}
	}

	return nil
}
