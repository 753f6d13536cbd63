package models

import "time"

// StartupProgress describes an in-flight startup for dashboard polling.
// ProgressPercent is derived from elapsed wall time against the startup
// timeout, so it is monotonically non-decreasing while the state stays
// starting and never exceeds 100.
type StartupProgress struct {
	ElapsedSeconds  int `json:"elapsed_s"`
	TimeoutSeconds  int `json:"timeout_s"`
	HealthChecks    int `json:"health_checks"`
	ProgressPercent int `json:"progress_percent"`
}

// ComputeProgressPercent returns min(100, floor(100 × elapsed / timeout)).
func ComputeProgressPercent(elapsed, timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	pct := int(elapsed * 100 / timeout)
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// RuntimeView is a point-in-time value snapshot of one managed model.
// Returned by the lifecycle engine's list/get; safe to read without locks.
type RuntimeView struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Engine            string           `json:"engine"`
	Port              int              `json:"port"`
	ContainerName     string           `json:"container_name"`
	State             State            `json:"status"`
	StateEnteredAt    time.Time        `json:"state_entered_at"`
	EstimatedMemoryGB float64          `json:"estimated_memory_gb,omitempty"`
	MaxContextLength  int              `json:"max_context_length,omitempty"`
	SupportsTools     bool             `json:"supports_tools"`
	ToolCallParser    string           `json:"tool_call_parser,omitempty"`
	LastFailureReason string           `json:"last_failure_reason,omitempty"`
	StartupProgress   *StartupProgress `json:"startup_progress,omitempty"` // only while starting
	LastProbe         *HealthSample    `json:"last_probe,omitempty"`
}
