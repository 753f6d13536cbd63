package api

// --- Response types ---

// AcceptedResponse acknowledges an asynchronous lifecycle operation.
// The actual transition is observed via GET /api/models or the
// WebSocket status stream.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a machine-readable error kind plus an optional
// human-readable reason. Memory rejections additionally report the
// figures the guard saw.
type ErrorResponse struct {
	Error       string  `json:"error"`
	Reason      string  `json:"reason,omitempty"`
	AvailableGB float64 `json:"available_gb,omitempty"`
	RequiredGB  float64 `json:"required_gb,omitempty"`
}

// HealthResponse is returned by GET /health. Minimal and always 200
// while the process is up: liveness must not depend on model health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Warnings int    `json:"warnings"`
}

// SystemWarningsResponse is returned by GET /api/system/warnings.
type SystemWarningsResponse struct {
	Warnings []SystemWarningItem `json:"warnings"`
}

// SystemWarningItem is a single system warning.
type SystemWarningItem struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	Details   string `json:"details"`
	ModelID   string `json:"model_id,omitempty"`
	CreatedAt string `json:"created_at"`
}
