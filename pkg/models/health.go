package models

import "time"

// HealthOutcome classifies the result of one endpoint probe.
type HealthOutcome string

const (
	// OutcomeOK means the endpoint answered with HTTP 2xx
	OutcomeOK HealthOutcome = "ok"
	// OutcomeHTTPError means the endpoint answered with a non-2xx status
	OutcomeHTTPError HealthOutcome = "http_error"
	// OutcomeTransportError means the connection was refused, reset, or otherwise failed
	OutcomeTransportError HealthOutcome = "transport_error"
	// OutcomeTimeout means the probe deadline elapsed before a response
	OutcomeTimeout HealthOutcome = "timeout"
)

// IsValid checks if the outcome is valid
func (o HealthOutcome) IsValid() bool {
	switch o {
	case OutcomeOK, OutcomeHTTPError, OutcomeTransportError, OutcomeTimeout:
		return true
	default:
		return false
	}
}

// HealthSample records the result of a single probe against a model endpoint.
type HealthSample struct {
	When       time.Time     `json:"when"`
	Outcome    HealthOutcome `json:"outcome"`
	HTTPStatus int           `json:"http_status,omitempty"` // set only for http_error
	RTT        time.Duration `json:"rtt"`

	// MaxModelLen is the context window advertised by the endpoint's
	// /v1/models payload, when present. Zero means not reported.
	MaxModelLen int `json:"max_model_len,omitempty"`
}

// Healthy reports whether the sample counts as a successful probe.
func (s HealthSample) Healthy() bool {
	return s.Outcome == OutcomeOK
}
