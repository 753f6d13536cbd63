package models

// State defines the lifecycle states of a managed model.
type State string

const (
	// StateStopped means no container is running for the model
	StateStopped State = "stopped"
	// StateStarting means the start command was issued and health probes are pending
	StateStarting State = "starting"
	// StateRunning means the model endpoint answered a recent health probe
	StateRunning State = "running"
	// StateStopping means a stop is in flight
	StateStopping State = "stopping"
	// StateFailed means the last start, stop, or health check failed
	StateFailed State = "failed"
)

// IsValid checks if the state is valid
func (s State) IsValid() bool {
	switch s {
	case StateStopped, StateStarting, StateRunning, StateStopping, StateFailed:
		return true
	default:
		return false
	}
}

// IsBusy reports whether the state has an operation in flight.
// Start and stop requests against a busy runtime are rejected.
func (s State) IsBusy() bool {
	return s == StateStarting || s == StateStopping
}

// CanStart reports whether a start request is allowed from this state.
func (s State) CanStart() bool {
	return s == StateStopped || s == StateFailed
}

// Operation identifies the action currently holding a runtime's action slot.
type Operation string

const (
	// OperationNone means no operation is in flight
	OperationNone Operation = "none"
	// OperationStart means a startup supervisor owns the runtime
	OperationStart Operation = "start"
	// OperationStop means a stop call owns the runtime
	OperationStop Operation = "stop"
)
