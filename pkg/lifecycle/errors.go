package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a model id is not in the catalog
	ErrNotFound = errors.New("model not found")

	// ErrBusy is returned when a start or stop is already in flight for the model
	ErrBusy = errors.New("model is busy")

	// ErrNotInitialized is returned when the engine manages an empty catalog
	ErrNotInitialized = errors.New("no models configured")

	// ErrModelNotReady is returned when a chat request addresses a model
	// that is not in the running state
	ErrModelNotReady = errors.New("model is not running")

	// ErrShuttingDown is returned for operations arriving after Close
	ErrShuttingDown = errors.New("lifecycle engine is shutting down")
)

// InsufficientMemoryError rejects a start that does not fit in host
// memory. Carries the figures the API reports to the caller.
type InsufficientMemoryError struct {
	AvailableGB float64
	RequiredGB  float64
}

func (e *InsufficientMemoryError) Error() string {
	return fmt.Sprintf("insufficient memory: %.2f GB available, %.2f GB required",
		e.AvailableGB, e.RequiredGB)
}

// IsInsufficientMemory extracts an InsufficientMemoryError if present.
func IsInsufficientMemory(err error) (*InsufficientMemoryError, bool) {
	var ime *InsufficientMemoryError
	if errors.As(err, &ime) {
		return ime, true
	}
	return nil, false
}
