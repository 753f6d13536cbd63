package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/inferlab/modelmgr/pkg/config"
	"github.com/inferlab/modelmgr/pkg/models"
)

// runtime tracks the live state of one catalog model.
//
// Two locks with distinct roles:
//   - actionMu serializes operations (start, stop, supervisor commit,
//     monitor demotion). Holders may block for seconds across driver
//     calls.
//   - mu guards the state fields for snapshot reads and is never held
//     across external calls, so List/Get stay fast regardless of
//     in-flight work.
type runtime struct {
	actionMu sync.Mutex

	mu               sync.RWMutex
	spec             *config.ModelSpec
	state            models.State
	stateEnteredAt   time.Time
	lastFailure      string
	startDeadline    time.Time
	healthChecks     int
	probeFailures    int // consecutive monitor failures while running
	lastProbe        *models.HealthSample
	discoveredMaxLen int // context window reported by the endpoint
	cancelSupervisor context.CancelFunc
}

func newRuntime(spec *config.ModelSpec) *runtime {
	return &runtime{
		spec:           spec,
		state:          models.StateStopped,
		stateEnteredAt: time.Now(),
	}
}

// currentSpec returns the spec pointer. Specs are immutable; reloads
// swap the pointer under mu.
func (rt *runtime) currentSpec() *config.ModelSpec {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.spec
}

func (rt *runtime) currentState() models.State {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.state
}

// replaceSpec swaps in a reloaded spec. Caller holds actionMu and has
// verified the runtime is stopped.
func (rt *runtime) replaceSpec(spec *config.ModelSpec) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.spec = spec
	rt.discoveredMaxLen = 0
	rt.lastProbe = nil
}

// cancelStartup signals the supervisor, if one is active. Safe to call
// from any state.
func (rt *runtime) cancelStartup() {
	rt.mu.Lock()
	cancel := rt.cancelSupervisor
	rt.cancelSupervisor = nil
	rt.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// beginStartup arms the supervisor handle and resets per-attempt
// counters. The state change itself goes through Engine.transition.
// Caller holds actionMu.
func (rt *runtime) beginStartup(cancel context.CancelFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.startDeadline = time.Now().Add(rt.spec.StartupTimeout())
	rt.healthChecks = 0
	rt.probeFailures = 0
	rt.lastFailure = ""
	rt.cancelSupervisor = cancel
}

func (rt *runtime) startupDeadline() time.Time {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.startDeadline
}

func (rt *runtime) incHealthChecks() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.healthChecks++
}

// recordProbe stores the latest sample and any context window the
// endpoint reported.
func (rt *runtime) recordProbe(sample models.HealthSample) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	cp := sample
	rt.lastProbe = &cp
	if sample.MaxModelLen > 0 {
		rt.discoveredMaxLen = sample.MaxModelLen
	}
}

// monitorFailureCount bumps and returns the consecutive failure counter.
func (rt *runtime) monitorFailureCount(failed bool) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if failed {
		rt.probeFailures++
	} else {
		rt.probeFailures = 0
	}
	return rt.probeFailures
}

// maxContextTokens resolves the advisory context window: catalog value
// first, then the endpoint-reported one, zero when neither is known.
func (rt *runtime) maxContextTokens() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.spec.MaxContextTokens > 0 {
		return rt.spec.MaxContextTokens
	}
	return rt.discoveredMaxLen
}

// view builds a point-in-time value snapshot. Never touches the driver
// or the network.
func (rt *runtime) view() models.RuntimeView {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	v := models.RuntimeView{
		ID:                rt.spec.ID,
		Name:              rt.spec.DisplayName,
		Engine:            string(rt.spec.Engine),
		Port:              rt.spec.EndpointPort,
		ContainerName:     rt.spec.ContainerName,
		State:             rt.state,
		StateEnteredAt:    rt.stateEnteredAt,
		EstimatedMemoryGB: rt.spec.EstimatedMemoryGB,
		SupportsTools:     rt.spec.SupportsTools,
		ToolCallParser:    rt.spec.ToolCallParser,
		LastFailureReason: rt.lastFailure,
	}

	if rt.spec.MaxContextTokens > 0 {
		v.MaxContextLength = rt.spec.MaxContextTokens
	} else {
		v.MaxContextLength = rt.discoveredMaxLen
	}

	if rt.lastProbe != nil {
		cp := *rt.lastProbe
		v.LastProbe = &cp
	}

	if rt.state == models.StateStarting {
		v.StartupProgress = rt.progressLocked()
	}
	return v
}

// progressLocked builds the startup progress block. Caller holds mu.
func (rt *runtime) progressLocked() *models.StartupProgress {
	elapsed := time.Since(rt.stateEnteredAt)
	timeout := rt.spec.StartupTimeout()
	return &models.StartupProgress{
		ElapsedSeconds:  int(elapsed.Seconds()),
		TimeoutSeconds:  rt.spec.StartupTimeoutSeconds,
		HealthChecks:    rt.healthChecks,
		ProgressPercent: models.ComputeProgressPercent(elapsed, timeout),
	}
}
