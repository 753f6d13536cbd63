package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inferlab/modelmgr/pkg/metrics"
	"github.com/inferlab/modelmgr/pkg/models"
)

// startupTimeoutReason is the failure reason set when a model does not
// become healthy within its startup window.
const startupTimeoutReason = "startup_timeout"

// superviseStartup drives one start attempt: run the start command,
// then probe until healthy, cancelled, or out of time. The attempt's
// context is cancelled by Stop and Close; after cancellation the
// supervisor never touches state again, the canceller owns it.
func (e *Engine) superviseStartup(ctx context.Context, rt *runtime) {
	spec := rt.currentSpec()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Startup supervisor panicked", "model_id", spec.ID, "panic", r)
			e.failStartup(ctx, rt, fmt.Sprintf("startup panic: %v", r))
		}
	}()

	if err := e.driver.Start(ctx, spec); err != nil {
		if ctx.Err() != nil {
			return
		}
		e.failStartup(ctx, rt, err.Error())
		return
	}

	interval := spec.ProbeInterval()
	deadline := rt.startupDeadline()

	// First probe fires immediately; fast models should not wait out a
	// full interval before being reported running.
	for {
		if ctx.Err() != nil {
			return
		}
		if time.Now().After(deadline) {
			// Tear the container down so a server that binds late does not
			// squat on the port behind a model reported failed.
			if err := e.driver.Stop(context.Background(), spec); err != nil {
				slog.Warn("Teardown after startup timeout failed", "model_id", spec.ID, "error", err)
			}
			e.failStartup(ctx, rt, startupTimeoutReason)
			return
		}

		rt.incHealthChecks()
		sample := e.prober.Probe(ctx, probeHost, spec.EndpointPort)
		rt.recordProbe(sample)
		metrics.RecordProbe(spec.ID, string(sample.Outcome))

		if sample.Healthy() {
			e.commitRunning(ctx, rt)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// commitRunning promotes starting to running, unless a stop raced in
// between the healthy probe and this lock.
func (e *Engine) commitRunning(ctx context.Context, rt *runtime) {
	rt.actionMu.Lock()
	defer rt.actionMu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if rt.currentState() != models.StateStarting {
		return
	}
	e.transition(rt, models.StateRunning, "")
}

// failStartup applies the supervisor's failed transition, unless the
// attempt was cancelled or the state already moved on.
func (e *Engine) failStartup(ctx context.Context, rt *runtime, reason string) {
	rt.actionMu.Lock()
	defer rt.actionMu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if rt.currentState() != models.StateStarting {
		return
	}
	e.transition(rt, models.StateFailed, reason)
}
