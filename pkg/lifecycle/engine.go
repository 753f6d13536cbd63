// Package lifecycle tracks every catalog model through its state
// machine (stopped, starting, running, stopping, failed) and owns the
// only code allowed to change those states. Start and Stop return as
// soon as the request is accepted; supervisors and the stop finisher
// drive the runtime to its terminal state in the background.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inferlab/modelmgr/pkg/config"
	"github.com/inferlab/modelmgr/pkg/driver"
	"github.com/inferlab/modelmgr/pkg/events"
	"github.com/inferlab/modelmgr/pkg/memory"
	"github.com/inferlab/modelmgr/pkg/metrics"
	"github.com/inferlab/modelmgr/pkg/models"
	"github.com/inferlab/modelmgr/pkg/probe"
)

// probeHost is where managed endpoints answer. Models run on the same
// workstation as the manager.
const probeHost = "127.0.0.1"

// MemoryAdmitter decides whether a start may proceed. Implemented by
// memory.Guard; faked in tests.
type MemoryAdmitter interface {
	Admit(ctx context.Context, requiredGB float64, force bool) memory.Decision
}

// Engine is the lifecycle manager for all catalog models. All state
// mutations flow through transition; per-model actionMu serializes
// operations on one model without coupling models to each other.
type Engine struct {
	driver    driver.ContainerDriver
	prober    probe.Prober
	guard     MemoryAdmitter
	publisher events.Publisher // optional; nil disables status events

	mu       sync.RWMutex
	runtimes map[string]*runtime
	order    []string // catalog declaration order

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewEngine builds one runtime per catalog entry, all stopped. The
// publisher may be nil when no event stream is wired.
func NewEngine(catalog *config.Catalog, drv driver.ContainerDriver, prober probe.Prober, guard MemoryAdmitter, publisher events.Publisher) *Engine {
	e := &Engine{
		driver:    drv,
		prober:    prober,
		guard:     guard,
		publisher: publisher,
		runtimes:  make(map[string]*runtime, catalog.Len()),
	}
	for _, spec := range catalog.All() {
		e.runtimes[spec.ID] = newRuntime(spec)
		e.order = append(e.order, spec.ID)
	}
	return e
}

// List returns a snapshot of every model in catalog order. Never
// touches the driver or the network, so it stays fast while starts and
// stops are in flight. Returns ErrNotInitialized when no models are
// configured.
func (e *Engine) List() ([]models.RuntimeView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.runtimes) == 0 {
		return nil, ErrNotInitialized
	}
	views := make([]models.RuntimeView, 0, len(e.order))
	for _, id := range e.order {
		views = append(views, e.runtimes[id].view())
	}
	return views, nil
}

// Get returns a snapshot of one model.
func (e *Engine) Get(id string) (models.RuntimeView, error) {
	rt, err := e.runtime(id)
	if err != nil {
		return models.RuntimeView{}, err
	}
	return rt.view(), nil
}

// ReadyView returns the view of a running model. ErrModelNotReady when
// the model exists but is in any other state.
func (e *Engine) ReadyView(id string) (models.RuntimeView, error) {
	v, err := e.Get(id)
	if err != nil {
		return models.RuntimeView{}, err
	}
	if v.State != models.StateRunning {
		return models.RuntimeView{}, ErrModelNotReady
	}
	return v, nil
}

// Start requests a model start and returns once the request is
// accepted; readiness is observed through Get, List, or the status
// stream. Starting a running model is an accepted no-op. Busy models
// return ErrBusy, failed admission returns *InsufficientMemoryError
// unless force is set.
func (e *Engine) Start(ctx context.Context, id string, force bool) error {
	rt, err := e.runtime(id)
	if err != nil {
		return err
	}

	rt.actionMu.Lock()
	defer rt.actionMu.Unlock()

	if e.closed.Load() {
		return ErrShuttingDown
	}

	spec := rt.currentSpec()
	switch state := rt.currentState(); {
	case state == models.StateRunning:
		slog.Info("Start requested for running model, nothing to do", "model_id", spec.ID)
		return nil
	case state.IsBusy():
		return ErrBusy
	}

	decision := e.guard.Admit(ctx, spec.EstimatedMemoryGB, force)
	if !decision.OK {
		metrics.RecordAdmission("rejected")
		return &InsufficientMemoryError{
			AvailableGB: decision.AvailableGB,
			RequiredGB:  decision.RequiredGB,
		}
	}
	if decision.Forced {
		metrics.RecordAdmission("forced")
	} else {
		metrics.RecordAdmission("allowed")
	}

	// The supervisor outlives this request: its context ends via Stop or
	// Close, not when the caller's request context does.
	supCtx, cancel := context.WithCancel(context.Background())
	rt.beginStartup(cancel)
	e.transition(rt, models.StateStarting, "")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.superviseStartup(supCtx, rt)
	}()
	return nil
}

// Stop requests a model stop and returns once the request is accepted.
// Stopping a stopped model is an accepted no-op; a model already
// stopping returns ErrBusy. Stops from failed are allowed so a
// half-dead container can be cleaned up. The driver call itself runs in
// a finisher goroutine; the model reads as stopping until it completes.
func (e *Engine) Stop(ctx context.Context, id string) error {
	rt, err := e.runtime(id)
	if err != nil {
		return err
	}

	rt.actionMu.Lock()
	defer rt.actionMu.Unlock()

	if e.closed.Load() {
		return ErrShuttingDown
	}

	switch rt.currentState() {
	case models.StateStopped:
		slog.Info("Stop requested for stopped model, nothing to do", "model_id", rt.currentSpec().ID)
		return nil
	case models.StateStopping:
		return ErrBusy
	case models.StateStarting:
		// Cancel before the transition so the supervisor exits at its
		// next boundary instead of competing for the terminal state.
		rt.cancelStartup()
	}

	e.transition(rt, models.StateStopping, "")

	e.wg.Add(1)
	go e.finishStop(rt)
	return nil
}

// finishStop owns the stopping -> stopped/failed transition. The driver
// command runs without holding actionMu so concurrent requests get an
// immediate ErrBusy instead of queueing behind it; the stopping state
// rejects every competing operation in the meantime, so the state
// cannot move before the terminal transition below.
func (e *Engine) finishStop(rt *runtime) {
	defer e.wg.Done()

	spec := rt.currentSpec()
	// The original request context is gone by now; the driver bounds the
	// command with its own per-operation timeout.
	err := e.driver.Stop(context.Background(), spec)

	rt.actionMu.Lock()
	defer rt.actionMu.Unlock()

	if err != nil {
		slog.Error("Container stop failed", "model_id", spec.ID, "error", err)
		e.transition(rt, models.StateFailed, err.Error())
		return
	}
	e.transition(rt, models.StateStopped, "")
}

// Reconcile adopts containers that were already running before the
// manager started. Best-effort: inspect or probe failures leave the
// runtime stopped and never fail process startup.
func (e *Engine) Reconcile(ctx context.Context) {
	for _, rt := range e.orderedRuntimes() {
		spec := rt.currentSpec()

		info, err := e.driver.Inspect(ctx, spec.ContainerName)
		if err != nil {
			slog.Warn("Reconcile inspect failed", "model_id", spec.ID, "error", err)
			continue
		}
		if !info.Running {
			continue
		}

		sample := e.prober.Probe(ctx, probeHost, spec.EndpointPort)
		rt.recordProbe(sample)
		metrics.RecordProbe(spec.ID, string(sample.Outcome))
		if !sample.Healthy() {
			slog.Warn("Container running but endpoint not answering, leaving model stopped",
				"model_id", spec.ID,
				"container", spec.ContainerName,
				"outcome", sample.Outcome)
			continue
		}

		rt.actionMu.Lock()
		if rt.currentState() == models.StateStopped {
			e.transition(rt, models.StateRunning, "")
			slog.Info("Adopted running container",
				"model_id", spec.ID,
				"container", spec.ContainerName)
		}
		rt.actionMu.Unlock()
	}
}

// ReloadCatalog applies a freshly loaded catalog. New models appear as
// stopped runtimes. Spec changes and removals take effect only for
// models currently stopped; anything mid-lifecycle keeps its previous
// spec, stays managed, and picks up nothing until it stops.
func (e *Engine) ReloadCatalog(catalog *config.Catalog) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*runtime, catalog.Len())
	order := make([]string, 0, catalog.Len())

	for _, spec := range catalog.All() {
		rt, exists := e.runtimes[spec.ID]
		switch {
		case !exists:
			rt = newRuntime(spec)
			slog.Info("Catalog reload: model added", "model_id", spec.ID)
		case rt.actionMu.TryLock():
			if rt.currentState() == models.StateStopped {
				rt.replaceSpec(spec)
			} else {
				slog.Info("Catalog reload: model active, keeping previous spec until stopped",
					"model_id", spec.ID, "state", rt.currentState())
			}
			rt.actionMu.Unlock()
		default:
			slog.Info("Catalog reload: model busy, keeping previous spec until stopped",
				"model_id", spec.ID)
		}
		next[spec.ID] = rt
		order = append(order, spec.ID)
	}

	for id, rt := range e.runtimes {
		if _, kept := next[id]; kept {
			continue
		}
		if rt.currentState() == models.StateStopped {
			slog.Info("Catalog reload: model removed", "model_id", id)
			continue
		}
		// Still running or mid-transition: keep managing it so it can be
		// stopped, even though the catalog no longer lists it.
		slog.Warn("Catalog reload: removed model still active, keeping until stopped", "model_id", id)
		next[id] = rt
		order = append(order, id)
	}

	e.runtimes = next
	e.order = order
}

// StatusFrames marshals one model.status frame per model, in catalog
// order. Used as the catchup snapshot for new stream subscribers.
func (e *Engine) StatusFrames() [][]byte {
	views, err := e.List()
	if err != nil {
		return nil
	}
	frames := make([][]byte, 0, len(views))
	for _, v := range views {
		payload := events.ModelStatusPayload{
			ModelID:  v.ID,
			Status:   v.State,
			Reason:   v.LastFailureReason,
			Progress: v.StartupProgress,
		}
		if data := events.MarshalModelStatus(payload); data != nil {
			frames = append(frames, data)
		}
	}
	return frames
}

// Close rejects further operations, cancels in-flight supervisors, and
// waits for background work to drain. Callers stop issuing operations
// (shut the HTTP server down) before closing.
func (e *Engine) Close() {
	e.closed.Store(true)
	for _, rt := range e.orderedRuntimes() {
		rt.cancelStartup()
	}
	e.wg.Wait()
}

func (e *Engine) runtime(id string) (*runtime, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rt, ok := e.runtimes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rt, nil
}

func (e *Engine) orderedRuntimes() []*runtime {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*runtime, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.runtimes[id])
	}
	return out
}

// transition is the single place a runtime's state changes. It applies
// the change under rt.mu, then fans out the side effects: log line,
// metric, status event. Callers hold rt.actionMu.
func (e *Engine) transition(rt *runtime, to models.State, reason string) {
	rt.mu.Lock()
	from := rt.state
	rt.state = to
	rt.stateEnteredAt = time.Now()
	if to == models.StateFailed {
		rt.lastFailure = reason
	}
	var progress *models.StartupProgress
	if to == models.StateStarting {
		progress = rt.progressLocked()
	}
	id := rt.spec.ID
	rt.mu.Unlock()

	if reason != "" {
		slog.Info("Model state changed", "model_id", id, "from", from, "to", to, "reason", reason)
	} else {
		slog.Info("Model state changed", "model_id", id, "from", from, "to", to)
	}
	metrics.RecordTransition(id, string(to))

	if e.publisher != nil {
		e.publisher.PublishModelStatus(events.ModelStatusPayload{
			ModelID:  id,
			Status:   to,
			Previous: from,
			Reason:   reason,
			Progress: progress,
		})
	}
}
