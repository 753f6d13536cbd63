package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inferlab/modelmgr/pkg/metrics"
	"github.com/inferlab/modelmgr/pkg/models"
	"github.com/inferlab/modelmgr/pkg/services"
)

// healthFailureReason is the failure reason set when a running model
// stops answering its health endpoint.
const healthFailureReason = "health_check_failed"

// Monitor periodically probes running models and fails the ones that
// stay unreachable. A single goroutine sweeps all models; per-model
// probes are quick because the prober carries its own timeout.
type Monitor struct {
	engine    *Engine
	warnings  *services.SystemWarningsService // optional
	interval  time.Duration
	threshold int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor sweeping at the given interval and
// failing a model after threshold consecutive failed probes.
func NewMonitor(engine *Engine, warnings *services.SystemWarningsService, interval time.Duration, threshold int) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if threshold <= 0 {
		threshold = 2
	}
	return &Monitor{
		engine:    engine,
		warnings:  warnings,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
	slog.Info("Health monitor started",
		"interval", m.interval,
		"failure_threshold", m.threshold)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
	slog.Info("Health monitor stopped")
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep probes every running model once.
func (m *Monitor) sweep() {
	for _, rt := range m.engine.orderedRuntimes() {
		select {
		case <-m.stopCh:
			return
		default:
		}
		m.checkModel(rt)
	}
}

// checkModel probes one model. A model mid-operation is skipped this
// round instead of making the sweep wait behind its action lock; the
// next sweep will see its settled state.
func (m *Monitor) checkModel(rt *runtime) {
	if rt.currentState() != models.StateRunning {
		return
	}
	if !rt.actionMu.TryLock() {
		return
	}
	defer rt.actionMu.Unlock()

	if rt.currentState() != models.StateRunning {
		return
	}
	spec := rt.currentSpec()

	sample := m.engine.prober.Probe(context.Background(), probeHost, spec.EndpointPort)
	rt.recordProbe(sample)
	metrics.RecordProbe(spec.ID, string(sample.Outcome))

	if sample.Healthy() {
		rt.monitorFailureCount(false)
		if m.warnings != nil {
			m.warnings.ClearByModelID(services.WarningCategoryHealth, spec.ID)
		}
		return
	}

	failures := rt.monitorFailureCount(true)
	slog.Warn("Health check failed for running model",
		"model_id", spec.ID,
		"outcome", sample.Outcome,
		"consecutive_failures", failures)
	if failures < m.threshold {
		return
	}

	m.engine.transition(rt, models.StateFailed, healthFailureReason)
	if m.warnings != nil {
		m.warnings.AddWarning(services.WarningCategoryHealth,
			fmt.Sprintf("Model %s is unreachable after %d consecutive failed health checks", spec.ID, failures),
			fmt.Sprintf("last outcome: %s", sample.Outcome),
			spec.ID)
	}
}
