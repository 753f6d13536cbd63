package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferlab/modelmgr/pkg/models"
	"github.com/inferlab/modelmgr/pkg/services"
)

func startMonitor(t *testing.T, f *engineFixture, warnings *services.SystemWarningsService, threshold int) *Monitor {
	t.Helper()
	m := NewMonitor(f.engine, warnings, 30*time.Millisecond, threshold)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func TestMonitorFailsUnreachableModel(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.startAndWaitRunning(t, "llama-8b")
	f.prober.setSamples(unhealthySample())

	warnings := services.NewSystemWarningsService()
	startMonitor(t, f, warnings, 2)

	f.waitForState(t, "llama-8b", models.StateFailed)
	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, "health_check_failed", v.LastFailureReason)

	require.Equal(t, 1, warnings.Count())
	w := warnings.GetWarnings()[0]
	assert.Equal(t, services.WarningCategoryHealth, w.Category)
	assert.Equal(t, "llama-8b", w.ModelID)
	assert.Contains(t, w.Message, "2 consecutive")
}

func TestMonitorSingleFailureKeepsRunning(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.startAndWaitRunning(t, "llama-8b")
	// One failed sweep followed by recovery resets the counter
	f.prober.setSamples(unhealthySample(), healthySample())

	warnings := services.NewSystemWarningsService()
	startMonitor(t, f, warnings, 3)

	time.Sleep(250 * time.Millisecond)
	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, models.StateRunning, v.State)
	assert.Equal(t, 0, warnings.Count())
}

func TestMonitorRecoveryClearsWarning(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.startAndWaitRunning(t, "llama-8b")

	warnings := services.NewSystemWarningsService()
	warnings.AddWarning(services.WarningCategoryHealth, "stale warning", "", "llama-8b")
	startMonitor(t, f, warnings, 2)

	require.Eventually(t, func() bool {
		return warnings.Count() == 0
	}, 3*time.Second, 10*time.Millisecond, "healthy sweeps should clear the health warning")
}

func TestMonitorIgnoresNonRunningModels(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	// Model stays stopped
	startMonitor(t, f, nil, 2)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, f.prober.callCount())
	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, models.StateStopped, v.State)
}

func TestMonitorSkipsBusyModel(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.startAndWaitRunning(t, "llama-8b")
	f.prober.setSamples(unhealthySample())

	rt, err := f.engine.runtime("llama-8b")
	require.NoError(t, err)
	rt.actionMu.Lock()

	startMonitor(t, f, nil, 2)
	base := f.prober.callCount()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, base, f.prober.callCount(), "a held action lock should skip the sweep, not block it")

	rt.actionMu.Unlock()
	f.waitForState(t, "llama-8b", models.StateFailed)
}

func TestMonitorNilWarnings(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.startAndWaitRunning(t, "llama-8b")
	f.prober.setSamples(unhealthySample())

	startMonitor(t, f, nil, 2)
	f.waitForState(t, "llama-8b", models.StateFailed)
}

func TestMonitorStopHaltsSweeps(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.startAndWaitRunning(t, "llama-8b")

	m := NewMonitor(f.engine, nil, 30*time.Millisecond, 2)
	m.Start()
	require.Eventually(t, func() bool {
		return f.prober.callCount() >= 2
	}, 3*time.Second, 10*time.Millisecond)
	m.Stop()

	base := f.prober.callCount()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, base, f.prober.callCount())

	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, models.StateRunning, v.State)
}

func TestNewMonitorDefaults(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	m := NewMonitor(f.engine, nil, 0, 0)

	assert.Equal(t, 15*time.Second, m.interval)
	assert.Equal(t, 2, m.threshold)
}
