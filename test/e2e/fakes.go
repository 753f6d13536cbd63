package e2e

import (
	"context"
	"sync"
	"time"

	"github.com/inferlab/modelmgr/pkg/config"
	"github.com/inferlab/modelmgr/pkg/driver"
	"github.com/inferlab/modelmgr/pkg/memory"
	"github.com/inferlab/modelmgr/pkg/models"
)

// --- FakeDriver ---

// DriverCall records one driver operation.
type DriverCall struct {
	Op        string // "inspect", "start", "stop"
	Container string
}

// FakeDriver is an in-memory ContainerDriver. It tracks which
// containers "run" and records every call for assertions.
type FakeDriver struct {
	mu       sync.Mutex
	running  map[string]bool
	startErr map[string]error // container name → scripted start failure
	stopErr  map[string]error
	calls    []DriverCall
}

// NewFakeDriver creates a driver with no containers running.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		running:  make(map[string]bool),
		startErr: make(map[string]error),
		stopErr:  make(map[string]error),
	}
}

// FailStart scripts the next Start calls for a container to fail.
func (d *FakeDriver) FailStart(container string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startErr[container] = err
}

// FailStop scripts the next Stop calls for a container to fail.
func (d *FakeDriver) FailStop(container string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopErr[container] = err
}

// SetRunning marks a container as already running, as if a previous
// manager instance had started it.
func (d *FakeDriver) SetRunning(container string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[container] = true
}

// CallCount returns how many times op was invoked for the container.
func (d *FakeDriver) CallCount(op, container string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Op == op && c.Container == container {
			n++
		}
	}
	return n
}

func (d *FakeDriver) record(op, container string) {
	d.calls = append(d.calls, DriverCall{Op: op, Container: container})
}

// Inspect implements driver.ContainerDriver.
func (d *FakeDriver) Inspect(_ context.Context, containerName string) (driver.ContainerInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("inspect", containerName)
	running, present := d.running[containerName]
	return driver.ContainerInfo{Present: present, Running: running}, nil
}

// Start implements driver.ContainerDriver.
func (d *FakeDriver) Start(_ context.Context, spec *config.ModelSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("start", spec.ContainerName)
	if err := d.startErr[spec.ContainerName]; err != nil {
		return err
	}
	d.running[spec.ContainerName] = true
	return nil
}

// Stop implements driver.ContainerDriver.
func (d *FakeDriver) Stop(_ context.Context, spec *config.ModelSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("stop", spec.ContainerName)
	if err := d.stopErr[spec.ContainerName]; err != nil {
		return err
	}
	d.running[spec.ContainerName] = false
	return nil
}

// --- ScriptedProber ---

// ScriptedProber produces a deterministic probe sequence per port. The
// call counter is per port, so multi-model tests stay independent.
type ScriptedProber struct {
	mu     sync.Mutex
	script func(call int) models.HealthSample
	calls  map[int]int
}

// NewScriptedProber creates a prober driven by script, which receives
// the 1-based per-port call number.
func NewScriptedProber(script func(call int) models.HealthSample) *ScriptedProber {
	return &ScriptedProber{script: script, calls: make(map[int]int)}
}

// HealthyAfter returns a prober that fails the first n probes with a
// transport error, then stays healthy.
func HealthyAfter(n int) *ScriptedProber {
	return NewScriptedProber(func(call int) models.HealthSample {
		if call <= n {
			return unhealthySample()
		}
		return healthySample(0)
	})
}

// NeverHealthy returns a prober whose probes always fail.
func NeverHealthy() *ScriptedProber {
	return NewScriptedProber(func(int) models.HealthSample {
		return unhealthySample()
	})
}

// Probe implements probe.Prober.
func (p *ScriptedProber) Probe(_ context.Context, _ string, port int) models.HealthSample {
	p.mu.Lock()
	p.calls[port]++
	n := p.calls[port]
	p.mu.Unlock()
	return p.script(n)
}

// Calls returns how many probes were issued against the port.
func (p *ScriptedProber) Calls(port int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[port]
}

func healthySample(maxModelLen int) models.HealthSample {
	return models.HealthSample{
		When:        time.Now(),
		Outcome:     models.OutcomeOK,
		RTT:         time.Millisecond,
		MaxModelLen: maxModelLen,
	}
}

func unhealthySample() models.HealthSample {
	return models.HealthSample{
		When:    time.Now(),
		Outcome: models.OutcomeTransportError,
		RTT:     time.Millisecond,
	}
}

// --- StaticMemory ---

// StaticMemory is a deterministic admission fake: a fixed host snapshot
// with the real guard's force semantics.
type StaticMemory struct {
	TotalGB     float64
	AvailableGB float64
}

// Admit implements lifecycle.MemoryAdmitter.
func (m *StaticMemory) Admit(_ context.Context, requiredGB float64, force bool) memory.Decision {
	d := memory.Decision{
		OK:          requiredGB <= m.AvailableGB,
		AvailableGB: m.AvailableGB,
		RequiredGB:  requiredGB,
	}
	if !d.OK && force {
		d.OK = true
		d.Forced = true
	}
	return d
}

// ReadSnapshot implements the api memory reader.
func (m *StaticMemory) ReadSnapshot(context.Context) (memory.Snapshot, error) {
	used := 0.0
	if m.TotalGB > 0 {
		used = (m.TotalGB - m.AvailableGB) / m.TotalGB * 100
	}
	return memory.Snapshot{
		TotalGB:     m.TotalGB,
		AvailableGB: m.AvailableGB,
		UsedPercent: used,
	}, nil
}
