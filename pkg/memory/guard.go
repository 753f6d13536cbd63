// Package memory implements the advisory admission check performed
// before a model start. The guard reads host-available memory at call
// time and keeps no state of its own: memory held by already-running
// models is observed through the host metric.
package memory

import (
	"context"
	"log/slog"
	"math"

	"github.com/shirou/gopsutil/v4/mem"
)

const (
	// DefaultMinFreeGB is the free-memory floor required when a model
	// declares no estimate.
	DefaultMinFreeGB = 8.0

	// DefaultSafetyMarginGB is added on top of a declared estimate.
	DefaultSafetyMarginGB = 2.0

	bytesPerGB = 1 << 30
)

// vmFunc reads host memory stats. Extracted so tests can script the
// host metric.
type vmFunc func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// Decision is the outcome of one admission check. RequiredGB is the
// model's declared estimate, or the free-memory floor when the estimate
// is unknown. Forced is set when only the force flag turned a rejection
// into an admission.
type Decision struct {
	OK          bool
	Forced      bool
	AvailableGB float64
	RequiredGB  float64
}

// Guard admits or rejects start requests based on host-available
// memory. The check is deliberately race-tolerant: two concurrent
// admits may both pass, and correctness never depends on the answer.
type Guard struct {
	minFreeGB      float64
	safetyMarginGB float64
	readVM         vmFunc
}

// NewGuard creates a guard with the given thresholds. Non-positive
// values fall back to the defaults.
func NewGuard(minFreeGB, safetyMarginGB float64) *Guard {
	if minFreeGB <= 0 {
		minFreeGB = DefaultMinFreeGB
	}
	if safetyMarginGB <= 0 {
		safetyMarginGB = DefaultSafetyMarginGB
	}
	return &Guard{
		minFreeGB:      minFreeGB,
		safetyMarginGB: safetyMarginGB,
		readVM:         mem.VirtualMemoryWithContext,
	}
}

// Admit decides whether a start needing requiredGB may proceed.
// requiredGB <= 0 means the model declares no estimate. force turns a
// rejection into an admission; the override is logged, the caller
// assumes the risk. An unreadable host metric admits: the guard is
// advisory and must not be able to wedge starts.
func (g *Guard) Admit(ctx context.Context, requiredGB float64, force bool) Decision {
	d := Decision{RequiredGB: requiredGB}

	vm, err := g.readVM(ctx)
	if err != nil {
		slog.Warn("Host memory metric unavailable, admitting start", "error", err)
		d.OK = true
		return d
	}
	d.AvailableGB = roundGB(float64(vm.Available) / bytesPerGB)

	need := requiredGB + g.safetyMarginGB
	if requiredGB <= 0 {
		d.RequiredGB = g.minFreeGB
		need = g.minFreeGB
	}

	if d.AvailableGB >= need {
		d.OK = true
		return d
	}
	if force {
		slog.Warn("Memory admission rejected but overridden by force",
			"available_gb", d.AvailableGB,
			"required_gb", d.RequiredGB)
		d.OK = true
		d.Forced = true
		return d
	}

	slog.Info("Memory admission rejected",
		"available_gb", d.AvailableGB,
		"required_gb", d.RequiredGB)
	return d
}

// Snapshot reports current host memory for the system endpoint.
type Snapshot struct {
	TotalGB     float64 `json:"total_gb"`
	AvailableGB float64 `json:"available_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// ReadSnapshot returns the current host memory figures.
func (g *Guard) ReadSnapshot(ctx context.Context) (Snapshot, error) {
	vm, err := g.readVM(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		TotalGB:     roundGB(float64(vm.Total) / bytesPerGB),
		AvailableGB: roundGB(float64(vm.Available) / bytesPerGB),
		UsedPercent: math.Round(vm.UsedPercent*10) / 10,
	}, nil
}

func roundGB(v float64) float64 {
	return math.Round(v*100) / 100
}
