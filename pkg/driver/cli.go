package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/inferlab/modelmgr/pkg/config"
)

// runFunc executes one command and returns trimmed stdout. Extracted so
// tests can substitute a fake runner for the real CLI.
type runFunc func(ctx context.Context, name string, args ...string) (string, error)

// CLIDriver implements ContainerDriver by shelling out to a container
// engine binary (docker, podman). Every operation gets its own deadline.
type CLIDriver struct {
	engineBin string
	timeout   time.Duration
	run       runFunc
}

// NewCLIDriver creates a driver for the given engine binary. The binary
// is resolved through PATH once at construction.
func NewCLIDriver(engine string, timeout time.Duration) *CLIDriver {
	bin := engine
	if p, err := exec.LookPath(engine); err == nil {
		bin = p
	}
	d := &CLIDriver{engineBin: bin, timeout: timeout}
	d.run = d.runCommand
	return d
}

// runCommand executes a command with captured output. The error message
// carries trimmed stderr so failure reasons survive into runtime state.
func (d *CLIDriver) runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%s %s: %s: %w", name, strings.Join(args, " "), msg, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// engineInspection is the subset of `<engine> inspect` JSON we read.
// Shared by docker and podman.
type engineInspection struct {
	State struct {
		Status  string `json:"Status"`
		Running bool   `json:"Running"`
	} `json:"State"`
	NetworkSettings struct {
		Ports map[string][]struct {
			HostIP   string `json:"HostIp"`
			HostPort string `json:"HostPort"`
		} `json:"Ports"`
	} `json:"NetworkSettings"`
}

// Inspect implements ContainerDriver.
func (d *CLIDriver) Inspect(ctx context.Context, containerName string) (ContainerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.run(ctx, d.engineBin, "inspect", containerName)
	if err != nil {
		if isNotFoundOutput(err.Error()) {
			return ContainerInfo{Present: false}, nil
		}
		return ContainerInfo{}, err
	}

	var inspections []engineInspection
	if err := json.Unmarshal([]byte(out), &inspections); err != nil {
		return ContainerInfo{}, fmt.Errorf("parse inspect output for %s: %w", containerName, err)
	}
	if len(inspections) == 0 {
		return ContainerInfo{Present: false}, nil
	}

	insp := inspections[0]
	return ContainerInfo{
		Present:    true,
		Running:    insp.State.Running,
		StatusLine: insp.State.Status,
		Ports:      formatPorts(insp),
	}, nil
}

// Start implements ContainerDriver.
func (d *CLIDriver) Start(ctx context.Context, spec *config.ModelSpec) error {
	info, err := d.Inspect(ctx, spec.ContainerName)
	if err != nil {
		return fmt.Errorf("inspecting %s before start: %w", spec.ContainerName, err)
	}
	if info.Present && info.Running {
		slog.Info("Container already running, start is a no-op",
			"container", spec.ContainerName)
		return nil
	}
	if info.Present {
		// Stale stopped container blocks the name; remove it first
		rmCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if _, err := d.run(rmCtx, d.engineBin, "rm", spec.ContainerName); err != nil {
			return fmt.Errorf("removing stale container %s: %w", spec.ContainerName, err)
		}
		slog.Info("Removed stale container", "container", spec.ContainerName)
	}

	startCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if _, err := d.run(startCtx, spec.StartCommand[0], spec.StartCommand[1:]...); err != nil {
		return fmt.Errorf("start command for %s: %w", spec.ID, err)
	}
	return nil
}

// Stop implements ContainerDriver.
func (d *CLIDriver) Stop(ctx context.Context, spec *config.ModelSpec) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if len(spec.StopCommand) > 0 {
		if _, err := d.run(ctx, spec.StopCommand[0], spec.StopCommand[1:]...); err != nil {
			return fmt.Errorf("stop command for %s: %w", spec.ID, err)
		}
		return nil
	}

	if _, err := d.run(ctx, d.engineBin, "stop", spec.ContainerName); err != nil {
		return fmt.Errorf("stopping container %s: %w", spec.ContainerName, err)
	}
	return nil
}

// isNotFoundOutput matches the docker and podman messages for a missing
// container so Inspect can report absence instead of failing.
func isNotFoundOutput(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "no such object") ||
		strings.Contains(lower, "no such container") ||
		strings.Contains(lower, "does not exist")
}

// formatPorts renders the inspect port map as a compact single line,
// e.g. "8100/tcp->0.0.0.0:8100".
func formatPorts(insp engineInspection) string {
	if len(insp.NetworkSettings.Ports) == 0 {
		return ""
	}
	var parts []string
	for containerPort, bindings := range insp.NetworkSettings.Ports {
		for _, b := range bindings {
			parts = append(parts, fmt.Sprintf("%s->%s:%s", containerPort, b.HostIP, b.HostPort))
		}
	}
	// Map order is random; sort for stable output
	slices.Sort(parts)
	return strings.Join(parts, ", ")
}
