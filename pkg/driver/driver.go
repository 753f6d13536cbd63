// Package driver abstracts the container runtime behind a narrow
// inspect/start/stop interface. Commands declared in the catalog are
// executed verbatim as argv arrays; nothing is passed through a shell.
package driver

import (
	"context"

	"github.com/inferlab/modelmgr/pkg/config"
)

// ContainerInfo holds the OS-level view of one named container.
type ContainerInfo struct {
	Present    bool   `json:"present"`
	Running    bool   `json:"running"`
	StatusLine string `json:"status_line,omitempty"`
	Ports      string `json:"ports,omitempty"`
}

// ContainerDriver performs container runtime operations for one model
// deployment. Implementations never retry; the lifecycle engine decides
// what a failure means.
type ContainerDriver interface {
	// Inspect reports whether the named container exists and runs.
	// A missing container is not an error.
	Inspect(ctx context.Context, containerName string) (ContainerInfo, error)

	// Start brings the model's container into existence by executing the
	// spec's start command. It does not wait for endpoint readiness. A
	// container already running under the same name is success; a stopped
	// leftover with the same name is removed first.
	Start(ctx context.Context, spec *config.ModelSpec) error

	// Stop executes the spec's stop command, or stops the container by
	// name when no stop command is declared.
	Stop(ctx context.Context, spec *config.ModelSpec) error
}
