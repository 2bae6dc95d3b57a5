// Package docker drives the external image builder and container supervisor
// through the Docker Engine API.
package docker

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// Build Types
// =============================================================================

// BuildSpec defines one image build.
type BuildSpec struct {
	ContextDir string // Local directory streamed to the daemon as the build context
	Dockerfile string // Relative to ContextDir
	Target     string // Multi-stage target, e.g. "development"
	Tags       []string
	Labels     map[string]string
}

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name          string
	Image         string
	Command       []string
	Env           []string // NAME=value
	Labels        map[string]string
	ExposedPorts  []int
	Mounts        []VolumeMount // Bind mounts, applied in order
	NetworkMode   string        // "host", "bridge" or "none"
	WorkingDir    string
	RestartPolicy RestartPolicy
}

// VolumeMount defines a bind mount.
type VolumeMount struct {
	Source   string // Host path
	Target   string // Container path
	ReadOnly bool
}

// RestartPolicy defines the container restart policy.
type RestartPolicy struct {
	Name              string // "no", "always", "on-failure"
	MaximumRetryCount int
}

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID           string
	Name         string
	Image        string
	Status       ContainerStatus
	NetworkMode  string
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Labels       map[string]string
	ExitCode     int
	RestartCount int
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force bool
}

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // Include stopped containers
	Filters map[string]string // e.g., {"label": "org.colav.quyca.managed=true"}
}

// LogOptions defines options for container logs.
type LogOptions struct {
	Follow     bool
	Tail       string // "all" or number
	Since      time.Time
	Timestamps bool
}

// WaitResult is the outcome of waiting for a container to stop running.
type WaitResult struct {
	ExitCode int
	Error    string
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the Docker client interface.
type Client interface {
	// Image operations
	BuildImage(ctx context.Context, spec BuildSpec, progress io.Writer) error
	ImageExists(ctx context.Context, image string) (bool, error)

	// Container operations
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	WaitContainer(ctx context.Context, containerID string) (WaitResult, error)
	ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error)

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}
