package docker

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Container errors
	ErrContainerNotFound       = errors.New("container not found")
	ErrContainerAlreadyExists  = errors.New("container already exists")
	ErrContainerNotRunning     = errors.New("container is not running")
	ErrContainerAlreadyRunning = errors.New("container is already running")

	// Image errors
	ErrImageNotFound    = errors.New("image not found")
	ErrImageBuildFailed = errors.New("image build failed")

	// Connection errors
	ErrConnectionFailed = errors.New("docker connection failed")

	// Orchestration errors
	ErrLaunchInProgress = errors.New("launch already in progress")
	ErrNotRunning       = errors.New("profile has no live instance")
)

// DockerError wraps errors with additional context.
type DockerError struct {
	Op      string // Operation that failed
	Entity  string // Entity type (container, image)
	ID      string // Entity ID if applicable
	Message string
	Err     error
}

func (e *DockerError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// NewDockerError creates a new DockerError.
func NewDockerError(op, entity, id, message string, err error) *DockerError {
	return &DockerError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// External Collaborator Errors
// =============================================================================

// ExternalBuildError reports a failure of the image builder. The cause is
// carried unchanged.
type ExternalBuildError struct {
	Profile string
	Err     error
}

func (e *ExternalBuildError) Error() string {
	return fmt.Sprintf("build profile %q: %v", e.Profile, e.Err)
}

func (e *ExternalBuildError) Unwrap() error {
	return e.Err
}

// ExternalSupervisionError reports a failure of the container supervisor.
// The cause is carried unchanged.
type ExternalSupervisionError struct {
	Profile string
	Op      string
	Err     error
}

func (e *ExternalSupervisionError) Error() string {
	return fmt.Sprintf("%s profile %q: %v", e.Op, e.Profile, e.Err)
}

func (e *ExternalSupervisionError) Unwrap() error {
	return e.Err
}
