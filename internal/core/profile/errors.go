// Package profile resolves deployment profiles by name and validates profile
// sets before they reach an image builder or container supervisor.
// This is part of the Functional Core - all functions are pure with no I/O.
package profile

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrUnknownProfile = errors.New("unknown profile")

	// Validation errors
	ErrEmptyName          = errors.New("profile name is empty")
	ErrDuplicateName      = errors.New("duplicate profile name")
	ErrEmptyEntrypoint    = errors.New("entrypoint command is empty")
	ErrEmptyBuildTarget   = errors.New("build target is empty")
	ErrIncompleteMount    = errors.New("volume mount needs both host and container path")
	ErrInvalidNetworkMode = errors.New("invalid network mode")
	ErrInvalidRestart     = errors.New("invalid restart policy")
	ErrRelativeWorkingDir = errors.New("working directory must be an absolute container path")
	ErrEmptyProfileSet    = errors.New("profile set is empty")
)

// UnknownProfileError is returned when a requested profile is not configured.
type UnknownProfileError struct {
	Name  string
	Known []string
}

func (e *UnknownProfileError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown profile %q", e.Name)
	}
	return fmt.Sprintf("unknown profile %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

func (e *UnknownProfileError) Unwrap() error {
	return ErrUnknownProfile
}

// ValidationError reports the first inconsistency found in a profile set.
type ValidationError struct {
	Profile string // offending profile name
	Field   string // e.g. "volume_mounts[1]"
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("profile %q %s: %v", e.Profile, e.Field, e.Err)
	}
	return fmt.Sprintf("profile %q: %v", e.Profile, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(profile, field string, err error) *ValidationError {
	return &ValidationError{Profile: profile, Field: field, Err: err}
}
