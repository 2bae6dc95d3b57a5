// Package domain holds the value types shared by the launcher core and shell:
// deployment profiles, runtime parameters and the container instance lifecycle.
package domain

import "errors"

var (
	ErrUnknownRestartPolicy = errors.New("unknown restart policy")
	ErrInvalidTransition    = errors.New("invalid instance state transition")
)
