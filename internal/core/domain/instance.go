package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Instance State
// =============================================================================

// InstanceState is the lifecycle state of a container instance.
type InstanceState string

const (
	StateBuilding     InstanceState = "building"
	StateStarting     InstanceState = "starting"
	StateRunning      InstanceState = "running"
	StateExitedClean  InstanceState = "exited-clean"
	StateExitedFailed InstanceState = "exited-failed"
	StateRestarting   InstanceState = "restarting"
	StateStopped      InstanceState = "stopped"
)

// Terminal reports whether no further transition is possible.
func (s InstanceState) Terminal() bool {
	return s == StateStopped
}

// validTransitions defines the allowed state transitions.
var validTransitions = map[InstanceState][]InstanceState{
	StateBuilding:     {StateStarting, StateStopped},
	StateStarting:     {StateRunning, StateExitedClean, StateExitedFailed, StateStopped},
	StateRunning:      {StateExitedClean, StateExitedFailed, StateStopped},
	StateExitedClean:  {StateRestarting, StateStopped},
	StateExitedFailed: {StateRestarting, StateStopped},
	StateRestarting:   {StateStarting, StateStopped},
	StateStopped:      {}, // Terminal state
}

// ValidateTransition checks if a state transition is valid.
func ValidateTransition(from, to InstanceState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// =============================================================================
// Exit Handling
// =============================================================================

// ExitStatus describes how an instance's process ended.
type ExitStatus struct {
	Code int `json:"code"`
	// OperatorStopped is set when the exit was caused by a deliberate stop.
	// The signal usually yields a non-zero code, which must not count as a crash.
	OperatorStopped bool `json:"operator_stopped"`
}

// Clean reports whether the process exited with status zero.
func (e ExitStatus) Clean() bool {
	return e.Code == 0
}

// ExitState maps an exit status to exited-clean or exited-failed.
func ExitState(e ExitStatus) InstanceState {
	if e.Clean() {
		return StateExitedClean
	}
	return StateExitedFailed
}

// ShouldRestart applies the restart policy to an exit.
//
//   - never:      no restart
//   - on-failure: restart only on non-zero exit
//   - always:     restart on any exit
//
// A deliberate operator stop is never restarted.
func ShouldRestart(policy RestartPolicy, e ExitStatus) bool {
	if e.OperatorStopped {
		return false
	}
	switch policy {
	case RestartAlways:
		return true
	case RestartOnFailure:
		return !e.Clean()
	default:
		return false
	}
}

// NextAfterExit returns the state that follows the exit state.
func NextAfterExit(policy RestartPolicy, e ExitStatus) InstanceState {
	if ShouldRestart(policy, e) {
		return StateRestarting
	}
	return StateStopped
}

// =============================================================================
// Container Instance
// =============================================================================

// ContainerInstance is one launch of a profile. The supervisor owns the actual
// process; this record mirrors what it reports.
type ContainerInstance struct {
	ID            string        `json:"id"`
	Profile       string        `json:"profile"`
	BuildTarget   BuildTarget   `json:"build_target"`
	Image         string        `json:"image"`
	ContainerID   string        `json:"container_id,omitempty"`
	RestartPolicy RestartPolicy `json:"restart_policy"`
	MaxRestarts   int           `json:"max_restarts,omitempty"`
	State         InstanceState `json:"state"`
	ExitCode      *int          `json:"exit_code,omitempty"`
	RestartCount  int           `json:"restart_count"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	StoppedAt     *time.Time    `json:"stopped_at,omitempty"`
}

// NewContainerInstance creates an instance in the building state.
func NewContainerInstance(p DeploymentProfile) *ContainerInstance {
	now := time.Now().UTC()
	return &ContainerInstance{
		ID:            uuid.New().String(),
		Profile:       p.Name,
		BuildTarget:   p.BuildTarget,
		Image:         p.ImageReference,
		RestartPolicy: p.RestartPolicy,
		MaxRestarts:   p.MaxRestarts,
		State:         StateBuilding,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Transition moves the instance to a new state.
func (i *ContainerInstance) Transition(to InstanceState) error {
	if err := ValidateTransition(i.State, to); err != nil {
		return err
	}

	now := time.Now().UTC()
	if to == StateStarting && i.State == StateRestarting {
		i.RestartCount++
	}
	i.State = to
	i.UpdatedAt = now

	switch to {
	case StateStarting:
		i.ErrorMessage = ""
	case StateRunning:
		i.StartedAt = &now
	case StateStopped:
		i.StoppedAt = &now
	}
	return nil
}

// Exit records a process exit and applies the restart policy. It returns the
// states passed through, e.g. [exited-failed restarting].
func (i *ContainerInstance) Exit(e ExitStatus) ([]InstanceState, error) {
	exited := ExitState(e)
	if err := i.Transition(exited); err != nil {
		return nil, err
	}
	code := e.Code
	i.ExitCode = &code

	next := NextAfterExit(i.RestartPolicy, e)
	if next == StateRestarting && i.RetriesExhausted() {
		next = StateStopped
	}
	if err := i.Transition(next); err != nil {
		return []InstanceState{exited}, err
	}
	return []InstanceState{exited, next}, nil
}

// RetriesExhausted reports whether an on-failure retry limit has been used up.
// The supervisor stops restarting once it has restarted MaxRestarts times.
func (i *ContainerInstance) RetriesExhausted() bool {
	return i.RestartPolicy == RestartOnFailure && i.MaxRestarts > 0 && i.RestartCount >= i.MaxRestarts
}

// Stop records an operator-initiated stop.
func (i *ContainerInstance) Stop() error {
	if i.State.Terminal() {
		return nil
	}
	return i.Transition(StateStopped)
}

// Fail stops the instance with an error message, e.g. when the build failed.
func (i *ContainerInstance) Fail(message string) error {
	if err := i.Stop(); err != nil {
		return err
	}
	i.ErrorMessage = message
	return nil
}

// InstanceEvent is one recorded state change of an instance.
type InstanceEvent struct {
	ID         int64         `json:"id"`
	InstanceID string        `json:"instance_id"`
	From       InstanceState `json:"from,omitempty"`
	To         InstanceState `json:"to"`
	ExitCode   *int          `json:"exit_code,omitempty"`
	Message    string        `json:"message,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
