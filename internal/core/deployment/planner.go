package deployment

import (
	"time"

	"github.com/colav/quyca-launcher/internal/core/domain"
)

// =============================================================================
// Launch Planning
// =============================================================================

// UpPath is the result of planning an `up` for a profile.
type UpPath struct {
	// Valid indicates whether the launch can proceed.
	Valid bool

	// Replace is set when the latest instance must be stopped first.
	Replace bool

	// Interrupted is set when the latest instance was left mid-launch by a
	// launcher that is gone. It is recorded as failed before replacing it.
	Interrupted bool

	// ErrorReason contains the reason why the launch is not allowed.
	ErrorReason string
}

// DetermineUpPath decides what `up` does given the latest recorded instance of
// the profile (nil when there is none).
//
//   - none, stopped: launch a new instance
//   - running, exited, restarting: stop the live instance, then launch
//   - building, starting: refuse while another launch is in progress; a record
//     untouched for longer than staleAfter is treated as interrupted
func DetermineUpPath(latest *domain.ContainerInstance, now time.Time, staleAfter time.Duration) UpPath {
	if latest == nil {
		return UpPath{Valid: true}
	}

	switch latest.State {
	case domain.StateStopped:
		return UpPath{Valid: true}

	case domain.StateRunning, domain.StateExitedClean, domain.StateExitedFailed, domain.StateRestarting:
		return UpPath{Valid: true, Replace: true}

	case domain.StateBuilding, domain.StateStarting:
		if staleAfter > 0 && now.Sub(latest.UpdatedAt) > staleAfter {
			return UpPath{Valid: true, Replace: true, Interrupted: true}
		}
		if latest.State == domain.StateBuilding {
			return UpPath{ErrorReason: "instance is still building"}
		}
		return UpPath{ErrorReason: "instance is already starting"}

	default:
		return UpPath{ErrorReason: "cannot launch from state " + string(latest.State)}
	}
}

// CanStop checks if an instance can be stopped from its current state.
func CanStop(state domain.InstanceState) (bool, string) {
	if state.Terminal() {
		return false, "instance is already stopped"
	}
	return true, ""
}
