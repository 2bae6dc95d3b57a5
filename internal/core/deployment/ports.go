package deployment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/colav/quyca-launcher/internal/core/domain"
)

// =============================================================================
// Host Port Conflicts
// =============================================================================

// ErrPortConflict is returned when two host-network profiles would bind the
// same port on one host.
var ErrPortConflict = errors.New("host port conflict")

// RunningProfile is the port footprint of a profile instance on a host.
type RunningProfile struct {
	Profile     string
	NetworkMode domain.NetworkMode
	Ports       []int
	ContainerID string
}

// FromRuntime returns the port footprint of resolved runtime parameters.
func FromRuntime(rt domain.RuntimeParameters) RunningProfile {
	return RunningProfile{
		Profile:     rt.Profile,
		NetworkMode: rt.NetworkMode,
		Ports:       append([]int(nil), rt.Ports...),
	}
}

// FromLabels rebuilds the footprint of a managed container from its labels.
// It returns false for containers the launcher did not start.
func FromLabels(labels map[string]string, networkMode, containerID string) (RunningProfile, bool) {
	if labels[LabelManaged] != "true" || labels[LabelProfile] == "" {
		return RunningProfile{}, false
	}
	return RunningProfile{
		Profile:     labels[LabelProfile],
		NetworkMode: domain.NetworkMode(networkMode),
		Ports:       ParsePortsLabel(labels[LabelPorts]),
		ContainerID: containerID,
	}, true
}

// Conflict is one port claimed by both the candidate and a running profile.
type Conflict struct {
	Port        int
	Profile     string
	ContainerID string
}

// HostPortConflicts returns the ports a candidate would clash on. Only
// profiles that share the host network namespace can clash, and an instance
// of the same profile is about to be replaced rather than clashed with.
// The result is sorted by port, then profile.
func HostPortConflicts(candidate RunningProfile, running []RunningProfile) []Conflict {
	if !candidate.NetworkMode.SharesHost() || len(candidate.Ports) == 0 {
		return nil
	}

	wanted := make(map[int]bool, len(candidate.Ports))
	for _, p := range candidate.Ports {
		wanted[p] = true
	}

	var conflicts []Conflict
	for _, r := range running {
		if r.Profile == candidate.Profile || !r.NetworkMode.SharesHost() {
			continue
		}
		for _, p := range r.Ports {
			if wanted[p] {
				conflicts = append(conflicts, Conflict{Port: p, Profile: r.Profile, ContainerID: r.ContainerID})
			}
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Port != conflicts[j].Port {
			return conflicts[i].Port < conflicts[j].Port
		}
		return conflicts[i].Profile < conflicts[j].Profile
	})
	return conflicts
}

// ConflictError reports every clash found for a candidate profile.
type ConflictError struct {
	Profile   string
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("port %d held by %q", c.Port, c.Profile))
	}
	return fmt.Sprintf("profile %q: %s: %s", e.Profile, ErrPortConflict.Error(), strings.Join(parts, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrPortConflict
}

// CheckConflicts returns a *ConflictError when the candidate clashes with any
// running profile, nil otherwise.
func CheckConflicts(candidate RunningProfile, running []RunningProfile) error {
	conflicts := HostPortConflicts(candidate, running)
	if len(conflicts) == 0 {
		return nil
	}
	return &ConflictError{Profile: candidate.Profile, Conflicts: conflicts}
}
