package profile

import (
	"fmt"
	"path"
	"sort"

	"github.com/colav/quyca-launcher/internal/core/domain"
)

// =============================================================================
// Profile Set
// =============================================================================

// Set is an immutable, validated collection of deployment profiles keyed by
// name. It is safe for concurrent use: nothing mutates it after NewSet.
type Set struct {
	profiles []domain.DeploymentProfile
	byName   map[string]int
}

// NewSet validates the profiles and returns a set. Declaration order is kept.
func NewSet(profiles ...domain.DeploymentProfile) (*Set, error) {
	if err := Validate(profiles); err != nil {
		return nil, err
	}

	s := &Set{
		profiles: make([]domain.DeploymentProfile, 0, len(profiles)),
		byName:   make(map[string]int, len(profiles)),
	}
	for i, p := range profiles {
		s.profiles = append(s.profiles, p.Clone())
		s.byName[p.Name] = i
	}
	return s, nil
}

// Resolve looks up a profile by exact name. There is no fallback profile.
func (s *Set) Resolve(name string) (domain.DeploymentProfile, error) {
	i, ok := s.byName[name]
	if !ok {
		return domain.DeploymentProfile{}, &UnknownProfileError{Name: name, Known: s.Names()}
	}
	return s.profiles[i].Clone(), nil
}

// Names returns the profile names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for _, p := range s.profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Profiles returns copies of all profiles in declaration order.
func (s *Set) Profiles() []domain.DeploymentProfile {
	out := make([]domain.DeploymentProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	return out
}

// Len returns the number of profiles.
func (s *Set) Len() int {
	return len(s.profiles)
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the whole set and returns the first violation, tagged with
// the offending profile name. Profiles are checked in order; within a profile
// the checks run as: name, uniqueness, entrypoint, build target, mounts,
// network mode, restart policy, working directory.
func Validate(profiles []domain.DeploymentProfile) error {
	if len(profiles) == 0 {
		return newValidationError("", "", ErrEmptyProfileSet)
	}

	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if p.Name == "" {
			return newValidationError(p.Name, "name", ErrEmptyName)
		}
		if seen[p.Name] {
			return newValidationError(p.Name, "name", ErrDuplicateName)
		}
		seen[p.Name] = true

		if len(p.EntrypointCommand) == 0 {
			return newValidationError(p.Name, "entrypoint_command", ErrEmptyEntrypoint)
		}
		if p.BuildTarget == "" {
			return newValidationError(p.Name, "build_target", ErrEmptyBuildTarget)
		}
		for i, m := range p.VolumeMounts {
			if m.HostPath == "" || m.ContainerPath == "" {
				return newValidationError(p.Name, fmt.Sprintf("volume_mounts[%d]", i), ErrIncompleteMount)
			}
		}
		if !p.NetworkMode.Valid() {
			return newValidationError(p.Name, "network_mode", fmt.Errorf("%w: %q", ErrInvalidNetworkMode, p.NetworkMode))
		}
		if !p.RestartPolicy.Valid() {
			return newValidationError(p.Name, "restart_policy", fmt.Errorf("%w: %q", ErrInvalidRestart, p.RestartPolicy))
		}
		if p.MaxRestarts < 0 || (p.MaxRestarts > 0 && p.RestartPolicy != domain.RestartOnFailure) {
			return newValidationError(p.Name, "max_restarts", fmt.Errorf("%w: limit %d with %s", ErrInvalidRestart, p.MaxRestarts, p.RestartPolicy))
		}
		if p.WorkingDirectory != "" && !path.IsAbs(p.WorkingDirectory) {
			return newValidationError(p.Name, "working_directory", ErrRelativeWorkingDir)
		}
	}
	return nil
}

// =============================================================================
// Runtime Projection
// =============================================================================

// DescribeRuntimeParameters projects a profile onto the parameters a container
// supervisor needs. It is pure: the same profile always yields an equal value,
// and the result shares no memory with the input.
func DescribeRuntimeParameters(p domain.DeploymentProfile) domain.RuntimeParameters {
	mounts := make([]domain.VolumeMount, len(p.VolumeMounts))
	copy(mounts, p.VolumeMounts)

	command := make([]string, len(p.EntrypointCommand))
	copy(command, p.EntrypointCommand)

	env := p.Env()
	if env == nil {
		env = []string{}
	}

	ports := make([]int, len(p.Ports))
	copy(ports, p.Ports)
	sort.Ints(ports)

	return domain.RuntimeParameters{
		Profile:          p.Name,
		Image:            p.ImageReference,
		NetworkMode:      p.NetworkMode,
		RestartPolicy:    p.RestartPolicy,
		DockerRestart:    p.RestartPolicy.DockerName(),
		MaxRestarts:      p.MaxRestarts,
		Mounts:           mounts,
		WorkingDirectory: p.WorkingDirectory,
		Command:          command,
		Env:              env,
		Ports:            ports,
	}
}
