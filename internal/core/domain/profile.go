package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Build Target
// =============================================================================

// BuildTarget names the stage of the image build that a profile compiles.
type BuildTarget string

const (
	BuildTargetDevelopment BuildTarget = "development"
	BuildTargetProduction  BuildTarget = "production"
)

// =============================================================================
// Network Mode
// =============================================================================

// NetworkMode controls how the container's network namespace is set up.
type NetworkMode string

const (
	// NetworkModeHost shares the host network namespace with the container.
	NetworkModeHost NetworkMode = "host"
	// NetworkModeBridge gives the container an isolated namespace on the default bridge.
	NetworkModeBridge NetworkMode = "bridge"
	// NetworkModeNone gives the container an isolated namespace with no interfaces.
	NetworkModeNone NetworkMode = "none"
)

// Valid reports whether m is a known network mode.
func (m NetworkMode) Valid() bool {
	switch m {
	case NetworkModeHost, NetworkModeBridge, NetworkModeNone:
		return true
	}
	return false
}

// SharesHost reports whether the container shares the host network namespace.
func (m NetworkMode) SharesHost() bool {
	return m == NetworkModeHost
}

// =============================================================================
// Restart Policy
// =============================================================================

// RestartPolicy is the supervisor rule for relaunching an exited instance.
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartAlways    RestartPolicy = "always"
)

// ParseRestartPolicy accepts both the compose spelling ("no") and "never".
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "no", "never":
		return RestartNever, nil
	case "on-failure":
		return RestartOnFailure, nil
	case "always":
		return RestartAlways, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRestartPolicy, s)
}

// ParseRestartSpec parses a restart setting that may carry a retry limit, as
// in compose's "on-failure:3". A limit is only accepted with on-failure.
func ParseRestartSpec(s string) (RestartPolicy, int, error) {
	name, limit, hasLimit := strings.Cut(strings.TrimSpace(s), ":")
	policy, err := ParseRestartPolicy(name)
	if err != nil || !hasLimit {
		return policy, 0, err
	}
	if policy != RestartOnFailure {
		return "", 0, fmt.Errorf("%w: %q: a retry limit needs on-failure", ErrUnknownRestartPolicy, s)
	}
	n, err := strconv.Atoi(limit)
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("%w: %q: invalid retry limit", ErrUnknownRestartPolicy, s)
	}
	return policy, n, nil
}

// Valid reports whether p is a known restart policy.
func (p RestartPolicy) Valid() bool {
	switch p {
	case RestartNever, RestartOnFailure, RestartAlways:
		return true
	}
	return false
}

// DockerName returns the policy name the Docker engine expects.
func (p RestartPolicy) DockerName() string {
	if p == RestartNever {
		return "no"
	}
	return string(p)
}

// =============================================================================
// Volume Mount
// =============================================================================

// VolumeMount binds a host path into the container.
type VolumeMount struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	ReadOnly      bool   `json:"read_only,omitempty"`
}

// String renders the mount in compose short syntax.
func (v VolumeMount) String() string {
	if v.ReadOnly {
		return v.HostPath + ":" + v.ContainerPath + ":ro"
	}
	return v.HostPath + ":" + v.ContainerPath
}

// EnvVar is a single environment variable. Profiles keep them ordered so
// projections stay deterministic.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// =============================================================================
// Deployment Profile
// =============================================================================

// DeploymentProfile is a named, immutable bundle of build and runtime parameters.
// Never mutate a profile after handing it to a profile set; the set hands out
// copies made with Clone.
type DeploymentProfile struct {
	Name           string        `json:"name"`
	BuildTarget    BuildTarget   `json:"build_target"`
	ImageReference string        `json:"image_reference"`
	NetworkMode    NetworkMode   `json:"network_mode"`
	RestartPolicy  RestartPolicy `json:"restart_policy"`
	// MaxRestarts caps on-failure restarts. Zero means no limit.
	MaxRestarts       int           `json:"max_restarts,omitempty"`
	VolumeMounts      []VolumeMount `json:"volume_mounts,omitempty"`
	WorkingDirectory  string        `json:"working_directory,omitempty"`
	EntrypointCommand []string      `json:"entrypoint_command"`

	BuildContext string   `json:"build_context,omitempty"`
	Dockerfile   string   `json:"dockerfile,omitempty"`
	Environment  []EnvVar `json:"environment,omitempty"`
	EnvFile      string   `json:"env_file,omitempty"`
	Ports        []int    `json:"ports,omitempty"`
}

// Clone returns a deep copy of the profile.
func (p DeploymentProfile) Clone() DeploymentProfile {
	out := p
	out.VolumeMounts = append([]VolumeMount(nil), p.VolumeMounts...)
	out.EntrypointCommand = append([]string(nil), p.EntrypointCommand...)
	out.Environment = append([]EnvVar(nil), p.Environment...)
	out.Ports = append([]int(nil), p.Ports...)
	return out
}

// Env returns the profile environment as sorted NAME=value pairs.
// Later duplicates of a name win.
func (p DeploymentProfile) Env() []string {
	if len(p.Environment) == 0 {
		return nil
	}
	merged := make(map[string]string, len(p.Environment))
	for _, e := range p.Environment {
		merged[e.Name] = e.Value
	}
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name+"="+merged[name])
	}
	return out
}

// =============================================================================
// Runtime Parameters
// =============================================================================

// RuntimeParameters is the flat set of values a container supervisor needs to
// start an instance of a profile.
type RuntimeParameters struct {
	Profile          string        `json:"profile"`
	Image            string        `json:"image"`
	NetworkMode      NetworkMode   `json:"network_mode"`
	RestartPolicy    RestartPolicy `json:"restart_policy"`
	DockerRestart    string        `json:"docker_restart"`
	MaxRestarts      int           `json:"max_restarts,omitempty"`
	Mounts           []VolumeMount `json:"mounts"`
	WorkingDirectory string        `json:"working_directory"`
	Command          []string      `json:"command"`
	Env              []string      `json:"env"`
	Ports            []int         `json:"ports"`
}
