package deployment

import "github.com/colav/quyca-launcher/internal/core/domain"

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan represents a planned container configuration.
// This is the pure output of planning, ready for the shell to execute.
type ContainerPlan struct {
	Name          string
	Image         string
	Command       []string
	WorkingDir    string
	Env           []string
	Labels        map[string]string
	ExposedPorts  []int
	Mounts        []MountPlan
	NetworkMode   string
	RestartPolicy RestartPolicyPlan
}

// MountPlan represents a planned bind mount.
type MountPlan struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RestartPolicyPlan represents a Docker restart policy.
type RestartPolicyPlan struct {
	Name              string
	MaximumRetryCount int
}

// ImagePlan describes one image build.
type ImagePlan struct {
	Context    string
	Dockerfile string
	Target     string
	Tags       []string
	Labels     map[string]string
}

// =============================================================================
// Builder Parameter Types
// =============================================================================

// BuildContainerPlanParams contains all inputs for building a container plan.
type BuildContainerPlanParams struct {
	InstanceID  string
	BuildTarget domain.BuildTarget
	Runtime     domain.RuntimeParameters
	// Variables are substituted into ${VAR} placeholders of Runtime.Env values.
	Variables map[string]string
}
