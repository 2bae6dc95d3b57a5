package deployment

import (
	"strings"

	"github.com/colav/quyca-launcher/internal/core/domain"
)

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlan builds a ContainerPlan from resolved runtime parameters.
//
// The function:
//   - Generates the container name using ContainerName()
//   - Keeps bind mounts in declaration order
//   - Substitutes ${VAR} placeholders in environment values
//   - Maps the restart policy to its Docker name
//   - Attaches ownership labels
//
// Example:
//
//	plan := BuildContainerPlan(BuildContainerPlanParams{
//	    InstanceID:  "3f1c...",
//	    BuildTarget: domain.BuildTargetDevelopment,
//	    Runtime:     profile.DescribeRuntimeParameters(p),
//	})
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	rt := params.Runtime

	plan := ContainerPlan{
		Name:        ContainerName(rt.Profile),
		Image:       rt.Image,
		Command:     append([]string(nil), rt.Command...),
		WorkingDir:  rt.WorkingDirectory,
		Labels:      Labels(rt.Profile, params.InstanceID, string(params.BuildTarget)),
		NetworkMode: string(rt.NetworkMode),
		RestartPolicy: RestartPolicyPlan{
			Name:              rt.RestartPolicy.DockerName(),
			MaximumRetryCount: rt.MaxRestarts,
		},
	}

	for _, kv := range rt.Env {
		name, value, _ := strings.Cut(kv, "=")
		plan.Env = append(plan.Env, name+"="+SubstituteVariables(value, params.Variables))
	}

	for _, m := range rt.Mounts {
		plan.Mounts = append(plan.Mounts, MountPlan{
			Source:   m.HostPath,
			Target:   m.ContainerPath,
			ReadOnly: m.ReadOnly,
		})
	}

	if len(rt.Ports) > 0 {
		plan.Labels[LabelPorts] = PortsLabel(rt.Ports)
	}

	// Host networking publishes nothing; the ports are only recorded.
	if !rt.NetworkMode.SharesHost() {
		plan.ExposedPorts = append(plan.ExposedPorts, rt.Ports...)
	}

	return plan
}

// BuildImagePlan builds the image build plan for a profile. The image is
// tagged with the profile's image reference.
func BuildImagePlan(p domain.DeploymentProfile) ImagePlan {
	dockerfile := p.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	buildContext := p.BuildContext
	if buildContext == "" {
		buildContext = "."
	}
	return ImagePlan{
		Context:    buildContext,
		Dockerfile: dockerfile,
		Target:     string(p.BuildTarget),
		Tags:       []string{p.ImageReference},
		Labels: map[string]string{
			LabelManaged: "true",
			LabelProfile: p.Name,
			LabelTarget:  string(p.BuildTarget),
		},
	}
}
