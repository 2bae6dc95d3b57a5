// Package deployment provides pure functions for launching a deployment profile.
//
// This package turns resolved runtime parameters into the plans the imperative
// shell hands to the container builder and supervisor. All functions are pure
// (no I/O, no side effects).
//
// # Functions
//
//   - Naming: container names and ownership labels (ContainerName, Labels)
//   - Container: build container and image plans (BuildContainerPlan, BuildImagePlan)
//   - Ports: detect host-port clashes between host-network profiles (CheckConflicts, HostPortConflicts)
//   - Variables: expand ${VAR} placeholders in profile environment (SubstituteVariables)
//   - Planner: decide what `up` and `down` do for the latest instance (DetermineUpPath)
//
// # Usage
//
// The imperative shell (internal/shell/docker) plans a launch with these
// functions, then executes the plan via the Docker API.
//
//	params := profile.DescribeRuntimeParameters(p)
//	running := []deployment.RunningProfile{} // from FromLabels on live containers
//	if err := deployment.CheckConflicts(deployment.FromRuntime(params), running); err != nil {
//	    return err
//	}
//	plan := deployment.BuildContainerPlan(deployment.BuildContainerPlanParams{...})
package deployment
