package api

import (
	"time"

	"github.com/colav/quyca-launcher/internal/core/domain"
)

// =============================================================================
// Response Types
// =============================================================================

// ProfileResponse describes one deployment profile and its latest instance.
type ProfileResponse struct {
	Name              string                `json:"name"`
	BuildTarget       string                `json:"build_target"`
	ImageReference    string                `json:"image_reference"`
	NetworkMode       string                `json:"network_mode"`
	RestartPolicy     string                `json:"restart_policy"`
	MaxRestarts       int                   `json:"max_restarts,omitempty"`
	VolumeMounts      []VolumeMountResponse `json:"volume_mounts"`
	WorkingDirectory  string                `json:"working_directory"`
	EntrypointCommand []string              `json:"entrypoint_command"`
	Ports             []int                 `json:"ports"`
	ImageBuilt        bool                  `json:"image_built"`
	Instance          *InstanceResponse     `json:"instance,omitempty"`
	Container         *ContainerResponse    `json:"container,omitempty"`
}

// VolumeMountResponse is one bind mount, in declaration order.
type VolumeMountResponse struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	ReadOnly      bool   `json:"read_only"`
}

// RuntimeResponse is the flat runtime projection handed to the supervisor.
type RuntimeResponse struct {
	Profile          string                `json:"profile"`
	Image            string                `json:"image"`
	NetworkMode      string                `json:"network_mode"`
	RestartPolicy    string                `json:"restart_policy"`
	DockerRestart    string                `json:"docker_restart"`
	MaxRestarts      int                   `json:"max_restarts,omitempty"`
	Mounts           []VolumeMountResponse `json:"mounts"`
	WorkingDirectory string                `json:"working_directory"`
	Command          []string              `json:"command"`
	Env              []string              `json:"env"`
	Ports            []int                 `json:"ports"`
}

// InstanceResponse is one launch of a profile.
type InstanceResponse struct {
	ID            string     `json:"id"`
	Profile       string     `json:"profile"`
	BuildTarget   string     `json:"build_target"`
	Image         string     `json:"image"`
	ContainerID   string     `json:"container_id,omitempty"`
	RestartPolicy string     `json:"restart_policy"`
	MaxRestarts   int        `json:"max_restarts,omitempty"`
	State         string     `json:"state"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	RestartCount  int        `json:"restart_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
}

// ContainerResponse is the supervisor's view of a profile's container.
type ContainerResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	NetworkMode  string `json:"network_mode"`
	ExitCode     int    `json:"exit_code"`
	RestartCount int    `json:"restart_count"`
}

// EventResponse is one recorded state change.
type EventResponse struct {
	ID        int64     `json:"id"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ListProfilesResponse is the response for listing profiles.
type ListProfilesResponse struct {
	Profiles []ProfileResponse `json:"profiles"`
}

// ListInstancesResponse is the response for listing instances.
type ListInstancesResponse struct {
	Instances []InstanceResponse `json:"instances"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// ListEventsResponse is the response for listing an instance's events.
type ListEventsResponse struct {
	InstanceID string          `json:"instance_id"`
	Events     []EventResponse `json:"events"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// =============================================================================
// Converters
// =============================================================================

func mountsToResponse(mounts []domain.VolumeMount) []VolumeMountResponse {
	out := make([]VolumeMountResponse, 0, len(mounts))
	for _, m := range mounts {
		out = append(out, VolumeMountResponse{HostPath: m.HostPath, ContainerPath: m.ContainerPath, ReadOnly: m.ReadOnly})
	}
	return out
}

func profileToResponse(p domain.DeploymentProfile) ProfileResponse {
	resp := ProfileResponse{
		Name:              p.Name,
		BuildTarget:       string(p.BuildTarget),
		ImageReference:    p.ImageReference,
		NetworkMode:       string(p.NetworkMode),
		RestartPolicy:     string(p.RestartPolicy),
		MaxRestarts:       p.MaxRestarts,
		VolumeMounts:      mountsToResponse(p.VolumeMounts),
		WorkingDirectory:  p.WorkingDirectory,
		EntrypointCommand: p.EntrypointCommand,
		Ports:             p.Ports,
	}
	if resp.Ports == nil {
		resp.Ports = []int{}
	}
	return resp
}

func runtimeToResponse(rt domain.RuntimeParameters) RuntimeResponse {
	resp := RuntimeResponse{
		Profile:          rt.Profile,
		Image:            rt.Image,
		NetworkMode:      string(rt.NetworkMode),
		RestartPolicy:    string(rt.RestartPolicy),
		DockerRestart:    rt.DockerRestart,
		MaxRestarts:      rt.MaxRestarts,
		Mounts:           mountsToResponse(rt.Mounts),
		WorkingDirectory: rt.WorkingDirectory,
		Command:          rt.Command,
		Env:              rt.Env,
		Ports:            rt.Ports,
	}
	if resp.Env == nil {
		resp.Env = []string{}
	}
	if resp.Ports == nil {
		resp.Ports = []int{}
	}
	return resp
}

func instanceToResponse(inst *domain.ContainerInstance) *InstanceResponse {
	if inst == nil {
		return nil
	}
	return &InstanceResponse{
		ID:            inst.ID,
		Profile:       inst.Profile,
		BuildTarget:   string(inst.BuildTarget),
		Image:         inst.Image,
		ContainerID:   inst.ContainerID,
		RestartPolicy: string(inst.RestartPolicy),
		MaxRestarts:   inst.MaxRestarts,
		State:         string(inst.State),
		ExitCode:      inst.ExitCode,
		RestartCount:  inst.RestartCount,
		ErrorMessage:  inst.ErrorMessage,
		CreatedAt:     inst.CreatedAt,
		UpdatedAt:     inst.UpdatedAt,
		StartedAt:     inst.StartedAt,
		StoppedAt:     inst.StoppedAt,
	}
}

func eventToResponse(ev domain.InstanceEvent) EventResponse {
	return EventResponse{
		ID:        ev.ID,
		From:      string(ev.From),
		To:        string(ev.To),
		ExitCode:  ev.ExitCode,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
	}
}
