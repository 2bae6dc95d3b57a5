package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRestartPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want RestartPolicy
	}{
		{"", RestartNever},
		{"no", RestartNever},
		{"never", RestartNever},
		{"on-failure", RestartOnFailure},
		{"ALWAYS", RestartAlways},
	}
	for _, tt := range tests {
		got, err := ParseRestartPolicy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseRestartPolicy("unless-stopped")
	assert.ErrorIs(t, err, ErrUnknownRestartPolicy)
}

func TestParseRestartSpec(t *testing.T) {
	tests := []struct {
		in      string
		policy  RestartPolicy
		retries int
	}{
		{"on-failure", RestartOnFailure, 0},
		{"on-failure:3", RestartOnFailure, 3},
		{" on-failure:0 ", RestartOnFailure, 0},
		{"always", RestartAlways, 0},
		{"no", RestartNever, 0},
	}
	for _, tt := range tests {
		policy, retries, err := ParseRestartSpec(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.policy, policy, tt.in)
		assert.Equal(t, tt.retries, retries, tt.in)
	}

	for _, bad := range []string{"always:3", "no:1", "on-failure:x", "on-failure:-1", "unless-stopped"} {
		_, _, err := ParseRestartSpec(bad)
		assert.ErrorIs(t, err, ErrUnknownRestartPolicy, bad)
	}
}

func TestRestartPolicy_DockerName(t *testing.T) {
	assert.Equal(t, "no", RestartNever.DockerName())
	assert.Equal(t, "on-failure", RestartOnFailure.DockerName())
	assert.Equal(t, "always", RestartAlways.DockerName())
}

func TestNetworkMode(t *testing.T) {
	assert.True(t, NetworkModeHost.Valid())
	assert.True(t, NetworkModeHost.SharesHost())
	assert.True(t, NetworkModeBridge.Valid())
	assert.False(t, NetworkModeBridge.SharesHost())
	assert.False(t, NetworkMode("overlay").Valid())
}

func TestDeploymentProfile_CloneIsDeep(t *testing.T) {
	p := DeploymentProfile{
		Name:              "dev",
		EntrypointCommand: []string{"python", "app.py"},
		VolumeMounts:      []VolumeMount{{HostPath: ".", ContainerPath: "/app"}},
		Environment:       []EnvVar{{Name: "ENVIRONMENT", Value: "dev"}},
		Ports:             []int{8000},
	}

	c := p.Clone()
	c.EntrypointCommand[0] = "node"
	c.VolumeMounts[0].ContainerPath = "/srv"
	c.Environment[0].Value = "prod"
	c.Ports[0] = 9000

	assert.Equal(t, "python", p.EntrypointCommand[0])
	assert.Equal(t, "/app", p.VolumeMounts[0].ContainerPath)
	assert.Equal(t, "dev", p.Environment[0].Value)
	assert.Equal(t, 8000, p.Ports[0])
}

func TestDeploymentProfile_EnvSortedLastWins(t *testing.T) {
	p := DeploymentProfile{Environment: []EnvVar{
		{Name: "ZED", Value: "1"},
		{Name: "ENVIRONMENT", Value: "dev"},
		{Name: "ZED", Value: "2"},
	}}
	assert.Equal(t, []string{"ENVIRONMENT=dev", "ZED=2"}, p.Env())
	assert.Nil(t, DeploymentProfile{}.Env())
}

func TestVolumeMount_String(t *testing.T) {
	assert.Equal(t, ".:/app", VolumeMount{HostPath: ".", ContainerPath: "/app"}.String())
	assert.Equal(t, "/data:/data:ro", VolumeMount{HostPath: "/data", ContainerPath: "/data", ReadOnly: true}.String())
}
