package deployment

import (
	"errors"
	"testing"

	"github.com/colav/quyca-launcher/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostProfile(name string, ports ...int) RunningProfile {
	return RunningProfile{Profile: name, NetworkMode: domain.NetworkModeHost, Ports: ports, ContainerID: "c-" + name}
}

// =============================================================================
// HostPortConflicts Tests
// =============================================================================

func TestHostPortConflicts_DevAndProdSamePort(t *testing.T) {
	conflicts := HostPortConflicts(hostProfile("prod", 8000), []RunningProfile{hostProfile("dev", 8000)})

	require.Len(t, conflicts, 1)
	assert.Equal(t, Conflict{Port: 8000, Profile: "dev", ContainerID: "c-dev"}, conflicts[0])
}

func TestHostPortConflicts_NoConflict(t *testing.T) {
	tests := []struct {
		name      string
		candidate RunningProfile
		running   []RunningProfile
	}{
		{"nothing running", hostProfile("prod", 8000), nil},
		{"different ports", hostProfile("prod", 8000), []RunningProfile{hostProfile("dev", 8001)}},
		{"same profile is replaced", hostProfile("dev", 8000), []RunningProfile{hostProfile("dev", 8000)}},
		{"bridge candidate", RunningProfile{Profile: "prod", NetworkMode: domain.NetworkModeBridge, Ports: []int{8000}},
			[]RunningProfile{hostProfile("dev", 8000)}},
		{"bridge running", hostProfile("prod", 8000),
			[]RunningProfile{{Profile: "dev", NetworkMode: domain.NetworkModeBridge, Ports: []int{8000}}}},
		{"candidate without ports", hostProfile("prod"), []RunningProfile{hostProfile("dev", 8000)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, HostPortConflicts(tt.candidate, tt.running))
		})
	}
}

func TestHostPortConflicts_SortedByPortThenProfile(t *testing.T) {
	conflicts := HostPortConflicts(hostProfile("prod", 9000, 8000), []RunningProfile{
		hostProfile("stage", 9000, 8000),
		hostProfile("dev", 9000),
	})

	require.Len(t, conflicts, 3)
	assert.Equal(t, 8000, conflicts[0].Port)
	assert.Equal(t, "stage", conflicts[0].Profile)
	assert.Equal(t, 9000, conflicts[1].Port)
	assert.Equal(t, "dev", conflicts[1].Profile)
	assert.Equal(t, "stage", conflicts[2].Profile)
}

// =============================================================================
// CheckConflicts Tests
// =============================================================================

func TestCheckConflicts(t *testing.T) {
	assert.NoError(t, CheckConflicts(hostProfile("prod", 8000), nil))

	err := CheckConflicts(hostProfile("prod", 8000), []RunningProfile{hostProfile("dev", 8000)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortConflict)

	var cerr *ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "prod", cerr.Profile)
	assert.Equal(t, `profile "prod": host port conflict: port 8000 held by "dev"`, err.Error())
}

func TestFromRuntime(t *testing.T) {
	rt := devRuntime()
	rp := FromRuntime(rt)
	assert.Equal(t, "dev", rp.Profile)
	assert.Equal(t, domain.NetworkModeHost, rp.NetworkMode)
	assert.Equal(t, []int{8000}, rp.Ports)

	rp.Ports[0] = 1
	assert.Equal(t, 8000, rt.Ports[0])
}

func TestFromLabels(t *testing.T) {
	labels := Labels("dev", "inst-1", "development")
	labels[LabelPorts] = "8000"

	rp, ok := FromLabels(labels, "host", "c1")
	require.True(t, ok)
	assert.Equal(t, RunningProfile{Profile: "dev", NetworkMode: domain.NetworkModeHost, Ports: []int{8000}, ContainerID: "c1"}, rp)

	_, ok = FromLabels(map[string]string{"other": "x"}, "host", "c2")
	assert.False(t, ok)
}
