package docker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func skipIfNoDocker(t *testing.T) Client {
	t.Helper()
	cli, err := NewDockerClient("")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	if err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

func skipIfNoImage(t *testing.T, cli Client, image string) {
	t.Helper()
	ok, err := cli.ImageExists(context.Background(), image)
	if err != nil || !ok {
		t.Skip("image not present locally:", image)
	}
}

func cleanupContainer(t *testing.T, cli Client, containerID string) {
	t.Helper()
	ctx := context.Background()
	timeout := 5 * time.Second
	_ = cli.StopContainer(ctx, containerID, &timeout)
	_ = cli.RemoveContainer(ctx, containerID, RemoveOptions{Force: true})
}

// Test container name prefix to identify test containers
const testPrefix = "quyca-test-"

// =============================================================================
// Unit Tests
// =============================================================================

func TestDockerError_Message(t *testing.T) {
	err := NewDockerError("StartContainer", "container", "abc", "container not found", ErrContainerNotFound)
	assert.Equal(t, "StartContainer container abc: container not found", err.Error())
	assert.ErrorIs(t, err, ErrContainerNotFound)

	err = NewDockerError("BuildImage", "image", "", "boom", ErrImageBuildFailed)
	assert.Equal(t, "BuildImage image: boom", err.Error())

	err = NewDockerError("Ping", "", "", "unreachable", ErrConnectionFailed)
	assert.Equal(t, "Ping: unreachable", err.Error())
}

func TestExternalErrors_PassThroughCause(t *testing.T) {
	cause := NewDockerError("BuildImage", "image", "x", "step failed", ErrImageBuildFailed)

	var err error = &ExternalBuildError{Profile: "dev", Err: cause}
	assert.ErrorIs(t, err, ErrImageBuildFailed)
	var derr *DockerError
	require.True(t, errors.As(err, &derr))
	assert.Same(t, cause, derr)

	err = &ExternalSupervisionError{Profile: "prod", Op: "start", Err: ErrContainerAlreadyExists}
	assert.ErrorIs(t, err, ErrContainerAlreadyExists)
	assert.Equal(t, `start profile "prod": container already exists`, err.Error())
}

func TestParseDockerTime(t *testing.T) {
	assert.Nil(t, parseDockerTime(""))
	assert.Nil(t, parseDockerTime("0001-01-01T00:00:00Z"))
	assert.Nil(t, parseDockerTime("garbage"))

	got := parseDockerTime("2024-05-01T10:00:00.5Z")
	require.NotNil(t, got)
	assert.Equal(t, 2024, got.Year())
}

// =============================================================================
// Integration Tests (skip without a daemon)
// =============================================================================

func TestPing_Success(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	assert.NoError(t, cli.Ping(context.Background()))
}

func TestContainerLifecycle_ExitCodeAndRestartPolicy(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	skipIfNoImage(t, cli, "alpine:latest")

	ctx := context.Background()
	id, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:          testPrefix + "exit",
		Image:         "alpine:latest",
		Command:       []string{"sh", "-c", "exit 3"},
		Env:           []string{"ENVIRONMENT=test"},
		NetworkMode:   "none",
		WorkingDir:    "/tmp",
		Labels:        map[string]string{"org.colav.quyca.managed": "true"},
		RestartPolicy: RestartPolicy{Name: "no"},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, id)

	require.NoError(t, cli.StartContainer(ctx, id))

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := cli.WaitContainer(waitCtx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)

	info, err := cli.InspectContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ContainerStatusExited, info.Status)
	assert.Equal(t, 3, info.ExitCode)
	assert.Equal(t, "none", info.NetworkMode)
	assert.Equal(t, "true", info.Labels["org.colav.quyca.managed"])
}

func TestCreateContainer_DuplicateName(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	skipIfNoImage(t, cli, "alpine:latest")

	ctx := context.Background()
	spec := ContainerSpec{Name: testPrefix + "dup", Image: "alpine:latest", Command: []string{"true"}}
	id, err := cli.CreateContainer(ctx, spec)
	require.NoError(t, err)
	defer cleanupContainer(t, cli, id)

	_, err = cli.CreateContainer(ctx, spec)
	assert.ErrorIs(t, err, ErrContainerAlreadyExists)
}

func TestBindMounts_InOrder(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	skipIfNoImage(t, cli, "alpine:latest")

	hostDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, "marker"), []byte("ok"), 0o644))

	ctx := context.Background()
	id, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:    testPrefix + "mount",
		Image:   "alpine:latest",
		Command: []string{"cat", "/app/marker"},
		Mounts:  []VolumeMount{{Source: hostDir, Target: "/app", ReadOnly: true}},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, id)

	require.NoError(t, cli.StartContainer(ctx, id))
	res, err := cli.WaitContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestInspectContainer_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	_, err := cli.InspectContainer(context.Background(), testPrefix+"does-not-exist")
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestBuildImage_Target(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	skipIfNoImage(t, cli, "alpine:latest")

	dir := t.TempDir()
	dockerfile := "FROM alpine:latest AS development\nRUN echo dev > /stage\n\nFROM alpine:latest AS production\nRUN echo prod > /stage\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(dockerfile), 0o644))

	ctx := context.Background()
	tag := testPrefix + "build:dev"
	err := cli.BuildImage(ctx, BuildSpec{
		ContextDir: dir,
		Dockerfile: "Dockerfile",
		Target:     "development",
		Tags:       []string{tag},
	}, nil)
	require.NoError(t, err)

	ok, err := cli.ImageExists(ctx, tag)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildImage_FailingStep(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	skipIfNoImage(t, cli, "alpine:latest")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM alpine:latest\nRUN exit 1\n"), 0o644))

	err := cli.BuildImage(context.Background(), BuildSpec{
		ContextDir: dir,
		Dockerfile: "Dockerfile",
		Tags:       []string{testPrefix + "broken:latest"},
	}, nil)
	assert.ErrorIs(t, err, ErrImageBuildFailed)
}
