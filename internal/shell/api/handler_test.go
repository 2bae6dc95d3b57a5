package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/colav/quyca-launcher/internal/core/appenv"
	coredeployment "github.com/colav/quyca-launcher/internal/core/deployment"
	"github.com/colav/quyca-launcher/internal/core/domain"
	"github.com/colav/quyca-launcher/internal/core/profile"
	"github.com/colav/quyca-launcher/internal/shell/docker"
	"github.com/colav/quyca-launcher/internal/shell/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type stubLauncher struct {
	profiles *profile.Set
	upErr    error
	downErr  error
	status   []docker.ProfileStatus
	statErr  error
	ups      []string
	downs    []string
}

func (l *stubLauncher) Profiles() *profile.Set { return l.profiles }

func (l *stubLauncher) Up(ctx context.Context, name string) (*domain.ContainerInstance, error) {
	l.ups = append(l.ups, name)
	if l.upErr != nil {
		return nil, l.upErr
	}
	p, err := l.profiles.Resolve(name)
	if err != nil {
		return nil, err
	}
	inst := domain.NewContainerInstance(p)
	inst.ID = "inst-" + name
	inst.ContainerID = "container-" + name
	inst.State = domain.StateRunning
	return inst, nil
}

func (l *stubLauncher) Down(ctx context.Context, name string) (*domain.ContainerInstance, error) {
	l.downs = append(l.downs, name)
	if l.downErr != nil {
		return nil, l.downErr
	}
	p, err := l.profiles.Resolve(name)
	if err != nil {
		return nil, err
	}
	inst := domain.NewContainerInstance(p)
	inst.ID = "inst-" + name
	inst.State = domain.StateStopped
	return inst, nil
}

func (l *stubLauncher) Status(ctx context.Context) ([]docker.ProfileStatus, error) {
	return l.status, l.statErr
}

type stubHistory struct {
	instances map[string]*domain.ContainerInstance
	events    map[string][]domain.InstanceEvent
	listOpts  store.ListOptions
	err       error
	pingErr   error
}

func newStubHistory() *stubHistory {
	return &stubHistory{
		instances: make(map[string]*domain.ContainerInstance),
		events:    make(map[string][]domain.InstanceEvent),
	}
}

func (s *stubHistory) GetInstance(ctx context.Context, id string) (*domain.ContainerInstance, error) {
	if s.err != nil {
		return nil, s.err
	}
	inst, ok := s.instances[id]
	if !ok {
		return nil, store.NewStoreError("GetInstance", "instance", id, "not found", store.ErrNotFound)
	}
	return inst, nil
}

func (s *stubHistory) ListInstances(ctx context.Context, opts store.ListOptions) ([]domain.ContainerInstance, error) {
	s.listOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.ContainerInstance
	for _, inst := range s.instances {
		if opts.Profile == "" || inst.Profile == opts.Profile {
			out = append(out, *inst)
		}
	}
	return out, nil
}

func (s *stubHistory) ListEvents(ctx context.Context, instanceID string, opts store.ListOptions) ([]domain.InstanceEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.events[instanceID], nil
}

func (s *stubHistory) Ping(ctx context.Context) error { return s.pingErr }

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type testEnv struct {
	launcher *stubLauncher
	history  *stubHistory
	pinger   *stubPinger
	registry *prometheus.Registry
	launched []*domain.ContainerInstance
	server   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		launcher: &stubLauncher{profiles: profile.DefaultSet("/srv/quyca")},
		history:  newStubHistory(),
		pinger:   &stubPinger{},
		registry: prometheus.NewRegistry(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(env.launcher, env.history, env.pinger, logger,
		WithGatherer(env.registry),
		WithLaunchHook(func(inst *domain.ContainerInstance) {
			env.launched = append(env.launched, inst)
		}),
	)
	env.server = h.Routes()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func sampleInstance(id, profileName string, state domain.InstanceState) *domain.ContainerInstance {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.ContainerInstance{
		ID:            id,
		Profile:       profileName,
		BuildTarget:   domain.BuildTargetDevelopment,
		Image:         profile.DevImage,
		RestartPolicy: domain.RestartOnFailure,
		State:         state,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)
}

func TestReady_AllChecksPass(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/ready")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReadyResponse](t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, map[string]string{"database": "ok", "docker": "ok"}, resp.Checks)
}

func TestReady_DockerDown(t *testing.T) {
	env := newTestEnv(t)
	env.pinger.err = errors.New("connection refused")

	rec := env.do(t, http.MethodGet, "/ready")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ReadyResponse](t, rec)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.Equal(t, "failed", resp.Checks["docker"])
}

func TestReady_DatabaseDown(t *testing.T) {
	env := newTestEnv(t)
	env.history.pingErr = store.ErrConnectionFailed

	rec := env.do(t, http.MethodGet, "/ready")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "failed", decode[ReadyResponse](t, rec).Checks["database"])
}

// =============================================================================
// Profile Tests
// =============================================================================

func TestListProfiles(t *testing.T) {
	env := newTestEnv(t)
	env.launcher.status = []docker.ProfileStatus{
		{
			Profile:    "dev",
			ImageBuilt: true,
			Instance:   sampleInstance("inst-1", "dev", domain.StateRunning),
			Container: &docker.ContainerInfo{
				ID:          "abc123",
				Name:        "quyca-dev",
				Status:      docker.ContainerStatusRunning,
				NetworkMode: "host",
			},
		},
		{Profile: "prod"},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/profiles")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListProfilesResponse](t, rec)
	require.Len(t, resp.Profiles, 2)

	dev := resp.Profiles[0]
	assert.Equal(t, "dev", dev.Name)
	assert.Equal(t, string(domain.BuildTargetDevelopment), dev.BuildTarget)
	assert.Equal(t, profile.DevImage, dev.ImageReference)
	assert.Equal(t, []int{profile.DefaultAppPort}, dev.Ports)
	require.NotNil(t, dev.Instance)
	assert.Equal(t, "inst-1", dev.Instance.ID)
	require.NotNil(t, dev.Container)
	assert.Equal(t, "running", dev.Container.Status)
	assert.True(t, dev.ImageBuilt)

	prod := resp.Profiles[1]
	assert.Equal(t, "prod", prod.Name)
	assert.False(t, prod.ImageBuilt)
	assert.Nil(t, prod.Instance)
	assert.Nil(t, prod.Container)
}

func TestListProfiles_StatusFailure(t *testing.T) {
	env := newTestEnv(t)
	env.launcher.statErr = &docker.ExternalSupervisionError{Profile: "", Op: "list", Err: errors.New("daemon gone")}

	rec := env.do(t, http.MethodGet, "/api/v1/profiles")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "supervisor_error", decode[ErrorResponse](t, rec).Code)
}

func TestGetProfile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/profiles/prod")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ProfileResponse](t, rec)
	assert.Equal(t, "prod", resp.Name)
	assert.Equal(t, profile.ProdImage, resp.ImageReference)
	assert.Equal(t, "host", resp.NetworkMode)
	assert.Equal(t, profile.AppDir, resp.WorkingDirectory)
	assert.Equal(t, profile.Entrypoint(), resp.EntrypointCommand)
	require.Len(t, resp.VolumeMounts, 1)
	assert.Equal(t, "/srv/quyca", resp.VolumeMounts[0].HostPath)
	assert.Equal(t, profile.AppDir, resp.VolumeMounts[0].ContainerPath)
}

func TestGetProfile_Unknown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/profiles/staging")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_profile", decode[ErrorResponse](t, rec).Code)
}

func TestGetRuntime(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/profiles/dev/runtime")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RuntimeResponse](t, rec)
	assert.Equal(t, "dev", resp.Profile)
	assert.Equal(t, profile.DevImage, resp.Image)
	assert.Equal(t, "host", resp.NetworkMode)
	assert.Equal(t, profile.Entrypoint(), resp.Command)
	assert.Contains(t, resp.Env, "ENVIRONMENT=dev")
}

func TestGetRuntime_Unknown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/profiles/nope/runtime")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Up / Down Tests
// =============================================================================

func TestUp(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/profiles/dev/up")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[InstanceResponse](t, rec)
	assert.Equal(t, "inst-dev", resp.ID)
	assert.Equal(t, "running", resp.State)
	assert.Equal(t, []string{"dev"}, env.launcher.ups)

	require.Len(t, env.launched, 1)
	assert.Equal(t, "inst-dev", env.launched[0].ID)
}

func TestUp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "unknown profile",
			err:    &profile.UnknownProfileError{Name: "qa"},
			status: http.StatusNotFound,
			code:   "unknown_profile",
		},
		{
			name:   "launch in progress",
			err:    docker.ErrLaunchInProgress,
			status: http.StatusConflict,
			code:   "launch_in_progress",
		},
		{
			name:   "settings incomplete",
			err:    &appenv.MissingKeysError{File: ".env.dev", Keys: []string{"MONGO_URI"}},
			status: http.StatusUnprocessableEntity,
			code:   "settings_incomplete",
		},
		{
			name:   "settings file missing",
			err:    appenv.ErrEnvFileNotFound,
			status: http.StatusUnprocessableEntity,
			code:   "settings_invalid",
		},
		{
			name:   "build failed",
			err:    &docker.ExternalBuildError{Profile: "dev", Err: errors.New("no space left on device")},
			status: http.StatusBadGateway,
			code:   "build_failed",
		},
		{
			name:   "start failed",
			err:    &docker.ExternalSupervisionError{Profile: "dev", Op: "start", Err: errors.New("boom")},
			status: http.StatusBadGateway,
			code:   "supervisor_error",
		},
		{
			name:   "anything else",
			err:    errors.New("disk on fire"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.launcher.upErr = tt.err

			rec := env.do(t, http.MethodPost, "/api/v1/profiles/dev/up")

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
			assert.Empty(t, env.launched)
		})
	}
}

func TestUp_PortConflictListsHolders(t *testing.T) {
	env := newTestEnv(t)
	env.launcher.upErr = &coredeployment.ConflictError{
		Profile:   "prod",
		Conflicts: []coredeployment.Conflict{{Port: 8000, Profile: "dev", ContainerID: "abc"}},
	}

	rec := env.do(t, http.MethodPost, "/api/v1/profiles/prod/up")

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "port_conflict", resp.Code)
	assert.Equal(t, []string{"8000 held by dev"}, resp.Details)
}

func TestUp_MissingKeysAreDetailed(t *testing.T) {
	env := newTestEnv(t)
	env.launcher.upErr = &appenv.MissingKeysError{File: ".env.dev", Keys: []string{"MONGO_URI", "SECRET_KEY"}}

	rec := env.do(t, http.MethodPost, "/api/v1/profiles/dev/up")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []string{"MONGO_URI", "SECRET_KEY"}, decode[ErrorResponse](t, rec).Details)
}

func TestUp_WrongMethod(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/profiles/dev/up")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, env.launcher.ups)
}

func TestDown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/profiles/prod/down")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", decode[InstanceResponse](t, rec).State)
	assert.Equal(t, []string{"prod"}, env.launcher.downs)
}

func TestDown_NotRunning(t *testing.T) {
	env := newTestEnv(t)
	env.launcher.downErr = docker.ErrNotRunning

	rec := env.do(t, http.MethodPost, "/api/v1/profiles/dev/down")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_running", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// Instance Tests
// =============================================================================

func TestListInstances(t *testing.T) {
	env := newTestEnv(t)
	env.history.instances["a"] = sampleInstance("a", "dev", domain.StateStopped)
	env.history.instances["b"] = sampleInstance("b", "prod", domain.StateRunning)

	rec := env.do(t, http.MethodGet, "/api/v1/instances?profile=prod&limit=5&offset=0")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListInstancesResponse](t, rec)
	require.Len(t, resp.Instances, 1)
	assert.Equal(t, "b", resp.Instances[0].ID)
	assert.Equal(t, 5, resp.Limit)
	assert.Equal(t, "prod", env.history.listOpts.Profile)
}

func TestListInstances_LimitClamped(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/instances?limit=99999&offset=-3")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListInstancesResponse](t, rec)
	assert.Equal(t, 1000, resp.Limit)
	assert.Equal(t, 0, resp.Offset)
	assert.NotNil(t, resp.Instances)
}

func TestListInstances_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.history.err = store.ErrConnectionFailed

	rec := env.do(t, http.MethodGet, "/api/v1/instances")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetInstance(t *testing.T) {
	env := newTestEnv(t)
	code := 1
	inst := sampleInstance("a", "dev", domain.StateExitedFailed)
	inst.ExitCode = &code
	env.history.instances["a"] = inst

	rec := env.do(t, http.MethodGet, "/api/v1/instances/a")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[InstanceResponse](t, rec)
	assert.Equal(t, "exited-failed", resp.State)
	require.NotNil(t, resp.ExitCode)
	assert.Equal(t, 1, *resp.ExitCode)
}

func TestGetInstance_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/instances/missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "instance_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)
	env.history.instances["a"] = sampleInstance("a", "dev", domain.StateRunning)
	env.history.events["a"] = []domain.InstanceEvent{
		{ID: 1, InstanceID: "a", To: domain.StateBuilding},
		{ID: 2, InstanceID: "a", From: domain.StateBuilding, To: domain.StateStarting},
		{ID: 3, InstanceID: "a", From: domain.StateStarting, To: domain.StateRunning},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/instances/a/events")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListEventsResponse](t, rec)
	assert.Equal(t, "a", resp.InstanceID)
	require.Len(t, resp.Events, 3)
	assert.Equal(t, "", resp.Events[0].From)
	assert.Equal(t, "running", resp.Events[2].To)
}

func TestListEvents_UnknownInstance(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/instances/ghost/events")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Metrics and OpenAPI Tests
// =============================================================================

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	launches := prometheus.NewCounter(prometheus.CounterOpts{Name: "quyca_test_launches_total", Help: "test"})
	env.registry.MustRegister(launches)
	launches.Inc()

	rec := env.do(t, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quyca_test_launches_total 1")
}

func TestOpenAPIDocument(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/openapi.json")

	require.Equal(t, http.StatusOK, rec.Code)
	var doc struct {
		Paths      map[string]map[string]any `json:"paths"`
		Components struct {
			Schemas map[string]any `json:"schemas"`
		} `json:"components"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))

	for _, path := range []string{
		"/health",
		"/ready",
		"/api/v1/profiles",
		"/api/v1/profiles/{name}",
		"/api/v1/profiles/{name}/runtime",
		"/api/v1/profiles/{name}/up",
		"/api/v1/profiles/{name}/down",
		"/api/v1/instances",
		"/api/v1/instances/{id}",
		"/api/v1/instances/{id}/events",
	} {
		assert.Contains(t, doc.Paths, path)
	}
	assert.Contains(t, doc.Paths["/api/v1/profiles/{name}/up"], "post")
	assert.Contains(t, doc.Components.Schemas, "ErrorResponse")
	assert.Contains(t, doc.Components.Schemas, "InstanceResponse")
}
