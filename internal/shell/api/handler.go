// Package api provides the launcher's HTTP status and control API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/colav/quyca-launcher/internal/core/appenv"
	coredeployment "github.com/colav/quyca-launcher/internal/core/deployment"
	"github.com/colav/quyca-launcher/internal/core/domain"
	"github.com/colav/quyca-launcher/internal/core/profile"
	"github.com/colav/quyca-launcher/internal/shell/api/openapi"
	"github.com/colav/quyca-launcher/internal/shell/docker"
	"github.com/colav/quyca-launcher/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Dependencies
// =============================================================================

// Launcher is the part of the orchestrator the API drives.
type Launcher interface {
	Profiles() *profile.Set
	Up(ctx context.Context, name string) (*domain.ContainerInstance, error)
	Down(ctx context.Context, name string) (*domain.ContainerInstance, error)
	Status(ctx context.Context) ([]docker.ProfileStatus, error)
}

// History is the read side of the instance store.
type History interface {
	GetInstance(ctx context.Context, id string) (*domain.ContainerInstance, error)
	ListInstances(ctx context.Context, opts store.ListOptions) ([]domain.ContainerInstance, error)
	ListEvents(ctx context.Context, instanceID string, opts store.ListOptions) ([]domain.InstanceEvent, error)
	Ping(ctx context.Context) error
}

// Pinger reports whether the container supervisor is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	launcher Launcher
	history  History
	docker   Pinger
	gatherer prometheus.Gatherer
	spec     *openapi.Generator
	onLaunch func(*domain.ContainerInstance)
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithGatherer serves the gatherer's metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

// WithLaunchHook registers a func called after every successful launch,
// typically to start watching the new instance.
func WithLaunchHook(fn func(*domain.ContainerInstance)) Option {
	return func(h *Handler) {
		h.onLaunch = fn
	}
}

// NewHandler creates a new API handler.
func NewHandler(l Launcher, hist History, d Pinger, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		launcher: l,
		history:  hist,
		docker:   d,
		gatherer: prometheus.DefaultGatherer,
		spec:     openapi.NewGenerator(openapi.WithErrorModel(ErrorResponse{})),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.registerOperations()
	return h
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	// Plain-text and self-describing endpoints
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Get("/openapi.json", h.spec.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		// Health endpoints
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", h.handleListProfiles)
				r.Get("/{name}", h.handleGetProfile)
				r.Get("/{name}/runtime", h.handleGetRuntime)
				r.Post("/{name}/up", h.handleUp)
				r.Post("/{name}/down", h.handleDown)
			})

			r.Route("/instances", func(r chi.Router) {
				r.Get("/", h.handleListInstances)
				r.Get("/{id}", h.handleGetInstance)
				r.Get("/{id}/events", h.handleListEvents)
			})
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "docker": "ok"}
	ready := true

	if err := h.history.Ping(r.Context()); err != nil {
		checks["database"] = "failed"
		ready = false
	}
	if err := h.docker.Ping(r.Context()); err != nil {
		checks["docker"] = "failed"
		ready = false
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Profile Handlers
// =============================================================================

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.launcher.Status(r.Context())
	if err != nil {
		h.writeLaunchError(w, "", err)
		return
	}
	byName := make(map[string]docker.ProfileStatus, len(statuses))
	for _, st := range statuses {
		byName[st.Profile] = st
	}

	profiles := h.launcher.Profiles()
	resp := ListProfilesResponse{Profiles: make([]ProfileResponse, 0, profiles.Len())}
	for _, name := range profiles.Names() {
		p, err := profiles.Resolve(name)
		if err != nil {
			h.writeLaunchError(w, name, err)
			return
		}
		resp.Profiles = append(resp.Profiles, withStatus(profileToResponse(p), byName[name]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	p, err := h.launcher.Profiles().Resolve(name)
	if err != nil {
		h.writeLaunchError(w, name, err)
		return
	}

	statuses, err := h.launcher.Status(r.Context())
	if err != nil {
		h.writeLaunchError(w, name, err)
		return
	}
	resp := profileToResponse(p)
	for _, st := range statuses {
		if st.Profile == name {
			resp = withStatus(resp, st)
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRuntime(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	p, err := h.launcher.Profiles().Resolve(name)
	if err != nil {
		h.writeLaunchError(w, name, err)
		return
	}
	h.writeJSON(w, http.StatusOK, runtimeToResponse(profile.DescribeRuntimeParameters(p)))
}

func (h *Handler) handleUp(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	inst, err := h.launcher.Up(r.Context(), name)
	if err != nil {
		h.writeLaunchError(w, name, err)
		return
	}

	h.logger.Info("profile launched via API", "profile", name, "instance_id", inst.ID)
	if h.onLaunch != nil {
		h.onLaunch(inst)
	}
	h.writeJSON(w, http.StatusOK, instanceToResponse(inst))
}

func (h *Handler) handleDown(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	inst, err := h.launcher.Down(r.Context(), name)
	if err != nil {
		h.writeLaunchError(w, name, err)
		return
	}

	h.logger.Info("profile stopped via API", "profile", name, "instance_id", inst.ID)
	h.writeJSON(w, http.StatusOK, instanceToResponse(inst))
}

// =============================================================================
// Instance Handlers
// =============================================================================

func (h *Handler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	opts.Limit = queryInt(r, "limit", opts.Limit)
	opts.Offset = queryInt(r, "offset", opts.Offset)
	opts.Profile = r.URL.Query().Get("profile")
	opts = opts.Normalize()

	instances, err := h.history.ListInstances(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list instances", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list instances", "internal_error")
		return
	}

	resp := ListInstancesResponse{
		Instances: make([]InstanceResponse, 0, len(instances)),
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	}
	for i := range instances {
		resp.Instances = append(resp.Instances, *instanceToResponse(&instances[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inst, err := h.history.GetInstance(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "instance not found", "instance_not_found")
			return
		}
		h.logger.Error("failed to get instance", "instance_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get instance", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, instanceToResponse(inst))
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.history.GetInstance(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "instance not found", "instance_not_found")
			return
		}
		h.logger.Error("failed to get instance", "instance_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get instance", "internal_error")
		return
	}

	opts := store.ListOptions{
		Limit:  queryInt(r, "limit", 1000),
		Offset: queryInt(r, "offset", 0),
	}
	events, err := h.history.ListEvents(r.Context(), id, opts)
	if err != nil {
		h.logger.Error("failed to list events", "instance_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list events", "internal_error")
		return
	}

	resp := ListEventsResponse{InstanceID: id, Events: make([]EventResponse, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, eventToResponse(ev))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeLaunchError maps orchestrator errors to status codes.
func (h *Handler) writeLaunchError(w http.ResponseWriter, name string, err error) {
	var (
		missing  *appenv.MissingKeysError
		conflict *coredeployment.ConflictError
		build    *docker.ExternalBuildError
		superv   *docker.ExternalSupervisionError
	)

	switch {
	case errors.Is(err, profile.ErrUnknownProfile):
		h.writeError(w, http.StatusNotFound, err.Error(), "unknown_profile")
	case errors.As(err, &conflict):
		resp := ErrorResponse{Error: err.Error(), Code: "port_conflict"}
		for _, c := range conflict.Conflicts {
			resp.Details = append(resp.Details, strconv.Itoa(c.Port)+" held by "+c.Profile)
		}
		h.writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, docker.ErrLaunchInProgress):
		h.writeError(w, http.StatusConflict, err.Error(), "launch_in_progress")
	case errors.Is(err, docker.ErrNotRunning):
		h.writeError(w, http.StatusConflict, err.Error(), "not_running")
	case errors.As(err, &missing):
		h.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "settings_incomplete", Details: missing.Keys})
	case errors.Is(err, appenv.ErrEnvFileNotFound), errors.Is(err, appenv.ErrInvalidValue):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "settings_invalid")
	case errors.As(err, &build):
		h.logger.Error("image build failed", "profile", name, "error", err)
		h.writeError(w, http.StatusBadGateway, err.Error(), "build_failed")
	case errors.As(err, &superv):
		h.logger.Error("supervisor call failed", "profile", name, "op", superv.Op, "error", err)
		h.writeError(w, http.StatusBadGateway, err.Error(), "supervisor_error")
	default:
		h.logger.Error("launcher request failed", "profile", name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error", "internal_error")
	}
}

func withStatus(resp ProfileResponse, st docker.ProfileStatus) ProfileResponse {
	resp.ImageBuilt = st.ImageBuilt
	resp.Instance = instanceToResponse(st.Instance)
	if c := st.Container; c != nil {
		resp.Container = &ContainerResponse{
			ID:           c.ID,
			Name:         c.Name,
			Status:       string(c.Status),
			NetworkMode:  c.NetworkMode,
			ExitCode:     c.ExitCode,
			RestartCount: c.RestartCount,
		}
	}
	return resp
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
