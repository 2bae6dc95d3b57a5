package api

import (
	"net/http"

	"github.com/colav/quyca-launcher/internal/shell/api/openapi"
)

// registerOperations describes every route served under /api/v1 and the
// health endpoints for /openapi.json.
func (h *Handler) registerOperations() {
	profileErrors := []int{http.StatusNotFound, http.StatusInternalServerError}
	launchErrors := []int{
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusInternalServerError,
		http.StatusBadGateway,
	}
	page := []openapi.QueryParam{{Name: "limit", Type: "integer"}, {Name: "offset", Type: "integer"}}

	h.spec.Register(
		openapi.Operation{
			Method: http.MethodGet, Path: "/health", ID: "getHealth",
			Summary: "Liveness check", Tag: "Health", Response: HealthResponse{},
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/ready", ID: "getReady",
			Summary: "Readiness of the store and the container supervisor", Tag: "Health",
			Response: ReadyResponse{}, Errors: []int{http.StatusServiceUnavailable},
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/profiles", ID: "listProfiles",
			Summary: "List deployment profiles with their latest instance", Tag: "Profiles",
			Response: ListProfilesResponse{}, Errors: []int{http.StatusBadGateway},
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/profiles/{name}", ID: "getProfile",
			Summary: "Resolve a deployment profile", Tag: "Profiles",
			Response: ProfileResponse{}, Errors: profileErrors,
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/profiles/{name}/runtime", ID: "getRuntime",
			Summary: "Describe the runtime parameters of a profile", Tag: "Profiles",
			Response: RuntimeResponse{}, Errors: []int{http.StatusNotFound},
		},
		openapi.Operation{
			Method: http.MethodPost, Path: "/api/v1/profiles/{name}/up", ID: "upProfile",
			Summary: "Build and start a profile", Tag: "Profiles",
			Response: InstanceResponse{}, Errors: launchErrors,
		},
		openapi.Operation{
			Method: http.MethodPost, Path: "/api/v1/profiles/{name}/down", ID: "downProfile",
			Summary: "Stop a profile", Tag: "Profiles",
			Response: InstanceResponse{}, Errors: []int{http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/instances", ID: "listInstances",
			Summary: "List launched instances, newest first", Tag: "Instances",
			QueryParams: append([]openapi.QueryParam{{Name: "profile", Type: "string"}}, page...),
			Response:    ListInstancesResponse{}, Errors: []int{http.StatusInternalServerError},
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/instances/{id}", ID: "getInstance",
			Summary: "Get an instance", Tag: "Instances",
			Response: InstanceResponse{}, Errors: []int{http.StatusNotFound},
		},
		openapi.Operation{
			Method: http.MethodGet, Path: "/api/v1/instances/{id}/events", ID: "listInstanceEvents",
			Summary: "List an instance's state changes in order", Tag: "Instances",
			QueryParams: page, Response: ListEventsResponse{}, Errors: []int{http.StatusNotFound},
		},
	)
}
