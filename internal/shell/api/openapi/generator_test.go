package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID        string            `json:"id"`
	Count     int               `json:"count"`
	Size      int64             `json:"size"`
	Tags      []string          `json:"tags,omitempty"`
	Labels    map[string]string `json:"labels"`
	ExitCode  *int              `json:"exit_code"`
	CreatedAt time.Time         `json:"created_at"`
	Hidden    string            `json:"-"`
	internal  string
}

type problem struct {
	Error string `json:"error"`
}

func TestGenerate_Info(t *testing.T) {
	g := NewGenerator(WithTitle("t"), WithVersion("9.9.9"), WithDescription("d"), WithServer("http://localhost:8080"))

	spec := g.Generate()

	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "t", spec.Info.Title)
	assert.Equal(t, "9.9.9", spec.Info.Version)
	assert.Equal(t, "d", spec.Info.Description)
	require.Len(t, spec.Servers, 1)
	assert.Equal(t, "http://localhost:8080", spec.Servers[0].URL)
}

func TestGenerate_Operation(t *testing.T) {
	g := NewGenerator(WithErrorModel(problem{}))
	g.Register(Operation{
		Method:      http.MethodGet,
		Path:        "/widgets/{id}/parts/{part}",
		ID:          "getPart",
		Summary:     "Get a part",
		Tag:         "Widgets",
		QueryParams: []QueryParam{{Name: "limit", Type: "integer"}, {Name: "q", Type: "string"}},
		Response:    widget{},
		Errors:      []int{http.StatusNotFound, http.StatusBadRequest},
	})

	spec := g.Generate()

	item := spec.Paths.Value("/widgets/{id}/parts/{part}")
	require.NotNil(t, item)
	require.Len(t, item.Parameters, 2)
	assert.Equal(t, "id", item.Parameters[0].Value.Name)
	assert.Equal(t, openapi3.ParameterInPath, item.Parameters[0].Value.In)
	assert.Equal(t, "part", item.Parameters[1].Value.Name)

	op := item.Get
	require.NotNil(t, op)
	assert.Equal(t, "getPart", op.OperationID)
	assert.Equal(t, []string{"Widgets"}, op.Tags)
	require.Len(t, op.Parameters, 2)
	assert.Equal(t, openapi3.ParameterInQuery, op.Parameters[0].Value.In)
	assert.True(t, op.Parameters[0].Value.Schema.Value.Type.Is("integer"))

	ok := op.Responses.Value("200")
	require.NotNil(t, ok)
	assert.Equal(t, "#/components/schemas/widget", ok.Value.Content.Get("application/json").Schema.Ref)

	notFound := op.Responses.Value("404")
	require.NotNil(t, notFound)
	assert.Equal(t, "#/components/schemas/problem", notFound.Value.Content.Get("application/json").Schema.Ref)
	assert.NotNil(t, op.Responses.Value("400"))
}

func TestGenerate_CustomStatusWithoutBody(t *testing.T) {
	g := NewGenerator()
	g.Register(Operation{Method: http.MethodPost, Path: "/things", ID: "createThing", Status: http.StatusAccepted})

	op := g.Generate().Paths.Value("/things").Post
	require.NotNil(t, op)
	accepted := op.Responses.Value("202")
	require.NotNil(t, accepted)
	assert.Nil(t, accepted.Value.Content)
}

func TestGenerate_SharedPathItem(t *testing.T) {
	g := NewGenerator()
	g.Register(
		Operation{Method: http.MethodGet, Path: "/items/{id}", ID: "getItem"},
		Operation{Method: http.MethodDelete, Path: "/items/{id}", ID: "deleteItem"},
	)

	item := g.Generate().Paths.Value("/items/{id}")
	require.NotNil(t, item)
	assert.Len(t, item.Parameters, 1)
	assert.NotNil(t, item.Get)
	assert.NotNil(t, item.Delete)
}

func TestExtractSchema(t *testing.T) {
	g := NewGenerator()
	g.Register(Operation{Method: http.MethodGet, Path: "/w", Response: widget{}})

	schema := g.Generate().Components.Schemas["widget"].Value
	require.NotNil(t, schema)

	assert.Contains(t, schema.Properties, "id")
	assert.NotContains(t, schema.Properties, "Hidden")
	assert.NotContains(t, schema.Properties, "internal")

	assert.True(t, schema.Properties["count"].Value.Type.Is("integer"))
	assert.Equal(t, "int64", schema.Properties["size"].Value.Format)
	assert.True(t, schema.Properties["tags"].Value.Type.Is("array"))
	assert.True(t, schema.Properties["labels"].Value.Type.Is("object"))
	assert.True(t, schema.Properties["exit_code"].Value.Nullable)
	assert.Equal(t, "date-time", schema.Properties["created_at"].Value.Format)

	assert.ElementsMatch(t, []string{"id", "count", "size", "labels", "created_at"}, schema.Required)
}

func TestGenerate_CachedUntilRegister(t *testing.T) {
	g := NewGenerator()
	g.Register(Operation{Method: http.MethodGet, Path: "/a"})

	first := g.Generate()
	assert.Same(t, first, g.Generate())

	g.Register(Operation{Method: http.MethodGet, Path: "/b"})
	second := g.Generate()
	assert.NotSame(t, first, second)
	assert.NotNil(t, second.Paths.Value("/b"))
}

func TestPathParams(t *testing.T) {
	assert.Nil(t, pathParams("/health"))
	assert.Equal(t, []string{"name"}, pathParams("/api/v1/profiles/{name}/up"))
}

func TestHandler(t *testing.T) {
	g := NewGenerator()
	g.Register(Operation{Method: http.MethodGet, Path: "/health", ID: "getHealth"})

	rec := httptest.NewRecorder()
	g.Handler()(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/health")
}
