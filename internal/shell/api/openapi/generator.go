// Package openapi builds the launcher's OpenAPI 3.0 document by reflecting on
// the response types registered with each operation.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces OpenAPI 3.0 specifications from registered operations.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	errorModel  any
	operations  []Operation
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Operation describes one route for the document.
type Operation struct {
	Method      string // http.MethodGet, http.MethodPost
	Path        string // chi pattern, e.g. "/api/v1/profiles/{name}"
	ID          string
	Summary     string
	Tag         string
	QueryParams []QueryParam
	Response    any // Zero value of the success body; nil means no body
	Status      int // Success status, 200 when zero
	Errors      []int
}

// QueryParam is an optional query string parameter.
type QueryParam struct {
	Name string
	Type string // "string" or "integer"
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// WithErrorModel sets the body schema used for every error response.
func WithErrorModel(model any) Option {
	return func(g *Generator) {
		g.errorModel = model
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "quyca launcher API",
		version:     "1.0.0",
		description: "Launches, stops and reports on quyca deployment profiles",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Register adds operations to the document.
func (g *Generator) Register(ops ...Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operations = append(g.operations, ops...)
	g.cachedSpec = nil // Invalidate cache
}

// Generate produces the complete OpenAPI 3.0 specification.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	errorRef := ""
	if g.errorModel != nil {
		errorRef = g.addSchema(spec, g.errorModel)
	}

	for _, op := range g.operations {
		g.addOperation(spec, op, errorRef)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI specification.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Operation Generation
// =============================================================================

func (g *Generator) addOperation(spec *openapi3.T, op Operation, errorRef string) {
	item := spec.Paths.Value(op.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		for _, name := range pathParams(op.Path) {
			item.Parameters = append(item.Parameters, &openapi3.ParameterRef{
				Value: openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()),
			})
		}
		spec.Paths.Set(op.Path, item)
	}

	status := op.Status
	if status == 0 {
		status = http.StatusOK
	}

	success := openapi3.NewResponse().WithDescription(http.StatusText(status))
	if op.Response != nil {
		ref := g.addSchema(spec, op.Response)
		success.WithJSONSchemaRef(&openapi3.SchemaRef{Ref: ref})
	}
	responses := openapi3.NewResponses(openapi3.WithStatus(status, &openapi3.ResponseRef{Value: success}))

	codes := append([]int(nil), op.Errors...)
	sort.Ints(codes)
	for _, code := range codes {
		resp := openapi3.NewResponse().WithDescription(http.StatusText(code))
		if errorRef != "" {
			resp.WithJSONSchemaRef(&openapi3.SchemaRef{Ref: errorRef})
		}
		responses.Set(strconv.Itoa(code), &openapi3.ResponseRef{Value: resp})
	}

	operation := &openapi3.Operation{
		OperationID: op.ID,
		Summary:     op.Summary,
		Responses:   responses,
	}
	if op.Tag != "" {
		operation.Tags = []string{op.Tag}
	}
	for _, q := range op.QueryParams {
		schema := openapi3.NewStringSchema()
		if q.Type == "integer" {
			schema = openapi3.NewIntegerSchema()
		}
		operation.Parameters = append(operation.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(q.Name).WithSchema(schema),
		})
	}

	item.SetOperation(op.Method, operation)
}

// pathParams returns the {placeholders} of a chi pattern in order.
func pathParams(path string) []string {
	var names []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			names = append(names, seg[1:len(seg)-1])
		}
	}
	return names
}

// =============================================================================
// Schema Generation
// =============================================================================

// addSchema registers model under its type name and returns the $ref.
func (g *Generator) addSchema(spec *openapi3.T, model any) string {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if _, ok := spec.Components.Schemas[name]; !ok {
		spec.Components.Schemas[name] = g.extractSchema(t)
	}
	return "#/components/schemas/" + name
}

// extractSchema extracts an OpenAPI schema from a Go struct type.
func (g *Generator) extractSchema(t reflect.Type) *openapi3.SchemaRef {
	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip unexported fields
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		omitempty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, p := range parts[1:] {
				if p == "omitempty" {
					omitempty = true
				}
			}
		}

		if propSchema := g.goTypeToSchema(field.Type); propSchema != nil {
			schema.Properties[name] = propSchema
			if !omitempty && field.Type.Kind() != reflect.Ptr {
				schema.Required = append(schema.Required, name)
			}
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.goTypeToSchema(t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return g.extractSchema(t)

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}
