// Package schemas builds the JSON Schemas that describe tool arguments and
// validates model-supplied arguments against them.
package schemas

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/flynn-ai/tripwise/internal/errors"
)

// Schema defines a tool's name, description and argument schema.
type Schema struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`

	resolved *jsonschema.Resolved
	err      error
}

// SchemaBuilder provides a fluent interface for building tool schemas.
type SchemaBuilder struct {
	schema *Schema
}

// NewSchema creates a new schema builder with the given name and description.
func NewSchema(name, description string) *SchemaBuilder {
	return &SchemaBuilder{
		schema: &Schema{
			Name:        name,
			Description: description,
			Parameters: &jsonschema.Schema{
				Type:       "object",
				Properties: make(map[string]*jsonschema.Schema),
			},
		},
	}
}

// AddParam adds a parameter to the schema.
func (b *SchemaBuilder) AddParam(name, paramType, description string, required bool) *SchemaBuilder {
	return b.add(name, &jsonschema.Schema{Type: paramType, Description: description}, required)
}

// AddParamWithEnum adds a string parameter with an enum constraint.
func (b *SchemaBuilder) AddParamWithEnum(name, description string, enum []string, required bool) *SchemaBuilder {
	values := make([]any, len(enum))
	for i, v := range enum {
		values[i] = v
	}
	return b.add(name, &jsonschema.Schema{Type: "string", Description: description, Enum: values}, required)
}

// AddArrayParam adds an array parameter whose items have itemType.
func (b *SchemaBuilder) AddArrayParam(name, itemType, description string, required bool) *SchemaBuilder {
	return b.add(name, &jsonschema.Schema{
		Type:        "array",
		Description: description,
		Items:       &jsonschema.Schema{Type: itemType},
		MinItems:    jsonschema.Ptr(1),
	}, required)
}

// WithMinimum sets an inclusive lower bound on a numeric parameter.
func (b *SchemaBuilder) WithMinimum(name string, min float64) *SchemaBuilder {
	if p, ok := b.schema.Parameters.Properties[name]; ok {
		p.Minimum = jsonschema.Ptr(min)
	}
	return b
}

// WithExclusiveMinimum sets an exclusive lower bound on a numeric parameter.
func (b *SchemaBuilder) WithExclusiveMinimum(name string, min float64) *SchemaBuilder {
	if p, ok := b.schema.Parameters.Properties[name]; ok {
		p.ExclusiveMinimum = jsonschema.Ptr(min)
	}
	return b
}

// WithDefault sets the value used when an optional parameter is omitted.
func (b *SchemaBuilder) WithDefault(name string, value any) *SchemaBuilder {
	if p, ok := b.schema.Parameters.Properties[name]; ok {
		if raw, err := json.Marshal(value); err == nil {
			p.Default = raw
		}
	}
	return b
}

func (b *SchemaBuilder) add(name string, prop *jsonschema.Schema, required bool) *SchemaBuilder {
	b.schema.Parameters.Properties[name] = prop
	b.schema.Parameters.PropertyOrder = append(b.schema.Parameters.PropertyOrder, name)
	if required {
		b.schema.Parameters.Required = append(b.schema.Parameters.Required, name)
	}
	return b
}

// Build resolves and returns the constructed schema. A schema that fails to
// resolve rejects every call in Validate.
func (b *SchemaBuilder) Build() *Schema {
	s := b.schema
	s.resolved, s.err = s.Parameters.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	return s
}

// Validate fills defaults into args, coerces numeric strings for numeric
// parameters, and checks args against the schema.
func (s *Schema) Validate(args map[string]any) error {
	if s.err != nil {
		return errors.Wrap(s.err, errors.CodeToolInvalidParams, "invalid schema for "+s.Name, errors.CategorySystem)
	}

	s.coerce(args)
	if err := s.resolved.ApplyDefaults(&args); err != nil {
		return errors.Wrap(err, errors.CodeToolInvalidParams, "cannot apply defaults for "+s.Name, errors.CategoryUser)
	}
	if err := s.resolved.Validate(args); err != nil {
		return errors.NewBuilder(errors.CodeToolInvalidParams, fmt.Sprintf("invalid arguments for %s: %v", s.Name, err)).
			User().
			WithSuggestion("Required: " + strings.Join(s.Parameters.Required, ", ")).
			Build()
	}
	return nil
}

// coerce turns "3" into 3 for number and integer parameters. Models often
// quote numbers.
func (s *Schema) coerce(args map[string]any) {
	for name, prop := range s.Parameters.Properties {
		str, ok := args[name].(string)
		if !ok || (prop.Type != "number" && prop.Type != "integer") {
			continue
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			args[name] = f
		}
	}
}

// Registry holds tool schemas in registration order.
type Registry struct {
	schemas map[string]*Schema
	order   []string
}

// NewRegistry creates a new empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds a schema to the registry. Re-registering a name replaces it.
func (r *Registry) Register(schema *Schema) {
	if _, exists := r.schemas[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.schemas[schema.Name] = schema
}

// Get retrieves a schema by name.
func (r *Registry) Get(name string) (*Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// List returns all registered schema names in registration order.
func (r *Registry) List() []string {
	return append([]string(nil), r.order...)
}

// All returns the schemas in registration order.
func (r *Registry) All() []*Schema {
	out := make([]*Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}
