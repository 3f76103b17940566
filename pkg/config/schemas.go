package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/jsonschema"
)

// ManifestSchema is the name of the built-in release manifest schema.
const ManifestSchema = "manifest"

// SchemaError lists every problem found while validating one document
// against a schema.
type SchemaError struct {
	Schema   string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("does not match schema %s: %s", e.Schema, strings.Join(e.Problems, "; "))
}

// SchemaRegistry manages CUE schemas for validation. It is safe for
// concurrent use.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.Mutex
}

// NewSchemaRegistry creates a registry holding the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterDefinition(ManifestSchema, builtinManifestSchema, "#Manifest"); err != nil {
		panic(fmt.Sprintf("built-in manifest schema: %v", err))
	}

	return sr
}

// RegisterSchema compiles and registers a CUE schema under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// RegisterDefinition compiles src and registers the definition at path
// (for example "#Manifest") under name.
func (sr *SchemaRegistry) RegisterDefinition(name, src, path string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(src)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(path))
	if err := def.Err(); err != nil {
		return fmt.Errorf("schema %s has no definition %s: %w", name, path, err)
	}

	sr.schemas[name] = def
	return nil
}

// RegisterJSONSchema converts a JSON Schema document (already decoded into
// Go values) to CUE and registers it under name.
func (sr *SchemaRegistry) RegisterJSONSchema(name string, schema any) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	raw := sr.ctx.Encode(schema)
	if err := raw.Err(); err != nil {
		return fmt.Errorf("failed to encode schema %s: %w", name, err)
	}

	f, err := jsonschema.Extract(raw, &jsonschema.Config{})
	if err != nil {
		return fmt.Errorf("failed to convert schema %s: %w", name, err)
	}

	val := sr.ctx.BuildFile(f)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to build schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// HasSchema reports whether a schema is registered under name.
func (sr *SchemaRegistry) HasSchema(name string) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	_, ok := sr.schemas[name]
	return ok
}

// Validate checks data against a named schema. A *SchemaError lists every
// violation.
func (sr *SchemaRegistry) Validate(name string, data any) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[name]
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Schema: name, Problems: problems(err)}
	}

	return nil
}

// ListSchemas returns the registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func problems(err error) []string {
	errs := cueerrors.Errors(err)
	out := make([]string, 0, len(errs))
	seen := make(map[string]bool, len(errs))
	for _, e := range errs {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := e.Path(); len(path) > 0 {
			msg = strings.Join(path, ".") + ": " + msg
		}
		if !seen[msg] {
			seen[msg] = true
			out = append(out, msg)
		}
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}

const builtinManifestSchema = `
// Release manifest published alongside plugin assets
#Manifest: {
	owner:   string & !=""
	repo:    string & !=""
	version: string & !=""
	plugins: [...#ManifestPlugin]
}

#ManifestPlugin: {
	name: string & !=""
	assets: [...#ManifestAsset]
}

#ManifestAsset: {
	file: string & =~"\\.tar\\.gz$"
	when?: string | [...string]
}
`
