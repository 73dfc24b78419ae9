package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/initializ/foundry/core/runcmd"
	"github.com/initializ/foundry/core/schemas"
)

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		loader := gojsonschema.NewBytesLoader(schemas.FoundryV1Schema)
		compiledSchema, compileErr = gojsonschema.NewSchema(loader)
	})
	return compiledSchema, compileErr
}

// ValidationResult holds errors and warnings from config validation.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ValidateSchema checks raw foundry.yaml bytes against the embedded JSON
// schema. It returns one description per violation, and an error only
// when the document or the schema cannot be processed.
func ValidateSchema(data []byte) ([]string, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling foundry schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing foundry config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting foundry config to JSON: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("validating foundry config: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}

// Validate checks raw foundry.yaml bytes: schema violations first, then
// the cross-field rules the schema cannot express.
func Validate(data []byte) (*ValidationResult, error) {
	schemaErrs, err := ValidateSchema(data)
	if err != nil {
		return nil, err
	}
	r := &ValidationResult{Errors: schemaErrs}
	if len(schemaErrs) > 0 {
		return r, nil
	}

	f, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	other := ValidateFile(f)
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	return r, nil
}

// ValidateFile checks a parsed File for errors and warnings.
func ValidateFile(f *File) *ValidationResult {
	r := &ValidationResult{}

	loc, err := runcmd.ParseLocality(f.Runtime.Locality)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("runtime.locality: %v", err))
	}
	needsCommand := loc == runcmd.LocalityRuntime || loc == runcmd.LocalityContainer
	if needsCommand && len(f.Runtime.Command) == 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("runtime.command is required for locality %q", loc))
	}
	if !needsCommand && len(f.Runtime.Command) > 0 {
		r.Warnings = append(r.Warnings, "runtime.command is ignored unless locality is runtime or container")
	}

	if f.Parallelism < 0 {
		r.Errors = append(r.Errors, "parallelism must not be negative")
	}

	if f.BuildDir != "" && f.BuildDir == f.SrcDir {
		r.Warnings = append(r.Warnings, "builddir equals srcdir; rebuild will not remove it")
	}

	seen := make(map[string]bool)
	for _, name := range f.DisabledStages {
		if seen[name] {
			r.Warnings = append(r.Warnings, fmt.Sprintf("disabled_stages: %q listed twice", name))
		}
		seen[name] = true
	}

	if _, ok := f.Environment["PATH"]; ok && loc == runcmd.LocalityContainer {
		r.Warnings = append(r.Warnings, "environment.PATH is dropped for the container locality")
	}

	return r
}
