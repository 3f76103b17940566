package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/policy"
)

var stringSchema = map[string]any{"type": "string", "minLength": 1}

func TestValidate(t *testing.T) {
	pkg := testPlugin("pkg", 0, nil)
	pkg.Definition.Schema = stringSchema
	files := testPlugin("files", 1, nil)

	sets := []*ExecutionSet{
		{Plugin: pkg, States: []DeclaredState{
			{Declaration: "packages", State: "git"},
			{Declaration: "packages", State: 42},
		}},
		{Plugin: files, States: []DeclaredState{
			{Declaration: "files", State: map[string]any{"path": "a"}},
		}},
	}

	v := &Validator{Schemas: config.NewSchemaRegistry()}
	err := v.Validate(context.Background(), sets)
	if err == nil {
		t.Fatal("Expected a validation error")
	}
	if !IsValidation(err) {
		t.Errorf("Expected validation error, got %s: %v", ClassOf(err), err)
	}
	if !errors.Is(err, &EngineError{Class: ErrorClassValidation, Code: ErrCodeSchema}) {
		t.Errorf("Expected a schema violation in the chain, got: %v", err)
	}

	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("Expected *EngineError, got %T", err)
	}
	if n := ee.Details["violations"]; n != 1 {
		t.Errorf("Expected 1 violation, got %v", n)
	}
	if !strings.Contains(err.Error(), "packages state 1 (42)") {
		t.Errorf("Expected the failing state in the message, got: %v", err)
	}
	if !v.Schemas.HasSchema(SchemaName("pkg")) {
		t.Errorf("Expected the plugin schema to be registered")
	}
}

func TestValidateValidStates(t *testing.T) {
	pkg := testPlugin("pkg", 0, nil)
	pkg.Definition.Schema = stringSchema

	v := &Validator{Schemas: config.NewSchemaRegistry()}
	err := v.Validate(context.Background(), []*ExecutionSet{
		{Plugin: pkg, States: []DeclaredState{{Declaration: "packages", State: "git"}}},
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestValidateInvalidSchema(t *testing.T) {
	pkg := testPlugin("pkg", 0, nil)
	pkg.Definition.Schema = map[string]any{"type": 12}

	v := &Validator{Schemas: config.NewSchemaRegistry()}
	err := v.Validate(context.Background(), []*ExecutionSet{
		{Plugin: pkg, States: []DeclaredState{{Declaration: "packages", State: "git"}}},
	})
	if !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got %s: %v", ClassOf(err), err)
	}
}

const versionPolicy = `package nk.versions

import rego.v1

deny contains msg if {
	input.declaration == "packages"
	input.state == "vim"
	msg := "use neovim"
}

deny contains {"message": "unreleased plugin", "severity": "warning"} if {
	not input.plugin.version
}
`

func TestValidatePolicies(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), zerolog.Nop(), []policy.Policy{
		{Name: "versions.rego", Rego: versionPolicy, Severity: policy.SeverityError},
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	reporter := &recordingReporter{}
	v := &Validator{
		Schemas:  config.NewSchemaRegistry(),
		Policies: engine,
		Reporter: reporter,
	}

	pkg := testPlugin("pkg", 0, nil)
	err = v.Validate(context.Background(), []*ExecutionSet{
		{Plugin: pkg, States: []DeclaredState{
			{Declaration: "packages", State: "vim"},
			{Declaration: "packages", State: "git"},
		}},
	})
	if !errors.Is(err, &EngineError{Class: ErrorClassValidation, Code: ErrCodePolicy}) {
		t.Fatalf("Expected a policy violation, got: %v", err)
	}
	if !strings.Contains(err.Error(), "use neovim") {
		t.Errorf("Expected the policy message, got: %v", err)
	}

	want := []string{"warning unreleased plugin", "warning unreleased plugin"}
	if diff := cmp.Diff(want, reporter.calls); diff != "" {
		t.Errorf("reporter calls mismatch (-want +got):\n%s", diff)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		state any
		want  string
	}{
		{"short", "git", "git"},
		{"exactly forty", strings.Repeat("a", 40), strings.Repeat("a", 40)},
		{"long ascii", strings.Repeat("a", 41), strings.Repeat("a", 37) + "..."},
		{"long multibyte", strings.Repeat("é", 50), strings.Repeat("é", 37) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describe(tt.state)
			if got != tt.want {
				t.Errorf("Expected %q, got: %q", tt.want, got)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Expected valid UTF-8, got: %q", got)
			}
		})
	}
}
