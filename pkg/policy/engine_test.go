package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

const pinPolicy = `package test.pins

import rego.v1

deny contains msg if {
	input.declaration == "packages"
	not input.state.version
	msg := sprintf("%s must pin a version", [input.state.name])
}

deny contains {"message": "prefer flatpak", "severity": "warning"} if {
	input.state.name == "firefox"
}
`

func newEngine(t *testing.T, policies ...Policy) *Engine {
	t.Helper()
	eng, err := NewEngine(context.Background(), zerolog.Nop(), policies)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return eng
}

func TestEvaluate(t *testing.T) {
	eng := newEngine(t, Policy{Name: "pins.rego", Rego: pinPolicy})

	inputs := []Input{
		{Declaration: "packages", State: map[string]any{"name": "ripgrep", "version": "14"}, Plugin: PluginInfo{Name: "pkg"}},
		{Declaration: "packages", State: map[string]any{"name": "fd"}, Plugin: PluginInfo{Name: "pkg"}},
		{Declaration: "apps", State: map[string]any{"name": "firefox"}, Plugin: PluginInfo{Name: "flatpak"}},
	}

	result, err := eng.Evaluate(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	wantViolations := []Violation{{
		Policy:      "pins.rego",
		Declaration: "packages",
		Plugin:      "pkg",
		Message:     "fd must pin a version",
		Severity:    SeverityError,
	}}
	if diff := cmp.Diff(wantViolations, result.Violations); diff != "" {
		t.Errorf("violations mismatch (-want +got):\n%s", diff)
	}

	wantWarnings := []Violation{{
		Policy:      "pins.rego",
		Declaration: "apps",
		Plugin:      "flatpak",
		Message:     "prefer flatpak",
		Severity:    SeverityWarning,
	}}
	if diff := cmp.Diff(wantWarnings, result.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}

	if result.Allowed() {
		t.Error("Allowed() = true with an error violation")
	}
}

func TestEvaluateNoPolicies(t *testing.T) {
	eng := newEngine(t)
	result, err := eng.Evaluate(context.Background(), []Input{{Declaration: "d", State: "x"}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed() || len(result.Warnings) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestNewEngineRejectsInvalidRego(t *testing.T) {
	_, err := NewEngine(context.Background(), zerolog.Nop(), []Policy{
		{Name: "broken.rego", Rego: "package broken\n\ndeny contains msg if {"},
	})
	if err == nil || !strings.Contains(err.Error(), "broken.rego") {
		t.Fatalf("NewEngine() error = %v, want compile error naming broken.rego", err)
	}
}

func TestBuiltinUnrenderedTemplates(t *testing.T) {
	p, err := Builtin("unrendered-templates")
	if err != nil {
		t.Fatal(err)
	}
	eng := newEngine(t, p)

	result, err := eng.Evaluate(context.Background(), []Input{
		{Declaration: "files", State: map[string]any{"path": "/home/{{ user }}/.bashrc"}, Plugin: PluginInfo{Name: "files"}},
		{Declaration: "files", State: map[string]any{"path": "/etc/hosts"}, Plugin: PluginInfo{Name: "files"}},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(result.Violations) != 1 {
		t.Fatalf("got %d violations, want 1: %+v", len(result.Violations), result.Violations)
	}
	if !strings.Contains(result.Violations[0].Message, "{{ user }}") {
		t.Errorf("message %q does not quote the value", result.Violations[0].Message)
	}
}

func TestBuiltinReleasedPlugins(t *testing.T) {
	p, err := Builtin("released-plugins")
	if err != nil {
		t.Fatal(err)
	}
	eng := newEngine(t, p)

	result, err := eng.Evaluate(context.Background(), []Input{
		{Declaration: "packages", State: "git", Plugin: PluginInfo{Name: "pkg", Version: "v1.0.0"}},
		{Declaration: "packages", State: "git", Plugin: PluginInfo{Name: "dev"}},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed() {
		t.Errorf("warnings must not block: %+v", result.Violations)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Plugin != "dev" {
		t.Errorf("unexpected warnings %+v", result.Warnings)
	}
}

func TestUnknownBuiltin(t *testing.T) {
	if _, err := Builtin("nope"); err == nil {
		t.Fatal("expected error for unknown built-in")
	}
}
