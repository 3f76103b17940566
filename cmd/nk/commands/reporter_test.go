package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/openfroyo/nk/pkg/engine"
	"github.com/openfroyo/nk/pkg/plugins"
	"github.com/openfroyo/nk/pkg/runner/protocol"
)

func TestTerminalReporter(t *testing.T) {
	p := &plugins.Plugin{Definition: plugins.Definition{Name: "pkg"}}
	results := []*protocol.ProvisionStateOutput{
		{Status: protocol.StatusSuccess, Changed: true, Description: "installed git"},
		{Status: protocol.StatusSuccess, Description: "curl is installed"},
		{Status: protocol.StatusFailed, Description: "install vim", Output: "E: Unable to locate package\n"},
	}

	tests := []struct {
		name          string
		showUnchanged bool
		want          string
	}{
		{
			name: "hide unchanged",
			want: "▸ pkg (3 states)\n" +
				"  ✓ installed git\n" +
				"  ✗ install vim\n" +
				"    E: Unable to locate package\n" +
				"  ✗ plugin exited with status 1\n",
		},
		{
			name:          "show unchanged",
			showUnchanged: true,
			want: "▸ pkg (3 states)\n" +
				"  ✓ installed git\n" +
				"  • curl is installed\n" +
				"  ✗ install vim\n" +
				"    E: Unable to locate package\n" +
				"  ✗ plugin exited with status 1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := newTerminalReporter(&buf, tt.showUnchanged)

			r.PluginStarted(p, len(results))
			for _, out := range results {
				r.Result(p, out, engine.Classify(out))
			}
			r.PluginFinished(p, errors.New("plugin exited with status 1"))

			if got := buf.String(); got != tt.want {
				t.Errorf("Expected output:\n%s\ngot:\n%s", tt.want, got)
			}
		})
	}
}

func TestTerminalReporterSummary(t *testing.T) {
	tests := []struct {
		name    string
		summary engine.Summary
		want    string
	}{
		{
			name:    "success",
			summary: engine.Summary{Changed: 2, Unchanged: 3},
			want:    "2 changed, 3 unchanged, 0 failed",
		},
		{
			name:    "failed with unmatched",
			summary: engine.Summary{Changed: 1, Failed: 1, Invalid: 2, Unmatched: 1},
			want:    "1 changed, 0 unchanged, 1 failed, 2 invalid, 1 unmatched",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newTerminalReporter(&buf, false).Summary(&tt.summary)
			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Errorf("Expected %q, got: %q", tt.want, got)
			}
		})
	}
}

func TestWritePlan(t *testing.T) {
	pkg := &plugins.Plugin{Definition: plugins.Definition{Name: "pkg"}}
	files := &plugins.Plugin{Definition: plugins.Definition{Name: "files"}}
	plan := &engine.Plan{
		Sets: []*engine.ExecutionSet{
			{Plugin: pkg, States: []engine.DeclaredState{
				{Declaration: "packages", State: "git"},
				{Declaration: "packages", State: "curl"},
			}},
			{Plugin: files, States: []engine.DeclaredState{
				{Declaration: "dotfiles", State: ".vimrc"},
			}},
		},
		Unmatched: []engine.DeclaredState{{Declaration: "services", State: "sshd"}},
	}

	var buf bytes.Buffer
	writePlan(&buf, plan)

	want := "1. pkg (2 states): packages\n" +
		"2. files (1 state): dotfiles\n" +
		"- services: no plugin provisions this state\n"
	if got := buf.String(); got != want {
		t.Errorf("Expected plan:\n%s\ngot:\n%s", want, got)
	}
}
