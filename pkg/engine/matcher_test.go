package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/nk/pkg/eval"
	"github.com/openfroyo/nk/pkg/plugins"
	"github.com/openfroyo/nk/pkg/state"
)

func testPlugin(name string, index int, when []string, after ...string) *plugins.Plugin {
	return &plugins.Plugin{
		Path:  "/plugins/" + name,
		Index: index,
		Definition: plugins.Definition{
			Name:       name,
			Executable: "run.sh",
			Provision:  plugins.Provision{When: when},
			After:      after,
		},
	}
}

func setStates(sets []*ExecutionSet) map[string][]DeclaredState {
	out := make(map[string][]DeclaredState, len(sets))
	for _, s := range sets {
		out[s.Plugin.Name()] = s.States
	}
	return out
}

func TestMatch(t *testing.T) {
	ev := eval.New(map[string]any{"os": "linux"})
	pkg := testPlugin("pkg", 0, []string{`declaration == "packages"`})
	files := testPlugin("files", 1, []string{`declaration == "files"`, `os == "linux"`})
	catchall := testPlugin("catchall", 2, []string{`"path" in state`})

	declarations := []state.Declaration{
		{Name: "packages", States: []any{"git", "curl"}},
		{Name: "files", States: []any{map[string]any{"path": "~/.gitconfig"}}},
		{Name: "services", States: []any{"sshd"}},
	}

	result, err := Match(ev, []*plugins.Plugin{pkg, files, catchall}, declarations)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(result.Sets) != 2 {
		t.Fatalf("Expected 2 sets, got %d", len(result.Sets))
	}
	if result.Sets[0].Plugin != pkg || result.Sets[1].Plugin != files {
		t.Errorf("Expected sets in first-match order, got %s, %s",
			result.Sets[0].Plugin.Name(), result.Sets[1].Plugin.Name())
	}

	wantStates := map[string][]DeclaredState{
		"pkg": {
			{Declaration: "packages", State: "git"},
			{Declaration: "packages", State: "curl"},
		},
		"files": {
			{Declaration: "files", State: map[string]any{"path": "~/.gitconfig"}},
		},
	}
	if diff := cmp.Diff(wantStates, setStates(result.Sets)); diff != "" {
		t.Errorf("sets mismatch (-want +got):\n%s", diff)
	}

	wantUnmatched := []DeclaredState{{Declaration: "services", State: "sshd"}}
	if diff := cmp.Diff(wantUnmatched, result.Unmatched); diff != "" {
		t.Errorf("unmatched mismatch (-want +got):\n%s", diff)
	}

	if n := result.StateCount(); n != 3 {
		t.Errorf("Expected 3 matched states, got %d", n)
	}
}

func TestMatchFirstPluginWins(t *testing.T) {
	ev := eval.New(nil)
	first := testPlugin("first", 0, []string{`declaration == "packages"`})
	second := testPlugin("second", 1, nil)

	result, err := Match(ev, []*plugins.Plugin{first, second}, []state.Declaration{
		{Name: "packages", States: []any{"git"}},
		{Name: "other", States: []any{"x"}},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := map[string][]string{}
	for _, set := range result.Sets {
		got[set.Plugin.Name()] = set.Declarations()
	}
	want := map[string][]string{"first": {"packages"}, "second": {"other"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("declarations mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchEvaluationError(t *testing.T) {
	ev := eval.New(nil)
	broken := testPlugin("broken", 0, []string{`declaration ==`})

	_, err := Match(ev, []*plugins.Plugin{broken}, []state.Declaration{
		{Name: "packages", States: []any{"git"}},
	})
	if err == nil {
		t.Fatal("Expected an evaluation error")
	}
	if !IsEvaluation(err) {
		t.Errorf("Expected evaluation error, got %s: %v", ClassOf(err), err)
	}
}

func TestFilter(t *testing.T) {
	ev := eval.New(nil)
	pkg := testPlugin("pkg", 0, nil)
	files := testPlugin("files", 1, nil)

	sets := []*ExecutionSet{
		{Plugin: pkg, States: []DeclaredState{
			{Declaration: "packages", State: "git"},
			{Declaration: "packages", State: "curl"},
		}},
		{Plugin: files, States: []DeclaredState{
			{Declaration: "files", State: map[string]any{"path": "a"}},
		}},
	}

	tests := []struct {
		name string
		rule string
		want map[string][]DeclaredState
	}{
		{
			name: "by state",
			rule: `state == "git"`,
			want: map[string][]DeclaredState{
				"pkg": {{Declaration: "packages", State: "git"}},
			},
		},
		{
			name: "by declaration",
			rule: `declaration == "files"`,
			want: map[string][]DeclaredState{
				"files": {{Declaration: "files", State: map[string]any{"path": "a"}}},
			},
		},
		{
			name: "evaluation errors do not select",
			rule: `state.path == "a"`,
			want: map[string][]DeclaredState{
				"files": {{Declaration: "files", State: map[string]any{"path": "a"}}},
			},
		},
		{
			name: "nothing selected",
			rule: `false`,
			want: map[string][]DeclaredState{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(ev, sets, tt.rule)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if diff := cmp.Diff(tt.want, setStates(got)); diff != "" {
				t.Errorf("filtered sets mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if len(sets[0].States) != 2 {
		t.Errorf("Filter must not modify its input, got %d states", len(sets[0].States))
	}
}

func TestFilterInvalidRule(t *testing.T) {
	_, err := Filter(eval.New(nil), nil, `state ==`)
	if err == nil {
		t.Fatal("Expected an error for an invalid filter")
	}
	if !errors.Is(err, &EngineError{Class: ErrorClassEvaluation, Code: ErrCodeInvalidFilter}) {
		t.Errorf("Expected invalid filter error, got: %v", err)
	}
}
