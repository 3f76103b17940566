package state

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/nk/pkg/eval"
)

func setupSources(t *testing.T) (string, string) {
	t.Helper()
	primary := t.TempDir()
	secondary := t.TempDir()

	writeFile(t, filepath.Join(primary, "base.yml"), `
vars:
  editor: vim
  git:
    name: me
packages:
  - git
  - "{{ editor }}"
---
when: os == "macos"
packages: iterm2
`)
	writeFile(t, filepath.Join(primary, "linux.yml"), `
when: os == "linux"
vars:
  git:
    email: me@example.com
files:
  path: "{{ home }}/.gitconfig"
  email: "{{ git.email }}"
`)
	writeFile(t, filepath.Join(secondary, "extra.yml"), `
when: '"dev" in roles'
packages: [gcc]
`)
	return primary, secondary
}

func TestResolve(t *testing.T) {
	primary, secondary := setupSources(t)
	vars := map[string]any{"os": "linux", "home": "/home/me", "roles": []any{"dev"}}

	got, err := Resolve(eval.New(vars), Options{
		Sources:      []string{primary, secondary},
		Vars:         vars,
		Dependencies: []Declaration{{Name: "packages", States: []any{"curl"}}},
		Render:       true,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	packages, _ := got.Declaration("packages")
	if diff := cmp.Diff([]any{"curl", "git", "vim", "gcc"}, packages.States); diff != "" {
		t.Errorf("packages mismatch (-want +got):\n%s", diff)
	}

	files, _ := got.Declaration("files")
	want := []any{map[string]any{"path": "/home/me/.gitconfig", "email": "me@example.com"}}
	if diff := cmp.Diff(want, files.States); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	wantGit := map[string]any{"name": "me", "email": "me@example.com"}
	if diff := cmp.Diff(wantGit, got.Vars["git"]); diff != "" {
		t.Errorf("git vars mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveWithoutRender(t *testing.T) {
	primary, _ := setupSources(t)
	vars := map[string]any{"os": "linux", "roles": []any{}}

	got, err := Resolve(eval.New(vars), Options{Sources: []string{primary}, Vars: vars})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	files, _ := got.Declaration("files")
	path := files.States[0].(map[string]any)["path"]
	if path != "{{ home }}/.gitconfig" {
		t.Errorf("Expected template to be left as is, got %v", path)
	}
}

func TestResolveConditionError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yml")
	writeFile(t, bad, "when: nonexistent == 1\npackages: git\n")

	_, err := Resolve(eval.New(nil), Options{Sources: []string{dir}})
	if err == nil {
		t.Fatal("Expected evaluation error")
	}
	if !strings.Contains(err.Error(), bad) || !strings.Contains(err.Error(), "nonexistent == 1") {
		t.Errorf("Expected error to name file and rule, got: %v", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	primary, secondary := setupSources(t)
	vars := map[string]any{"os": "linux", "home": "/home/me", "roles": []any{"dev"}}
	opts := Options{Sources: []string{primary, secondary}, Vars: vars, Render: true}

	var outputs []string
	for i := 0; i < 2; i++ {
		got, err := Resolve(eval.New(vars), opts)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		b, err := yaml.Marshal(got)
		if err != nil {
			t.Fatalf("Failed to marshal: %v", err)
		}
		outputs = append(outputs, string(b))
	}

	if outputs[0] != outputs[1] {
		t.Errorf("Expected identical output across runs:\n%s\n---\n%s", outputs[0], outputs[1])
	}
	if !strings.Contains(outputs[0], "declarations:") {
		t.Errorf("Expected declarations section, got:\n%s", outputs[0])
	}
}

func TestResolvedGroupMarshalJSON(t *testing.T) {
	g := Fold(map[string]any{"a": 1}, nil, []Group{{
		Declarations: []Declaration{
			{Name: "zeta", States: []any{"z"}},
			{Name: "alpha", States: []any{map[string]any{"k": "v"}}},
		},
	}})

	b, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := `{"vars":{"a":1},"declarations":{"zeta":["z"],"alpha":[{"k":"v"}]}}`
	if string(b) != want {
		t.Errorf("MarshalJSON() = %s, want %s", b, want)
	}
}
