package plugins

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/eval"
	"github.com/openfroyo/nk/pkg/state"
)

func writePlugin(t *testing.T, dir, definition string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, DefinitionFile), definition, 0o644)
	writeFile(t, filepath.Join(dir, "run.sh"), "#!/bin/sh\n", 0o755)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, filepath.Join(root, "pkg"), "name: pkg\nexecutable: run.sh\ndependencies:\n  packages: curl\n")
	writePlugin(t, filepath.Join(root, "brew"), "name: brew\nexecutable: run.sh\nwhen: os == \"macos\"\n")
	writePlugin(t, filepath.Join(root, "files"), "name: files\nexecutable: run.sh\nafter: packages\n")

	var sources []config.PluginSource
	for _, name := range []string{"pkg", "brew", "missing", "files"} {
		sources = append(sources, source(t, filepath.Join(root, name)))
	}

	reg, err := Load(context.Background(), LoadOptions{
		Sources:   sources,
		Evaluator: eval.New(map[string]any{"os": "linux"}),
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var names []string
	var indexes []int
	for _, p := range reg.Plugins() {
		names = append(names, p.Name())
		indexes = append(indexes, p.Index)
	}
	if diff := cmp.Diff([]string{"pkg", "files"}, names); diff != "" {
		t.Errorf("plugins mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 3}, indexes); diff != "" {
		t.Errorf("indexes mismatch (-want +got):\n%s", diff)
	}

	if _, ok := reg.Get("brew"); ok {
		t.Errorf("brew should not apply on linux")
	}
	want := []state.Declaration{{Name: "packages", States: []any{"curl"}}}
	if diff := cmp.Diff(want, reg.Dependencies()); diff != "" {
		t.Errorf("Dependencies() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSkipsPluginForOtherPlatform(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, filepath.Join(root, "brew"), "name: brew\nexecutable: run.sh\nwhen: os == \"macos\"\n")

	reg, err := Load(context.Background(), LoadOptions{
		Sources:   []config.PluginSource{source(t, filepath.Join(root, "brew"))},
		Evaluator: eval.New(map[string]any{"os": "linux"}),
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Expected a plugin for another platform to be skipped, got: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Expected no plugins, got %d", reg.Len())
	}
}

func TestLoadRemoteFromInstallDir(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, filepath.Join(dir, "files"), "name: files\nexecutable: run.sh\n")
	writeFile(t, filepath.Join(dir, "files", VersionMarker), "v1.0.0\n", 0o644)

	reg, err := Load(context.Background(), LoadOptions{
		Sources: []config.PluginSource{source(t, "acme/tools#files")},
		Dir:     dir,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p, ok := reg.Get("files")
	if !ok {
		t.Fatal("files plugin not loaded")
	}
	if p.Version != "v1.0.0" {
		t.Errorf("Version = %q, want v1.0.0", p.Version)
	}
}

func TestLoadDuplicateNames(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, filepath.Join(root, "a"), "name: pkg\nexecutable: run.sh\n")
	writePlugin(t, filepath.Join(root, "b"), "name: pkg\nexecutable: run.sh\n")

	_, err := Load(context.Background(), LoadOptions{
		Sources: []config.PluginSource{source(t, filepath.Join(root, "a")), source(t, filepath.Join(root, "b"))},
		Logger:  zerolog.Nop(),
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate plugin name") {
		t.Fatalf("Expected duplicate name error, got %v", err)
	}
}

func TestLinkAndList(t *testing.T) {
	src := t.TempDir()
	writePlugin(t, src, "name: dev\nexecutable: run.sh\n")
	dir := t.TempDir()

	target, err := Link(filepath.Join(src, DefinitionFile), dir)
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if target != filepath.Join(dir, "dev") {
		t.Errorf("Link() = %q", target)
	}

	// Relinking replaces the existing link.
	if _, err := Link(src, dir); err != nil {
		t.Fatalf("relink error = %v", err)
	}

	writePlugin(t, filepath.Join(dir, "files"), "name: files\nexecutable: run.sh\n")
	writeFile(t, filepath.Join(dir, "files", VersionMarker), "v3.1.0\n", 0o644)

	got, err := List(dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []Installed{
		{Name: "dev", Path: src, Linked: true},
		{Name: "files", Path: filepath.Join(dir, "files"), Version: "v3.1.0"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	// An installed release is never replaced by a link.
	other := t.TempDir()
	writePlugin(t, other, "name: files\nexecutable: run.sh\n")
	if _, err := Link(other, dir); err == nil {
		t.Errorf("Expected error linking over an installed release")
	}
}

func TestListMissingDir(t *testing.T) {
	got, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil || got != nil {
		t.Errorf("List() = %v, %v; want nil, nil", got, err)
	}
}

func TestPack(t *testing.T) {
	root := t.TempDir()
	linux := filepath.Join(root, "linux")
	macos := filepath.Join(root, "macos")
	writePlugin(t, linux, "name: pkg\nexecutable: run.sh\nwhen:\n  - os == \"linux\"\n  - arch == \"x86_64\"\n")
	writePlugin(t, macos, "name: pkg\nexecutable: run.sh\nwhen: os == \"macos\"\n")
	out := filepath.Join(root, "dist")

	m, err := Pack(PackOptions{
		Owner:       "acme",
		Repo:        "tools",
		Version:     "v1.0.0",
		Output:      out,
		Definitions: []string{filepath.Join(linux, DefinitionFile), filepath.Join(macos, DefinitionFile)},
	})
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	want := &Manifest{
		Owner: "acme", Repo: "tools", Version: "v1.0.0",
		Plugins: []ManifestPlugin{{
			Name: "pkg",
			Assets: []ManifestAsset{
				{File: "pkg-linux-x86_64.tar.gz", When: []string{`os == "linux"`, `arch == "x86_64"`}},
				{File: "pkg-macos.tar.gz", When: []string{`os == "macos"`}},
			},
		}},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Pack() mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(filepath.Join(out, ManifestFile))
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	parsed, err := ParseManifest(config.NewSchemaRegistry(), data)
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if diff := cmp.Diff(want, parsed); diff != "" {
		t.Errorf("written manifest mismatch (-want +got):\n%s", diff)
	}

	f, err := os.Open(filepath.Join(out, "pkg-linux-x86_64.tar.gz"))
	if err != nil {
		t.Fatalf("archive not written: %v", err)
	}
	defer f.Close()
	dest := t.TempDir()
	if err := Extract(f, dest); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, err := LoadDefinition(filepath.Join(dest, DefinitionFile), nil); err != nil {
		t.Errorf("packed definition unreadable: %v", err)
	}
}
