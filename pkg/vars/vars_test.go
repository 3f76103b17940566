package vars

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDetect(t *testing.T) {
	osRelease := filepath.Join(t.TempDir(), "os-release")
	if err := os.WriteFile(osRelease, []byte("NAME=\"Ubuntu\"\nID=ubuntu\nID_LIKE=debian\n"), 0o644); err != nil {
		t.Fatalf("Failed to write os-release: %v", err)
	}

	tests := []struct {
		name     string
		detector Detector
		want     System
		wantErr  bool
	}{
		{
			name:     "linux amd64",
			detector: Detector{GOOS: "linux", GOARCH: "amd64", OSReleasePath: osRelease},
			want:     System{Distro: "ubuntu", OS: "linux", Family: "unix", Arch: "x86_64"},
		},
		{
			name: "macos arm64",
			detector: Detector{GOOS: "darwin", GOARCH: "arm64", MacOSVersion: func() (string, error) {
				return "14.5\n", nil
			}},
			want: System{Distro: "sonoma", OS: "macos", Family: "unix", Arch: "aarch64"},
		},
		{
			name:     "windows",
			detector: Detector{GOOS: "windows", GOARCH: "amd64"},
			want:     System{Distro: "windows", OS: "windows", Family: "windows", Arch: "x86_64"},
		},
		{
			name:     "unsupported os",
			detector: Detector{GOOS: "plan9", GOARCH: "amd64"},
			wantErr:  true,
		},
		{
			name:     "unsupported arch",
			detector: Detector{GOOS: "linux", GOARCH: "riscv64"},
			wantErr:  true,
		},
		{
			name: "sw_vers failure",
			detector: Detector{GOOS: "darwin", GOARCH: "arm64", MacOSVersion: func() (string, error) {
				return "", errors.New("not found")
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.detector.Detect()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Detect() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDistroFromOSRelease(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain id", "ID=arch\n", "arch"},
		{"quoted id", "ID=\"fedora\"\n", "fedora"},
		{"alias", "ID=linuxmint\nID_LIKE=\"ubuntu debian\"\n", "mint"},
		{"rhel", "ID=\"rhel\"\n", "redhat_enterprise"},
		{"unknown falls back to id_like", "ID=zorin\nID_LIKE=\"ubuntu debian\"\n", "ubuntu"},
		{"unknown", "ID=somethingelse\n", "linux"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "os-release-"+string(rune('a'+i)))
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("Failed to write: %v", err)
			}
			if got := DistroFromOSRelease(path); got != tt.want {
				t.Errorf("DistroFromOSRelease() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := DistroFromOSRelease(filepath.Join(dir, "missing")); got != "linux" {
		t.Errorf("Expected linux for missing file, got %q", got)
	}
}

func TestMacOSDistro(t *testing.T) {
	tests := map[string]string{
		"15.0":    "sequoia",
		"11.7.10": "big_sur",
		"10.15.7": "catalina",
		"10.13":   "high_sierra",
	}
	for version, want := range tests {
		got, err := MacOSDistro(version)
		if err != nil {
			t.Errorf("MacOSDistro(%q) error: %v", version, err)
			continue
		}
		if got != want {
			t.Errorf("MacOSDistro(%q) = %q, want %q", version, got, want)
		}
	}

	if _, err := MacOSDistro("9.2"); err == nil {
		t.Error("Expected error for unrecognized version")
	}
}

func TestGlobalsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nk", "globals.yml")

	g, err := LoadGlobals(path)
	if err != nil {
		t.Fatalf("Expected missing globals to load empty, got: %v", err)
	}
	if len(g.Vars) != 0 {
		t.Errorf("Expected no vars, got %v", g.Vars)
	}

	roles, err := ParseValue("[desktop, dev]")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	g.Set("roles", roles)
	g.Set("machine", "laptop")

	if err := g.Save(path); err != nil {
		t.Fatalf("Expected no error saving, got: %v", err)
	}

	loaded, err := LoadGlobals(path)
	if err != nil {
		t.Fatalf("Expected no error loading, got: %v", err)
	}
	want := map[string]any{"roles": []any{"desktop", "dev"}, "machine": "laptop"}
	if diff := cmp.Diff(want, loaded.Vars); diff != "" {
		t.Errorf("globals mismatch (-want +got):\n%s", diff)
	}
}

func TestOverlay(t *testing.T) {
	base := map[string]any{"machine": "host", "roles": []any{}, "os": "linux"}
	top := map[string]any{"machine": "laptop", "roles": []any{"dev"}}

	want := map[string]any{"machine": "laptop", "roles": []any{"dev"}, "os": "linux"}
	if diff := cmp.Diff(want, Overlay(base, top)); diff != "" {
		t.Errorf("Overlay() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"3", 3},
		{"true", true},
		{"hello", "hello"},
		{"{a: 1}", map[string]any{"a": 1}},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.in)
		if err != nil {
			t.Errorf("ParseValue(%q) error: %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseValue(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
