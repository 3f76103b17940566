package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/nk/pkg/runner/protocol"
)

func writeScript(t *testing.T, dir, body string, mode os.FileMode) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell plugins need a unix shell")
	}
	path := filepath.Join(dir, "plugin.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), mode); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func collect(t *testing.T, s *Session) (descriptions []string, lineErrs int) {
	t.Helper()
	for out, err := range s.Results() {
		if err != nil {
			var lineErr *protocol.LineError
			if !errors.As(err, &lineErr) {
				t.Fatalf("unexpected fatal error: %v", err)
			}
			lineErrs++
			continue
		}
		descriptions = append(descriptions, out.Description)
	}
	return descriptions, lineErrs
}

func TestProcessLauncher(t *testing.T) {
	dir := t.TempDir()
	// Not executable: the #! line routes it through /bin/sh.
	exe := writeScript(t, dir, `
echo "$1" > args.txt
cat > stdin.json
echo '{"status":"success","changed":true,"description":"git","output":""}'
echo 'garbage'
echo '{"status":"success","changed":false,"description":"curl","output":""}'
`, 0o644)

	req := Request{
		Executable: exe,
		Dir:        dir,
		Info:       protocol.ProvisionInfo{Sources: []string{dir}, Vars: map[string]any{"a": "b"}},
		States: []protocol.DeclaredState{
			{Declaration: "packages", State: "git"},
			{Declaration: "packages", State: "curl"},
		},
	}

	var l Launcher = &AutoLauncher{Process: &ProcessLauncher{}}
	s, err := l.Launch(context.Background(), req)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	got, lineErrs := collect(t, s)
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if diff := cmp.Diff([]string{"git", "curl"}, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if lineErrs != 1 {
		t.Errorf("got %d line errors, want 1", lineErrs)
	}

	args, _ := os.ReadFile(filepath.Join(dir, "args.txt"))
	if strings.TrimSpace(string(args)) != protocol.Command {
		t.Errorf("first argument = %q, want %q", args, protocol.Command)
	}

	f, err := os.Open(filepath.Join(dir, "stdin.json"))
	if err != nil {
		t.Fatalf("stdin not captured: %v", err)
	}
	defer f.Close()
	states, err := protocol.ReadStates(f)
	if err != nil {
		t.Fatalf("ReadStates() error = %v", err)
	}
	if diff := cmp.Diff(req.States, states); diff != "" {
		t.Errorf("stdin mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessLauncherExitStatus(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "echo 'apt is locked' >&2\nexit 3\n", 0o755)

	s, err := (&ProcessLauncher{}).Launch(context.Background(), Request{Executable: exe, Dir: dir})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	got, _ := collect(t, s)
	if len(got) != 0 {
		t.Errorf("unexpected results: %v", got)
	}

	err = s.Wait()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	for _, want := range []string{"status 3", "apt is locked"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error %q does not contain %q", err, want)
		}
	}
}

func TestProcessLauncherIgnoresUnreadInput(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, `echo '{"status":"success","changed":false,"description":"ok","output":""}'`+"\n", 0o755)

	states := make([]protocol.DeclaredState, 0, 10000)
	for i := 0; i < cap(states); i++ {
		states = append(states, protocol.DeclaredState{Declaration: "files", State: strings.Repeat("x", 64)})
	}

	s, err := (&ProcessLauncher{}).Launch(context.Background(), Request{Executable: exe, Dir: dir, States: states})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	got, _ := collect(t, s)
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d results, want 1", len(got))
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	_, err := (&ProcessLauncher{}).Launch(context.Background(), Request{Executable: filepath.Join(t.TempDir(), "nope")})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"module.wasm": "\x00asm\x01\x00\x00\x00",
		"script":      "#!/usr/bin/env python3 -u\nprint()\n",
		"binary":      "\x7fELF\x02\x01",
		"tiny":        "x",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o755); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	tests := []struct {
		file       string
		wantKind   Kind
		wantInterp []string
	}{
		{"module.wasm", KindWASM, nil},
		{"script", KindScript, []string{"/usr/bin/env", "python3", "-u"}},
		{"binary", KindBinary, nil},
		{"tiny", KindBinary, nil},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			kind, interp, err := Detect(filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if kind != tt.wantKind {
				t.Errorf("Detect() kind = %v, want %v", kind, tt.wantKind)
			}
			if diff := cmp.Diff(tt.wantInterp, interp); diff != "" {
				t.Errorf("interpreter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAutoLauncherWASM(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "plugin.wasm")
	// The smallest valid module: magic and version, no sections.
	if err := os.WriteFile(exe, []byte("\x00asm\x01\x00\x00\x00"), 0o644); err != nil {
		t.Fatalf("Failed to write module: %v", err)
	}

	ctx := context.Background()
	if _, err := (&AutoLauncher{Process: &ProcessLauncher{}}).Launch(ctx, Request{Executable: exe}); err == nil {
		t.Errorf("Expected error without a WASM runtime")
	}

	wasm, err := NewWASMLauncher(ctx)
	if err != nil {
		t.Fatalf("NewWASMLauncher() error = %v", err)
	}
	defer wasm.Close(ctx)

	s, err := (&AutoLauncher{Process: &ProcessLauncher{}, WASM: wasm}).Launch(ctx, Request{Executable: exe, Dir: dir})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	got, lineErrs := collect(t, s)
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(got) != 0 || lineErrs != 0 {
		t.Errorf("empty module produced output: %v, %d errors", got, lineErrs)
	}
}

func TestWASMLauncherRejectsInvalidModule(t *testing.T) {
	exe := filepath.Join(t.TempDir(), "broken.wasm")
	if err := os.WriteFile(exe, []byte("\x00asm\xff\xff"), 0o644); err != nil {
		t.Fatalf("Failed to write module: %v", err)
	}

	ctx := context.Background()
	wasm, err := NewWASMLauncher(ctx)
	if err != nil {
		t.Fatalf("NewWASMLauncher() error = %v", err)
	}
	defer wasm.Close(ctx)

	if _, err := wasm.Launch(ctx, Request{Executable: exe}); err == nil {
		t.Fatal("Expected compile error, got nil")
	}
}
