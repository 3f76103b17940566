package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/openfroyo/nk/pkg/runner/protocol"
)

// WASMLauncher runs WebAssembly plugins in an embedded WASI runtime. The
// plugin directory is mounted as the guest's root.
type WASMLauncher struct {
	runtime wazero.Runtime

	// Env is passed to the guest as KEY=VALUE pairs.
	Env []string
}

// NewWASMLauncher creates a runtime with WASI preview 1 available.
func NewWASMLauncher(ctx context.Context) (*WASMLauncher, error) {
	runtimeConfig := wazero.NewRuntimeConfig().
		WithCompilationCache(wazero.NewCompilationCache())

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	return &WASMLauncher{runtime: runtime}, nil
}

// Close releases the runtime.
func (l *WASMLauncher) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// Launch implements Launcher.
func (l *WASMLauncher) Launch(ctx context.Context, req Request) (*Session, error) {
	wasmModule, err := os.ReadFile(req.Executable)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM module: %w", err)
	}

	compiled, err := l.runtime.CompileModule(ctx, wasmModule)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WASM module: %w", err)
	}

	info, err := protocol.EncodeInfo(req.Info)
	if err != nil {
		return nil, err
	}

	var stdin bytes.Buffer
	if err := protocol.WriteStates(&stdin, req.States); err != nil {
		return nil, err
	}

	stdoutR, stdoutW := io.Pipe()
	stderr := &syncBuffer{}

	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithArgs(filepath.Base(req.Executable), protocol.Command, info).
		WithStdin(&stdin).
		WithStdout(stdoutW).
		WithStderr(stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)
	if req.Dir != "" {
		moduleConfig = moduleConfig.WithFSConfig(wazero.NewFSConfig().WithDirMount(req.Dir, "/"))
	}
	for _, kv := range l.Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			moduleConfig = moduleConfig.WithEnv(k, v)
		}
	}

	done := make(chan error, 1)
	go func() {
		mod, err := l.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if mod != nil {
			mod.Close(ctx)
		}
		compiled.Close(ctx)

		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == 0 {
				err = nil
			} else {
				err = fmt.Errorf("plugin exited with status %d", exitErr.ExitCode())
			}
		}
		stdoutW.Close()
		done <- err
	}()

	return newSession(stdoutR, stderr, func() error { return <-done }), nil
}
