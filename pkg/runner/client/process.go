package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/openfroyo/nk/pkg/runner/protocol"
)

// ProcessLauncher runs native executables and scripts.
type ProcessLauncher struct {
	// Env is appended to the inherited environment.
	Env []string
}

// Launch implements Launcher. Scripts are routed through their #!
// interpreter so they run without an executable bit.
func (l *ProcessLauncher) Launch(_ context.Context, req Request) (*Session, error) {
	kind, interp, err := Detect(req.Executable)
	if err != nil {
		return nil, err
	}
	if kind == KindWASM {
		return nil, fmt.Errorf("%s is a WebAssembly module", req.Executable)
	}
	return l.launch(req, interp)
}

// launch starts the plugin. The process is not tied to a context; once
// spawned it runs until it exits.
func (l *ProcessLauncher) launch(req Request, interp []string) (*Session, error) {
	info, err := protocol.EncodeInfo(req.Info)
	if err != nil {
		return nil, err
	}

	argv := append(interp, req.Executable, protocol.Command, info)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(cmd.Environ(), l.Env...)
	}

	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", req.Executable, err)
	}

	// States are written concurrently so a plugin that answers before
	// reading all of its input cannot deadlock us.
	written := make(chan error, 1)
	go func() {
		err := protocol.WriteStates(stdin, req.States)
		if closeErr := stdin.Close(); err == nil {
			err = closeErr
		}
		written <- err
	}()

	wait := func() error {
		waitErr := cmd.Wait()
		writeErr := <-written

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return fmt.Errorf("plugin exited with status %d", exitErr.ExitCode())
		}
		if waitErr != nil {
			return waitErr
		}
		// A plugin may legitimately exit without reading its input.
		if writeErr != nil && !errors.Is(writeErr, errBrokenPipe) && !errors.Is(writeErr, os.ErrClosed) {
			return writeErr
		}
		return nil
	}

	return newSession(stdout, stderr, wait), nil
}
