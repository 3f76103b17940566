// Package client launches plugin processes and streams their results.
package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync"

	"github.com/openfroyo/nk/pkg/runner/protocol"
)

// Request describes one plugin invocation.
type Request struct {
	// Executable is the plugin program.
	Executable string

	// Dir is the working directory, normally the plugin directory.
	Dir string

	Info   protocol.ProvisionInfo
	States []protocol.DeclaredState
}

// Launcher starts a plugin invocation.
type Launcher interface {
	Launch(ctx context.Context, req Request) (*Session, error)
}

// Session is a running invocation. Results must be consumed before Wait.
type Session struct {
	decoder *protocol.Decoder
	stdout  io.Reader
	stderr  *syncBuffer
	wait    func() error
	once    sync.Once
	err     error
}

// Results streams decoded outputs in emission order. Lines that cannot be
// decoded are yielded as *protocol.LineError values.
func (s *Session) Results() iter.Seq2[*protocol.ProvisionStateOutput, error] {
	return s.decoder.All()
}

// Wait drains any unread output and waits for the plugin to exit. A
// non-zero exit is an error carrying the plugin's standard error.
func (s *Session) Wait() error {
	s.once.Do(func() {
		_, _ = io.Copy(io.Discard, s.stdout)
		if err := s.wait(); err != nil {
			if stderr := strings.TrimSpace(s.stderr.String()); stderr != "" {
				err = fmt.Errorf("%w: %s", err, stderr)
			}
			s.err = err
		}
	})
	return s.err
}

// Stderr returns what the plugin wrote to standard error so far.
func (s *Session) Stderr() string { return s.stderr.String() }

// NewSession wraps an output stream produced outside of this package, for
// example by an in-memory launcher. wait is called once by Wait.
func NewSession(stdout io.Reader, stderr string, wait func() error) *Session {
	buf := &syncBuffer{}
	buf.buf.WriteString(stderr)
	return newSession(stdout, buf, wait)
}

func newSession(stdout io.Reader, stderr *syncBuffer, wait func() error) *Session {
	return &Session{
		decoder: protocol.NewDecoder(stdout),
		stdout:  stdout,
		stderr:  stderr,
		wait:    wait,
	}
}

// Kind is the way an executable is started.
type Kind int

const (
	// KindBinary is exec'd directly.
	KindBinary Kind = iota
	// KindScript starts with a #! interpreter line.
	KindScript
	// KindWASM is a WebAssembly module.
	KindWASM
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindWASM:
		return "wasm"
	default:
		return "binary"
	}
}

var wasmMagic = []byte("\x00asm")

// Detect inspects the start of an executable. For scripts it also returns
// the interpreter command line.
func Detect(path string) (Kind, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open executable: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 512)
	head, _ := r.Peek(4)
	if bytes.Equal(head, wasmMagic) {
		return KindWASM, nil, nil
	}
	if !bytes.HasPrefix(head, []byte("#!")) {
		return KindBinary, nil, nil
	}

	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, nil, err
	}
	interp := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "#!"))
	if len(interp) == 0 {
		return 0, nil, fmt.Errorf("%s: empty interpreter line", path)
	}
	return KindScript, interp, nil
}

// AutoLauncher picks a launcher from the executable's file type.
type AutoLauncher struct {
	Process *ProcessLauncher
	WASM    *WASMLauncher
}

// Launch implements Launcher.
func (a *AutoLauncher) Launch(ctx context.Context, req Request) (*Session, error) {
	kind, interp, err := Detect(req.Executable)
	if err != nil {
		return nil, err
	}
	if kind == KindWASM {
		if a.WASM == nil {
			return nil, fmt.Errorf("%s is a WebAssembly module but no WASM runtime is configured", req.Executable)
		}
		return a.WASM.Launch(ctx, req)
	}
	return a.Process.launch(req, interp)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
