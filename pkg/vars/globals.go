package vars

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/nk/pkg/state"
)

// Globals is the content of globals.yml.
type Globals struct {
	Vars map[string]any `yaml:"vars"`
}

// LoadGlobals reads globals from path. A missing file yields empty globals.
func LoadGlobals(path string) (*Globals, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Globals{Vars: map[string]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read globals %s: %w", path, err)
	}

	var raw struct {
		Vars any `yaml:"vars"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse globals %s: %w", path, err)
	}

	g := &Globals{Vars: map[string]any{}}
	if raw.Vars == nil {
		return g, nil
	}
	m, ok := state.Normalize(raw.Vars).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("globals %s: vars must be a mapping", path)
	}
	g.Vars = m
	return g, nil
}

// Set assigns a global variable.
func (g *Globals) Set(name string, value any) {
	if g.Vars == nil {
		g.Vars = map[string]any{}
	}
	g.Vars[name] = value
}

// Save writes globals to path, replacing the file atomically.
func (g *Globals) Save(path string) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode globals: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("nk globals %q should be writable: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".globals-*.yml")
	if err != nil {
		return fmt.Errorf("nk globals %q should be writable: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write globals: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write globals: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("nk globals %q should be writable: %w", path, err)
	}
	return nil
}

// ParseValue decodes a command-line value as YAML, so "[a, b]" becomes a
// list and "3" an integer.
func ParseValue(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return state.Normalize(v), nil
}
