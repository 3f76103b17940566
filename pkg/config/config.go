package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up in the working directory.
const DefaultPath = ".nk.yml"

// BuiltinPolicyPrefix marks a policies entry naming a built-in policy
// rather than a path, as in "builtin:unrendered-templates".
const BuiltinPolicyPrefix = "builtin:"

// Config is the content of .nk.yml.
type Config struct {
	// Sources are state directories in priority order.
	Sources []string `yaml:"sources" validate:"required,min=1,dive,required"`

	// Plugins are plugin source strings in priority order.
	Plugins []string `yaml:"plugins" validate:"dive,required"`

	// Policies are Rego files or directories evaluated before provisioning,
	// or built-in policies named with BuiltinPolicyPrefix.
	Policies []string `yaml:"policies,omitempty" validate:"dive,required"`

	// History toggles the run history database. Enabled when unset.
	History *bool `yaml:"history,omitempty"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-"`

	// PluginSources are the parsed Plugins.
	PluginSources []PluginSource `yaml:"-"`
}

var validate = validator.New()

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	cfg, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = abs
	return cfg, nil
}

// Parse decodes a configuration document. Relative paths are resolved
// against baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sources := make([]string, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		p, err := ExpandPath(s, baseDir)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		sources = append(sources, p)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source must exist")
	}
	cfg.Sources = sources

	for i, p := range cfg.Policies {
		if strings.HasPrefix(p, BuiltinPolicyPrefix) {
			continue
		}
		expanded, err := ExpandPath(p, baseDir)
		if err != nil {
			return nil, err
		}
		cfg.Policies[i] = expanded
	}

	cfg.PluginSources = make([]PluginSource, 0, len(cfg.Plugins))
	for _, raw := range cfg.Plugins {
		src, err := ParsePluginSource(raw, baseDir)
		if err != nil {
			return nil, err
		}
		cfg.PluginSources = append(cfg.PluginSources, src)
	}

	return &cfg, nil
}

// HistoryEnabled reports whether runs should be recorded.
func (c *Config) HistoryEnabled() bool {
	return c.History == nil || *c.History
}

// ExpandPath expands a leading tilde and makes p absolute relative to
// baseDir.
func ExpandPath(p, baseDir string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", p, err)
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(baseDir, expanded)
	}
	return filepath.Clean(expanded), nil
}

// Dir returns nk's data directory: $NK_HOME, or ~/.nk.
func Dir() (string, error) {
	if dir := os.Getenv("NK_HOME"); dir != "" {
		return dir, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".nk"), nil
}

// PluginsDir is where acquired and linked plugins are installed.
func PluginsDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "plugins"), nil
}

// GlobalsPath is the location of the user's global variables.
func GlobalsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "globals.yml"), nil
}

// HistoryPath is the location of the run history database.
func HistoryPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
