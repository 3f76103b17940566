package config

import (
	"fmt"
	"regexp"
)

// LatestVersion requests the most recent release.
const LatestVersion = "latest"

// SourceKind distinguishes local and remote plugin sources.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceGitHub SourceKind = "github"
)

// PluginSource is a parsed entry of the plugins list.
type PluginSource struct {
	Kind SourceKind

	// Raw is the string as written in the configuration.
	Raw string

	// Path is the plugin directory of a local source.
	Path string

	// Owner, Repo, Version and Plugin describe a GitHub source.
	Owner   string
	Repo    string
	Version string
	Plugin  string
}

var githubSourceRegex = regexp.MustCompile(`^(?P<owner>.+?)/(?P<repo>.+?)(@(?P<version>.+?))?(#(?P<plugin>.*))?$`)

// ParsePluginSource parses a plugin source string. Local paths are resolved
// against baseDir.
func ParsePluginSource(raw, baseDir string) (PluginSource, error) {
	if isLocalSource(raw) {
		p, err := ExpandPath(raw, baseDir)
		if err != nil {
			return PluginSource{}, err
		}
		return PluginSource{Kind: SourceLocal, Raw: raw, Path: p}, nil
	}

	m := githubSourceRegex.FindStringSubmatch(raw)
	if m == nil {
		return PluginSource{}, fmt.Errorf("unrecognized plugin source: %s", raw)
	}

	src := PluginSource{
		Kind:    SourceGitHub,
		Raw:     raw,
		Owner:   m[githubSourceRegex.SubexpIndex("owner")],
		Repo:    m[githubSourceRegex.SubexpIndex("repo")],
		Version: m[githubSourceRegex.SubexpIndex("version")],
		Plugin:  m[githubSourceRegex.SubexpIndex("plugin")],
	}
	if src.Version == "" {
		src.Version = LatestVersion
	}
	if src.Plugin == "" {
		src.Plugin = src.Repo
	}
	return src, nil
}

func isLocalSource(raw string) bool {
	if len(raw) > 0 && raw[0] == '/' {
		return true
	}
	if len(raw) < 2 {
		return false
	}
	switch raw[1] {
	case '~', '.', '/':
		return true
	}
	return false
}

// Name returns the name the plugin is installed under.
func (s PluginSource) Name() string {
	if s.Kind == SourceGitHub {
		return s.Plugin
	}
	return s.Path
}

func (s PluginSource) String() string {
	if s.Kind == SourceLocal {
		return s.Path
	}
	return fmt.Sprintf("%s/%s@%s#%s", s.Owner, s.Repo, s.Version, s.Plugin)
}
