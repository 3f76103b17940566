package vars

import (
	"fmt"
	"os"
	"os/user"

	"github.com/mitchellh/go-homedir"
)

// Builtin holds every variable nk defines before user globals are applied.
type Builtin struct {
	System

	Hostname string
	Machine  string
	Roles    []string
	User     string
	Home     string
}

// DetectBuiltin gathers the builtin variables for this machine. Machine
// defaults to the hostname and roles default to an empty list; both are
// usually overridden with nk var set.
func DetectBuiltin(d *Detector) (*Builtin, error) {
	sys, err := d.Detect()
	if err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}

	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("could not determine home directory: %w", err)
	}

	return &Builtin{
		System:   sys,
		Hostname: hostname,
		Machine:  hostname,
		Roles:    []string{},
		User:     currentUser(),
		Home:     home,
	}, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return os.Getenv("USERNAME")
}

// Map returns the builtin variables as a lookup table.
func (b *Builtin) Map() map[string]any {
	roles := make([]any, len(b.Roles))
	for i, r := range b.Roles {
		roles[i] = r
	}
	return map[string]any{
		"distro":   b.Distro,
		"os":       b.OS,
		"family":   b.Family,
		"arch":     b.Arch,
		"hostname": b.Hostname,
		"machine":  b.Machine,
		"roles":    roles,
		"user":     b.User,
		"home":     b.Home,
	}
}

// Load returns the builtin variables overlaid with the globals stored at
// globalsPath. Globals replace builtins key by key.
func Load(d *Detector, globalsPath string) (map[string]any, error) {
	b, err := DetectBuiltin(d)
	if err != nil {
		return nil, err
	}

	g, err := LoadGlobals(globalsPath)
	if err != nil {
		return nil, err
	}

	return Overlay(b.Map(), g.Vars), nil
}

// Overlay returns base with every key of top replaced.
func Overlay(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}
