package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Package is the state this plugin provisions.
type Package struct {
	// Name is the package name as the manager knows it.
	Name string `json:"name"`

	// State is present, absent or latest. Defaults to present.
	State string `json:"state,omitempty"`

	// Manager forces a package manager instead of detecting one.
	Manager string `json:"manager,omitempty"`
}

// ParsePackage accepts a package name or a mapping with a name.
func ParsePackage(v any) (Package, error) {
	var p Package
	switch t := v.(type) {
	case string:
		p.Name = t
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return Package{}, err
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return Package{}, fmt.Errorf("invalid package: %w", err)
		}
	default:
		return Package{}, fmt.Errorf("package must be a name or a mapping, got %T", v)
	}

	if p.Name == "" {
		return Package{}, fmt.Errorf("package name is required")
	}
	switch p.State {
	case "":
		p.State = "present"
	case "present", "absent", "latest":
	default:
		return Package{}, fmt.Errorf("invalid state: %s", p.State)
	}
	return p, nil
}

// manager describes the commands of one package manager. Each command is
// followed by the package name.
type manager struct {
	name string

	// binary is looked up in PATH to detect the manager.
	binary string

	// query exits with status 0 and prints the version when the package is
	// installed.
	query []string

	// installedPrefix, when set, must prefix the query output of an
	// installed package.
	installedPrefix string

	install []string
	remove  []string
	upgrade []string

	// sudo runs install, remove and upgrade through sudo when not root.
	sudo bool
}

var managers = []manager{
	{
		name:            "apt",
		binary:          "apt-get",
		query:           []string{"dpkg-query", "-W", "-f=${db:Status-Status} ${Version}"},
		installedPrefix: "installed ",
		install:         []string{"apt-get", "install", "-y"},
		remove:          []string{"apt-get", "remove", "-y"},
		upgrade:         []string{"apt-get", "install", "-y", "--only-upgrade"},
		sudo:            true,
	},
	{
		name:    "dnf",
		binary:  "dnf",
		query:   []string{"rpm", "-q", "--queryformat", "%{VERSION}-%{RELEASE}"},
		install: []string{"dnf", "install", "-y"},
		remove:  []string{"dnf", "remove", "-y"},
		upgrade: []string{"dnf", "upgrade", "-y"},
		sudo:    true,
	},
	{
		name:    "yum",
		binary:  "yum",
		query:   []string{"rpm", "-q", "--queryformat", "%{VERSION}-%{RELEASE}"},
		install: []string{"yum", "install", "-y"},
		remove:  []string{"yum", "remove", "-y"},
		upgrade: []string{"yum", "upgrade", "-y"},
		sudo:    true,
	},
	{
		name:    "zypper",
		binary:  "zypper",
		query:   []string{"rpm", "-q", "--queryformat", "%{VERSION}-%{RELEASE}"},
		install: []string{"zypper", "--non-interactive", "install"},
		remove:  []string{"zypper", "--non-interactive", "remove"},
		upgrade: []string{"zypper", "--non-interactive", "update"},
		sudo:    true,
	},
	{
		name:    "pacman",
		binary:  "pacman",
		query:   []string{"pacman", "-Q"},
		install: []string{"pacman", "-S", "--noconfirm", "--needed"},
		remove:  []string{"pacman", "-R", "--noconfirm"},
		upgrade: []string{"pacman", "-S", "--noconfirm"},
		sudo:    true,
	},
	{
		name:    "brew",
		binary:  "brew",
		query:   []string{"brew", "list", "--versions"},
		install: []string{"brew", "install"},
		remove:  []string{"brew", "uninstall"},
		upgrade: []string{"brew", "upgrade"},
	},
}

func lookupManager(name string) (manager, error) {
	for _, m := range managers {
		if m.name == name {
			return m, nil
		}
	}
	return manager{}, fmt.Errorf("unsupported package manager: %s", name)
}

// detectManager picks brew on macOS and the first manager found in PATH
// elsewhere.
func detectManager(osName string, lookPath func(string) (string, error)) (manager, error) {
	if osName == "macos" {
		return lookupManager("brew")
	}
	for _, m := range managers {
		if m.name == "brew" {
			continue
		}
		if _, err := lookPath(m.binary); err == nil {
			return m, nil
		}
	}
	return manager{}, fmt.Errorf("no supported package manager found")
}

// Runner runs a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// installer applies packages with one manager.
type installer struct {
	runner  Runner
	manager manager
	root    bool
}

// version reports whether the package is installed and its version.
func (i *installer) version(ctx context.Context, name string) (bool, string) {
	m := i.manager
	out, err := i.runner.Run(ctx, m.query[0], append(m.query[1:], name)...)
	if err != nil {
		return false, ""
	}
	out = strings.TrimSpace(out)
	if m.installedPrefix != "" {
		v, ok := strings.CutPrefix(out, m.installedPrefix)
		return ok, v
	}
	return true, out
}

func (i *installer) exec(ctx context.Context, command []string, name string) (string, error) {
	args := append(append([]string{}, command[1:]...), name)
	if i.manager.sudo && !i.root {
		return i.runner.Run(ctx, "sudo", append([]string{"-n", command[0]}, args...)...)
	}
	return i.runner.Run(ctx, command[0], args...)
}

// Ensure brings one package to its desired state.
func (i *installer) Ensure(ctx context.Context, p Package) Result {
	installed, before := i.version(ctx, p.Name)

	var command []string
	var done, action string
	switch {
	case p.State == "absent" && !installed:
		return unchanged("%s is not installed", p.Name)
	case p.State == "absent":
		command, done, action = i.manager.remove, "removed %s", "remove %s"
	case !installed:
		command, done, action = i.manager.install, "installed %s", "install %s"
	case p.State == "present":
		return unchanged("%s is installed", p.Name)
	default:
		command, done, action = i.manager.upgrade, "upgraded %s", "upgrade %s"
	}

	out, err := i.exec(ctx, command, p.Name)
	if err != nil {
		return Result{
			Failed:      true,
			Description: fmt.Sprintf(action, p.Name),
			Output:      strings.TrimSpace(out + "\n" + err.Error()),
		}
	}

	if p.State == "latest" && installed {
		if _, after := i.version(ctx, p.Name); after == before {
			return unchanged("%s is up to date", p.Name)
		}
	}
	return Result{Changed: true, Description: fmt.Sprintf(done, p.Name), Output: out}
}

// Result is the outcome of one package.
type Result struct {
	Failed      bool
	Changed     bool
	Description string
	Output      string
}

func unchanged(format string, name string) Result {
	return Result{Description: fmt.Sprintf(format, name)}
}
