// Package vars provides the builtin variables visible to conditions and
// templates, and the user's global variables stored in globals.yml.
package vars

import (
	"fmt"
	"os/exec"
	"runtime"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// Known values of the system variables. Release asset names are built from
// these.
var (
	Distros = []string{
		"alpine", "amazon", "android", "arch", "centos", "debian", "dragonfly",
		"endeavouros", "fedora", "freebsd", "garuda", "gentoo", "illumos",
		"linux", "manjaro", "mariner", "mint", "netbsd", "nixos", "openbsd",
		"opensuse", "oracle", "pop", "raspbian", "redhat", "redhat_enterprise",
		"solus", "suse", "ubuntu", "windows",
		"sequoia", "sonoma", "ventura", "monterey", "big_sur", "catalina",
		"mojave", "high_sierra", "sierra",
		"unknown",
	}
	OSes     = []string{"linux", "macos", "windows"}
	Families = []string{"unix", "windows"}
	Archs    = []string{"x86_64", "aarch64"}
)

// DefaultOSReleasePath is where Linux distributions describe themselves.
const DefaultOSReleasePath = "/etc/os-release"

// osReleaseIDs maps os-release ID values that differ from the distro name.
var osReleaseIDs = map[string]string{
	"amzn":                "amazon",
	"linuxmint":           "mint",
	"ol":                  "oracle",
	"rhel":                "redhat_enterprise",
	"sles":                "suse",
	"opensuse-leap":       "opensuse",
	"opensuse-tumbleweed": "opensuse",
	"manjaro-arm":         "manjaro",
}

// System holds the platform variables.
type System struct {
	Distro string
	OS     string
	Family string
	Arch   string
}

// Detector discovers system variables. Its hooks can be replaced in tests.
type Detector struct {
	GOOS          string
	GOARCH        string
	OSReleasePath string
	MacOSVersion  func() (string, error)
}

// NewDetector returns a detector for the running platform.
func NewDetector() *Detector {
	return &Detector{
		GOOS:          runtime.GOOS,
		GOARCH:        runtime.GOARCH,
		OSReleasePath: DefaultOSReleasePath,
		MacOSVersion:  swVers,
	}
}

// Detect computes the system variables.
func (d *Detector) Detect() (System, error) {
	var s System

	switch d.GOOS {
	case "linux":
		s.OS, s.Family = "linux", "unix"
	case "darwin":
		s.OS, s.Family = "macos", "unix"
	case "windows":
		s.OS, s.Family = "windows", "windows"
	default:
		return System{}, fmt.Errorf("unsupported os: %s", d.GOOS)
	}

	switch d.GOARCH {
	case "amd64":
		s.Arch = "x86_64"
	case "arm64":
		s.Arch = "aarch64"
	default:
		return System{}, fmt.Errorf("unsupported os arch: %s", d.GOARCH)
	}

	switch s.OS {
	case "linux":
		s.Distro = DistroFromOSRelease(d.OSReleasePath)
	case "macos":
		version, err := d.MacOSVersion()
		if err != nil {
			return System{}, fmt.Errorf("failed to read macos version: %w", err)
		}
		distro, err := MacOSDistro(version)
		if err != nil {
			return System{}, err
		}
		s.Distro = distro
	case "windows":
		s.Distro = "windows"
	}

	return s, nil
}

// DistroFromOSRelease reads the distribution ID from an os-release file.
// Unreadable files and unrecognized IDs yield "linux".
func DistroFromOSRelease(path string) string {
	env, err := godotenv.Read(path)
	if err != nil {
		return "linux"
	}

	id := strings.ToLower(strings.TrimSpace(env["ID"]))
	if alias, ok := osReleaseIDs[id]; ok {
		return alias
	}
	if id != "" && slices.Contains(Distros, id) {
		return id
	}

	// derivatives list their parent in ID_LIKE
	for _, like := range strings.Fields(env["ID_LIKE"]) {
		if slices.Contains(Distros, like) {
			return like
		}
	}
	return "linux"
}

// MacOSDistro maps a macOS product version to its release name.
func MacOSDistro(version string) (string, error) {
	parts := strings.Split(strings.TrimSpace(version), ".")
	switch parts[0] {
	case "15":
		return "sequoia", nil
	case "14":
		return "sonoma", nil
	case "13":
		return "ventura", nil
	case "12":
		return "monterey", nil
	case "11":
		return "big_sur", nil
	case "10":
		if len(parts) > 1 {
			switch parts[1] {
			case "15":
				return "catalina", nil
			case "14":
				return "mojave", nil
			case "13":
				return "high_sierra", nil
			case "12":
				return "sierra", nil
			}
		}
	}
	return "", fmt.Errorf("unrecognized version: %s", version)
}

func swVers() (string, error) {
	out, err := exec.Command("sw_vers", "-productVersion").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
