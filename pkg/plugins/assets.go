package plugins

import (
	"fmt"

	"github.com/openfroyo/nk/pkg/vars"
)

const assetExt = ".tar.gz"

// AssetPriority returns the archive names a plugin may be published under,
// most specific first. For a plugin "files" on Apple silicon running
// Sonoma:
//
//	files-sonoma-aarch64.tar.gz
//	files-macos-aarch64.tar.gz
//	files-unix-aarch64.tar.gz
//	files-aarch64.tar.gz
//	files-sonoma.tar.gz
//	files-macos.tar.gz
//	files-unix.tar.gz
//	files.tar.gz
func AssetPriority(name string, sys vars.System) []string {
	return []string{
		fmt.Sprintf("%s-%s-%s%s", name, sys.Distro, sys.Arch, assetExt),
		fmt.Sprintf("%s-%s-%s%s", name, sys.OS, sys.Arch, assetExt),
		fmt.Sprintf("%s-%s-%s%s", name, sys.Family, sys.Arch, assetExt),
		fmt.Sprintf("%s-%s%s", name, sys.Arch, assetExt),
		fmt.Sprintf("%s-%s%s", name, sys.Distro, assetExt),
		fmt.Sprintf("%s-%s%s", name, sys.OS, assetExt),
		fmt.Sprintf("%s-%s%s", name, sys.Family, assetExt),
		name + assetExt,
	}
}

// SelectAsset picks the most specific asset for this platform. Assets whose
// conditions do not hold are never chosen. ok is false when no asset fits,
// meaning the plugin does not support this platform.
func SelectAsset(name string, sys vars.System, assets []ManifestAsset, holds func(when []string) (bool, error)) (asset ManifestAsset, ok bool, err error) {
	byFile := make(map[string]ManifestAsset, len(assets))
	for _, a := range assets {
		if holds != nil && len(a.When) > 0 {
			match, err := holds(a.When)
			if err != nil {
				return ManifestAsset{}, false, fmt.Errorf("asset %s: %w", a.File, err)
			}
			if !match {
				continue
			}
		}
		if _, dup := byFile[a.File]; !dup {
			byFile[a.File] = a
		}
	}

	for _, candidate := range AssetPriority(name, sys) {
		if a, found := byFile[candidate]; found {
			return a, true, nil
		}
	}
	return ManifestAsset{}, false, nil
}

// AssetName derives the archive name for a plugin from its conditions.
// Only simple `var == "value"` rules on distro, os, family and arch are
// recognized; distro beats os, which beats family.
func AssetName(name string, when []string) string {
	has := func(v, value string) bool {
		rule := fmt.Sprintf("%s == %q", v, value)
		for _, w := range when {
			if w == rule {
				return true
			}
		}
		return false
	}

	parts := name
	for _, group := range []struct {
		v      string
		values []string
	}{{"distro", vars.Distros}, {"os", vars.OSes}, {"family", vars.Families}} {
		if value := firstMatch(group.v, group.values, has); value != "" {
			parts += "-" + value
			break
		}
	}
	if arch := firstMatch("arch", vars.Archs, has); arch != "" {
		parts += "-" + arch
	}
	return parts + assetExt
}

func firstMatch(v string, values []string, has func(v, value string) bool) string {
	for _, value := range values {
		if has(v, value) {
			return value
		}
	}
	return ""
}
