package plugins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/eval"
	"github.com/openfroyo/nk/pkg/vars"
)

// VersionMarker records the installed release tag inside a plugin dir.
const VersionMarker = ".nk_version"

// DefaultConcurrency bounds parallel downloads.
const DefaultConcurrency = 4

// Acquirer installs remote plugins into Dir.
type Acquirer struct {
	Releases  ReleaseSource
	Cache     *ReleaseCache
	Schemas   *config.SchemaRegistry
	Evaluator *eval.Evaluator
	System    vars.System

	// Dir is the plugins directory. Each plugin lives in Dir/<name>.
	Dir string

	Concurrency int
	Logger      zerolog.Logger

	// Recorder, when set, is told the outcome of every remote source.
	Recorder Recorder
}

// Recorder receives acquisition outcomes. *telemetry.Metrics implements it.
type Recorder interface {
	RecordAcquisition(plugin, outcome string)
}

// Acquisition outcomes.
const (
	OutcomeLinked      = "linked"
	OutcomeCurrent     = "current"
	OutcomeInstalled   = "installed"
	OutcomeUnsupported = "unsupported"
	OutcomeFailed      = "failed"
)

// InstallDir returns the directory a remote source installs into.
func (a *Acquirer) InstallDir(src config.PluginSource) string {
	return filepath.Join(a.Dir, src.Plugin)
}

// Acquire installs every remote source concurrently. Local sources are
// ignored. All failures are returned together.
func (a *Acquirer) Acquire(ctx context.Context, sources []config.PluginSource) error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plugins directory: %w", err)
	}

	limit := a.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)

	errs := make([]error, len(sources))
	for i, src := range sources {
		if src.Kind != config.SourceGitHub {
			continue
		}
		g.Go(func() error {
			outcome, err := a.acquire(ctx, src)
			if err != nil {
				outcome = OutcomeFailed
				errs[i] = fmt.Errorf("%s: %w", src.Raw, err)
			}
			if a.Recorder != nil {
				a.Recorder.RecordAcquisition(src.Plugin, outcome)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (a *Acquirer) acquire(ctx context.Context, src config.PluginSource) (string, error) {
	logger := a.Logger.With().Str("plugin", src.Plugin).Logger()
	dir := a.InstallDir(src)

	if info, err := os.Lstat(dir); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		logger.Debug().Str("path", dir).Msg("Plugin is linked, skipping download")
		return OutcomeLinked, nil
	}

	release, err := a.release(ctx, src.Owner, src.Repo, src.Version)
	if err != nil {
		return "", err
	}

	if installed := InstalledVersion(dir); installed == release.Tag {
		logger.Debug().Str("version", installed).Msg("Plugin is up to date")
		return OutcomeCurrent, nil
	}

	mp, ok := release.Manifest.Plugin(src.Plugin)
	if !ok {
		return "", fmt.Errorf("plugin %s not found in release %s of %s/%s", src.Plugin, release.Tag, src.Owner, src.Repo)
	}

	var holds func([]string) (bool, error)
	if a.Evaluator != nil {
		holds = a.Evaluator.All
	}
	asset, ok, err := SelectAsset(src.Plugin, a.System, mp.Assets, holds)
	if err != nil {
		return "", err
	}
	if !ok {
		logger.Info().
			Str("distro", a.System.Distro).
			Str("arch", a.System.Arch).
			Msg("Plugin has no asset for this platform, skipping")
		return OutcomeUnsupported, nil
	}

	logger.Info().Str("version", release.Tag).Str("asset", asset.File).Msg("Downloading plugin")
	if err := a.install(ctx, src, release.Tag, asset.File, dir); err != nil {
		return "", err
	}
	return OutcomeInstalled, nil
}

func (a *Acquirer) install(ctx context.Context, src config.PluginSource, tag, file, dir string) error {
	body, err := a.Releases.Open(ctx, src.Owner, src.Repo, tag, file)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.MkdirTemp(a.Dir, "."+src.Plugin+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := Extract(body, tmp); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmp, VersionMarker), []byte(tag+"\n"), 0o644); err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove stale plugin: %w", err)
	}
	return os.Rename(tmp, dir)
}

// release resolves a version request to a release, using the cache.
func (a *Acquirer) release(ctx context.Context, owner, repo, version string) (*Release, error) {
	if r, ok := a.Cache.Get(owner, repo, version); ok {
		return r, nil
	}

	tag := version
	if version == config.LatestVersion {
		var err error
		if tag, err = a.Releases.LatestTag(ctx, owner, repo); err != nil {
			return nil, err
		}
		if r, ok := a.Cache.Get(owner, repo, tag); ok {
			a.Cache.Put(owner, repo, version, r)
			return r, nil
		}
	}

	body, err := a.Releases.Open(ctx, owner, repo, tag, ManifestFile)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := ParseManifest(a.Schemas, data)
	if err != nil {
		return nil, err
	}

	r := &Release{Tag: tag, Manifest: m}
	a.Cache.Put(owner, repo, version, r)
	return r, nil
}

// InstalledVersion returns the release tag installed in dir, or "" when dir
// holds no remote install.
func InstalledVersion(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, VersionMarker))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
