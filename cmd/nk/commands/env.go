package commands

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/engine"
	"github.com/openfroyo/nk/pkg/plugins"
	"github.com/openfroyo/nk/pkg/policy"
	"github.com/openfroyo/nk/pkg/runner/client"
	"github.com/openfroyo/nk/pkg/stores"
	"github.com/openfroyo/nk/pkg/telemetry"
	"github.com/openfroyo/nk/pkg/vars"
)

// serviceVersion is reported in traces.
var serviceVersion = "dev"

type envOptions struct {
	// metricsFile receives the node exporter textfile at shutdown.
	metricsFile string

	// history opens the run database, unless the configuration disables it.
	history bool

	offline bool
}

// environment is everything a command needs to drive a pipeline.
type environment struct {
	cfg        *config.Config
	tel        *telemetry.Telemetry
	system     vars.System
	vars       map[string]any
	pluginsDir string
	offline    bool

	github *plugins.GitHubClient
	wasm   *client.WASMLauncher
	store  *stores.SQLiteStore
}

func loadEnvironment(ctx context.Context, opts envOptions) (_ *environment, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to load configuration", err)
	}

	telCfg := telemetry.ConfigFromEnv()
	telCfg.ServiceVersion = serviceVersion
	telCfg.Metrics.TextfilePath = opts.metricsFile
	if verbose {
		telCfg.Logging.Level = "debug"
	}
	if jsonOutput {
		telCfg.Logging.Format = "json"
	}
	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, tel: tel, offline: opts.offline}
	defer func() {
		if err != nil {
			env.Close(context.WithoutCancel(ctx))
		}
	}()

	d := vars.NewDetector()
	if env.system, err = d.Detect(); err != nil {
		return nil, err
	}
	globals, err := config.GlobalsPath()
	if err != nil {
		return nil, err
	}
	if env.vars, err = vars.Load(d, globals); err != nil {
		return nil, engine.NewConfigurationError("failed to load variables", err)
	}
	if env.pluginsDir, err = config.PluginsDir(); err != nil {
		return nil, err
	}

	env.github = plugins.NewGitHubClient(plugins.GitHubOptions{Token: os.Getenv("GITHUB_TOKEN")})
	if env.wasm, err = client.NewWASMLauncher(ctx); err != nil {
		return nil, err
	}

	if opts.history && cfg.HistoryEnabled() {
		env.openHistory(ctx)
	}
	return env, nil
}

// openHistory attaches the run recorder. A broken history database is
// logged and otherwise ignored.
func (e *environment) openHistory(ctx context.Context) {
	path, err := config.HistoryPath()
	if err == nil {
		e.store, err = stores.Open(ctx, path)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Run history is unavailable")
		return
	}
	logger := e.tel.Logger.NewComponentLogger("history").Zerolog()
	stores.NewRecorder(e.store, logger).Attach(e.tel.Events)
}

func (e *environment) policies(ctx context.Context) (*policy.Engine, error) {
	if len(e.cfg.Policies) == 0 {
		return nil, nil
	}
	logger := e.tel.Logger.Zerolog()
	loaded, err := policy.NewLoader(logger).LoadFromPaths(e.cfg.Policies)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to load policies", err)
	}
	pe, err := policy.NewEngine(ctx, logger, loaded)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to compile policies", err)
	}
	return pe, nil
}

func (e *environment) pipeline(reporter engine.Reporter, policies *policy.Engine) *engine.Pipeline {
	return engine.NewPipeline(engine.PipelineOptions{
		Config:     e.cfg,
		Vars:       e.vars,
		System:     e.system,
		PluginsDir: e.pluginsDir,
		Releases:   e.github,
		Offline:    e.offline,
		Policies:   policies,
		Launcher: &client.AutoLauncher{
			Process: &client.ProcessLauncher{},
			WASM:    e.wasm,
		},
		Reporter:  reporter,
		Telemetry: e.tel,
	})
}

// Close flushes telemetry before the history database is closed, so the
// final run events are recorded.
func (e *environment) Close(ctx context.Context) {
	var errs []error
	if e.tel != nil {
		errs = append(errs, e.tel.Shutdown(ctx))
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	if e.wasm != nil {
		errs = append(errs, e.wasm.Close(ctx))
	}
	if e.github != nil {
		errs = append(errs, e.github.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("Shutdown incomplete")
	}
}
