package engine

import (
	"context"
	"errors"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/eval"
	"github.com/openfroyo/nk/pkg/plugins"
	"github.com/openfroyo/nk/pkg/policy"
	"github.com/openfroyo/nk/pkg/runner/client"
	"github.com/openfroyo/nk/pkg/runner/protocol"
	"github.com/openfroyo/nk/pkg/state"
	"github.com/openfroyo/nk/pkg/telemetry"
	"github.com/openfroyo/nk/pkg/vars"
)

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Config *config.Config

	// Vars is the global scope of conditions: builtin and global user vars.
	Vars map[string]any

	System vars.System

	// PluginsDir is where remote plugins are installed.
	PluginsDir string

	// Releases fetches remote plugins. When nil, or when Offline is set,
	// only plugins already on disk are used.
	Releases plugins.ReleaseSource
	Offline  bool

	// Schemas validates manifests and plugin states. A new registry is
	// created when nil.
	Schemas *config.SchemaRegistry

	// Policies gate provisioning. Optional.
	Policies *policy.Engine

	// Launcher runs plugins. Defaults to an AutoLauncher without WASM.
	Launcher client.Launcher

	Reporter  Reporter
	Telemetry *telemetry.Telemetry
}

// Plan is everything decided before a plugin is spawned.
type Plan struct {
	Resolved  *state.ResolvedGroup
	Sets      []*ExecutionSet
	Unmatched []DeclaredState
	Graph     *DAGBuilder
}

// Pipeline runs the stages of nk for one configuration: load plugins,
// resolve state, match, schedule, validate and provision.
type Pipeline struct {
	opts     PipelineOptions
	ev       *eval.Evaluator
	tel      *telemetry.Telemetry
	reporter Reporter
	registry *plugins.Registry
}

// NewPipeline creates a pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Schemas == nil {
		opts.Schemas = config.NewSchemaRegistry()
	}
	if opts.Launcher == nil {
		opts.Launcher = &client.AutoLauncher{Process: &client.ProcessLauncher{}}
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.NewNop()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Pipeline{
		opts:     opts,
		ev:       eval.New(opts.Vars),
		tel:      tel,
		reporter: reporter,
	}
}

// Evaluator returns the evaluator of the pipeline's global scope.
func (p *Pipeline) Evaluator() *eval.Evaluator { return p.ev }

func (p *Pipeline) context(ctx context.Context) context.Context {
	if telemetry.FromTelemetryContext(ctx) == nil {
		ctx = p.tel.WithContext(ctx)
	}
	return ctx
}

// Plugins acquires remote plugins and loads every configured plugin. The
// registry is loaded once and reused by later calls.
func (p *Pipeline) Plugins(ctx context.Context) (reg *plugins.Registry, err error) {
	if p.registry != nil {
		return p.registry, nil
	}

	op := telemetry.StartOperation(p.context(ctx), "plugins.load")
	defer func() { op.End(err) }()
	logger := op.Logger.NewComponentLogger("registry").Zerolog()

	sources := p.opts.Config.PluginSources
	if p.opts.Releases != nil && !p.opts.Offline {
		acquirer := &plugins.Acquirer{
			Releases:  p.opts.Releases,
			Cache:     plugins.NewReleaseCache(),
			Schemas:   p.opts.Schemas,
			Evaluator: p.ev,
			System:    p.opts.System,
			Dir:       p.opts.PluginsDir,
			Logger:    logger,
			Recorder:  p.tel.Metrics,
		}
		if err := acquirer.Acquire(op.Ctx, sources); err != nil {
			return nil, NewAcquisitionError("failed to acquire plugins", err)
		}
	}

	reg, err = plugins.Load(op.Ctx, plugins.LoadOptions{
		Sources:   sources,
		Dir:       p.opts.PluginsDir,
		Evaluator: p.ev,
		Logger:    logger,
	})
	if err != nil {
		return nil, classify(err, "failed to load plugins")
	}

	op.Logger.Debugf("Loaded %d plugins", reg.Len())
	p.registry = reg
	return reg, nil
}

// Resolve folds the state of every source, seeded with the loaded plugins'
// dependencies, and renders it when render is set.
func (p *Pipeline) Resolve(ctx context.Context, render bool) (resolved *state.ResolvedGroup, err error) {
	ctx = p.context(ctx)
	reg, err := p.Plugins(ctx)
	if err != nil {
		return nil, err
	}

	op := telemetry.StartOperation(ctx, "state.resolve")
	defer func() { op.End(err) }()

	resolved, err = state.Resolve(p.ev, state.Options{
		Sources:      p.opts.Config.Sources,
		Vars:         p.opts.Vars,
		Dependencies: reg.Dependencies(),
		Render:       render,
	})
	if err != nil {
		return nil, classify(err, "failed to resolve state")
	}
	return resolved, nil
}

// Plan resolves and renders the state, matches it to plugins, applies the
// optional filter rule and schedules the sets. Nothing is validated.
func (p *Pipeline) Plan(ctx context.Context, filter string) (plan *Plan, err error) {
	ctx = p.context(ctx)
	resolved, err := p.Resolve(ctx, true)
	if err != nil {
		return nil, err
	}

	op := telemetry.StartOperation(ctx, "plan")
	defer func() { op.End(err) }()

	match, err := Match(p.ev, p.registry.Plugins(), resolved.Declarations)
	if err != nil {
		return nil, err
	}

	sets := match.Sets
	if filter != "" {
		sets, err = Filter(p.ev, sets, filter)
		if err != nil {
			return nil, err
		}
	}

	graph := NewDAGBuilder()
	sets, err = graph.Build(sets)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Resolved:  resolved,
		Sets:      sets,
		Unmatched: match.Unmatched,
		Graph:     graph,
	}, nil
}

// Validate checks a plan's states against plugin schemas and policies.
func (p *Pipeline) Validate(ctx context.Context, plan *Plan) (err error) {
	op := telemetry.StartOperation(p.context(ctx), "validate")
	defer func() { op.End(err) }()

	v := &Validator{
		Schemas:  p.opts.Schemas,
		Policies: p.opts.Policies,
		Vars:     plan.Resolved.Vars,
		Reporter: p.reporter,
	}
	err = v.Validate(op.Ctx, plan.Sets)

	var ee *EngineError
	if errors.As(err, &ee) {
		if n, ok := ee.Details["violations"].(int); ok {
			p.tel.Metrics.RecordSchemaViolations(n)
		}
	}
	return err
}

// Provision plans, validates and runs every plugin in order as one run.
func (p *Pipeline) Provision(ctx context.Context, runID, filter string) (*Summary, error) {
	ctx, run := p.tel.StartRun(ctx, runID, "provision")

	summary, err := p.provision(ctx, runID, filter)
	if summary == nil {
		summary = &Summary{}
	}

	status := summary.Status()
	if err != nil {
		status = RunStatusFailed
		if class := ClassOf(err); class != "" {
			p.tel.Metrics.RecordError(string(class))
		}
	}
	run.End(string(status), err, summary.Data())

	return summary, err
}

func (p *Pipeline) provision(ctx context.Context, runID, filter string) (*Summary, error) {
	plan, err := p.Plan(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Unmatched: len(plan.Unmatched)}
	p.reportUnmatched(ctx, runID, plan.Unmatched)

	if err := p.Validate(ctx, plan); err != nil {
		return summary, err
	}

	prov := &Provisioner{
		Launcher:  p.opts.Launcher,
		Reporter:  p.reporter,
		Telemetry: p.tel,
	}
	info := protocol.ProvisionInfo{
		Sources: p.opts.Config.Sources,
		Vars:    plan.Resolved.Vars,
	}

	run, err := prov.Run(ctx, runID, info, plan.Sets)
	run.Unmatched = summary.Unmatched
	return run, err
}

func (p *Pipeline) reportUnmatched(ctx context.Context, runID string, unmatched []DeclaredState) {
	logger := telemetry.FromContext(ctx).Zerolog()
	for _, ds := range unmatched {
		logger.Info().Str("declaration", ds.Declaration).Msg("No plugin provisions this state")
		p.tel.LogPublishError(ctx, p.tel.Events.PublishStateUnmatched(runID, ds.Declaration))
		p.reporter.Unmatched(ds)
	}
}

// classify wraps lower-level errors in the matching engine error class.
func classify(err error, message string) error {
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	var evalErr *eval.Error
	if errors.As(err, &evalErr) {
		return NewEvaluationError(message, err).WithRule(evalErr.Rule)
	}
	return NewConfigurationError(message, err)
}
