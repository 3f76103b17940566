package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/nk/pkg/runner/client"
	"github.com/openfroyo/nk/pkg/runner/protocol"
	"github.com/openfroyo/nk/pkg/telemetry"
)

// Provisioner runs scheduled execution sets one plugin at a time.
type Provisioner struct {
	Launcher  client.Launcher
	Reporter  Reporter
	Telemetry *telemetry.Telemetry
}

// Run spawns the plugin of every set in order, feeding it the set's states
// and streaming its results to the reporter. Every set is run even after a
// failure. The returned error summarizes all failures.
func (p *Provisioner) Run(ctx context.Context, runID string, info protocol.ProvisionInfo, sets []*ExecutionSet) (*Summary, error) {
	tel := p.Telemetry
	if tel == nil {
		tel = telemetry.NewNop()
	}
	reporter := p.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}

	summary := &Summary{}
	var errs []error

	for _, set := range sets {
		summary.Plugins++
		if err := p.runSet(ctx, tel, reporter, runID, info, set, summary); err != nil {
			summary.Errors++
			errs = append(errs, err)
		}
	}

	if summary.Status() == RunStatusSuccess {
		return summary, nil
	}
	return summary, NewExecutionError(failureMessage(summary), errors.Join(errs...)).
		WithCode(ErrCodeStateFailed)
}

func (p *Provisioner) runSet(
	ctx context.Context,
	tel *telemetry.Telemetry,
	reporter Reporter,
	runID string,
	info protocol.ProvisionInfo,
	set *ExecutionSet,
	summary *Summary,
) (err error) {
	plugin := set.Plugin
	name := plugin.Name()

	ctx = telemetry.WithPluginContext(ctx, name, plugin.Version)
	logger := telemetry.FromContext(ctx)
	ctx, span := tel.Tracer.StartPluginSpan(ctx, name, len(set.States))
	timer := telemetry.NewTimer()

	counts := &Summary{}
	defer func() {
		status := string(RunStatusSuccess)
		if err != nil || counts.Status() == RunStatusFailed {
			status = string(RunStatusFailed)
		}
		duration := timer.Duration()

		telemetry.End(span, err)
		tel.Metrics.RecordPluginInvocation(name, status, duration)

		data := counts.Data()
		delete(data, "plugins")
		delete(data, "unmatched")
		data["states"] = len(set.States)
		data["status"] = status
		if err != nil {
			data["error"] = err.Error()
		}
		tel.LogPublishError(ctx, tel.Events.PublishPluginCompleted(runID, name, duration, data))

		reporter.PluginFinished(plugin, err)
	}()

	reporter.PluginStarted(plugin, len(set.States))
	logger.Debugf("Running %s with %d states", plugin.ExecutablePath(), len(set.States))

	session, err := p.Launcher.Launch(ctx, client.Request{
		Executable: plugin.ExecutablePath(),
		Dir:        plugin.Path,
		Info:       info,
		States:     set.States,
	})
	if err != nil {
		return NewExecutionError("failed to run plugin", err).
			WithPlugin(name).
			WithCode(ErrCodeSpawn)
	}

	var streamErr error
	for out, lineErr := range session.Results() {
		var le *protocol.LineError
		switch {
		case lineErr == nil:
			outcome := Classify(out)
			counts.Add(outcome)
			tel.Metrics.RecordState(name, string(outcome))
			reporter.Result(plugin, out, outcome)
		case errors.As(lineErr, &le):
			counts.Add(OutcomeInvalid)
			tel.Metrics.RecordState(name, string(OutcomeInvalid))
			reporter.LineError(plugin, lineErr)
		default:
			streamErr = lineErr
		}
	}
	merge(summary, counts)

	if err := session.Wait(); err != nil {
		return NewExecutionError("plugin failed", err).
			WithPlugin(name).
			WithCode(ErrCodeExitStatus)
	}
	if streamErr != nil {
		return NewExecutionError("failed to read plugin output", streamErr).
			WithPlugin(name).
			WithCode(ErrCodeDecode)
	}

	logger.Debugf("Plugin finished: %d changed, %d unchanged, %d failed",
		counts.Changed, counts.Unchanged, counts.Failed)
	return nil
}

func merge(dst, src *Summary) {
	dst.Changed += src.Changed
	dst.Unchanged += src.Unchanged
	dst.Failed += src.Failed
	dst.Invalid += src.Invalid
}

func failureMessage(s *Summary) string {
	var parts []string
	if s.Failed > 0 {
		parts = append(parts, plural(s.Failed, "failed state", "failed states"))
	}
	if s.Invalid > 0 {
		parts = append(parts, plural(s.Invalid, "invalid output line", "invalid output lines"))
	}
	if s.Errors > 0 {
		parts = append(parts, plural(s.Errors, "plugin error", "plugin errors"))
	}
	return "provisioning failed: " + strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
