package engine

import (
	"github.com/openfroyo/nk/pkg/plugins"
	"github.com/openfroyo/nk/pkg/policy"
	"github.com/openfroyo/nk/pkg/runner/protocol"
)

// Reporter receives user-facing progress of a run. Implementations decide
// what is shown; the engine reports everything.
type Reporter interface {
	// Unmatched is called once per state no plugin accepted.
	Unmatched(ds DeclaredState)

	// Warning is called for policy warnings.
	Warning(v policy.Violation)

	// PluginStarted is called before a plugin is spawned.
	PluginStarted(p *plugins.Plugin, states int)

	// Result is called for each decoded result line, in emission order.
	Result(p *plugins.Plugin, out *protocol.ProvisionStateOutput, outcome Outcome)

	// LineError is called for each output line that could not be decoded.
	LineError(p *plugins.Plugin, err error)

	// PluginFinished is called after the plugin exited. err is set when
	// it could not be spawned or exited with a non-zero status.
	PluginFinished(p *plugins.Plugin, err error)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Unmatched(DeclaredState) {}
func (NopReporter) Warning(policy.Violation) {}
func (NopReporter) PluginStarted(*plugins.Plugin, int) {}
func (NopReporter) Result(*plugins.Plugin, *protocol.ProvisionStateOutput, Outcome) {}
func (NopReporter) LineError(*plugins.Plugin, error) {}
func (NopReporter) PluginFinished(*plugins.Plugin, error) {}
