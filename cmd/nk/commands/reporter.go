package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/openfroyo/nk/pkg/engine"
	"github.com/openfroyo/nk/pkg/plugins"
	"github.com/openfroyo/nk/pkg/policy"
	"github.com/openfroyo/nk/pkg/runner/protocol"
)

var (
	changedColor = color.New(color.FgGreen, color.Bold)
	failedColor  = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

// terminalReporter prints the outcome of a run as it happens.
type terminalReporter struct {
	out           io.Writer
	showUnchanged bool
}

func newTerminalReporter(out io.Writer, showUnchanged bool) *terminalReporter {
	return &terminalReporter{out: out, showUnchanged: showUnchanged}
}

func (r *terminalReporter) Unmatched(ds engine.DeclaredState) {
	_, _ = dimColor.Fprintf(r.out, "- %s: no plugin provisions this state\n", ds.Declaration)
}

func (r *terminalReporter) Warning(v policy.Violation) {
	_, _ = warningColor.Fprintf(r.out, "⚠ %s\n", v.String())
}

func (r *terminalReporter) PluginStarted(p *plugins.Plugin, states int) {
	_, _ = headerColor.Fprintf(r.out, "▸ %s (%d %s)\n", p.Name(), states, plural(states, "state", "states"))
}

func (r *terminalReporter) Result(p *plugins.Plugin, out *protocol.ProvisionStateOutput, outcome engine.Outcome) {
	switch outcome {
	case engine.OutcomeChanged:
		_, _ = changedColor.Fprintf(r.out, "  ✓ %s\n", out.Description)
	case engine.OutcomeFailed:
		_, _ = failedColor.Fprintf(r.out, "  ✗ %s\n", out.Description)
		r.indent(out.Output)
	default:
		if r.showUnchanged {
			_, _ = dimColor.Fprintf(r.out, "  • %s\n", out.Description)
		}
	}
}

func (r *terminalReporter) LineError(p *plugins.Plugin, err error) {
	_, _ = failedColor.Fprintf(r.out, "  ✗ invalid output: %v\n", err)
}

func (r *terminalReporter) PluginFinished(p *plugins.Plugin, err error) {
	if err != nil {
		_, _ = failedColor.Fprintf(r.out, "  ✗ %v\n", err)
	}
}

func (r *terminalReporter) indent(output string) {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return
	}
	for _, line := range strings.Split(output, "\n") {
		fmt.Fprintf(r.out, "    %s\n", line)
	}
}

// Summary prints the totals of a finished run.
func (r *terminalReporter) Summary(s *engine.Summary) {
	fmt.Fprintln(r.out)
	line := fmt.Sprintf("%d changed, %d unchanged, %d failed", s.Changed, s.Unchanged, s.Failed)
	if s.Invalid > 0 {
		line += fmt.Sprintf(", %d invalid", s.Invalid)
	}
	if s.Unmatched > 0 {
		line += fmt.Sprintf(", %d unmatched", s.Unmatched)
	}
	if s.Status() == engine.RunStatusFailed {
		_, _ = failedColor.Fprintln(r.out, line)
		return
	}
	_, _ = changedColor.Fprintln(r.out, line)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
