package engine

import (
	"github.com/openfroyo/nk/pkg/runner/protocol"
)

// RunStatus is the final status of a run.
type RunStatus string

const (
	// RunStatusSuccess means every state was provisioned.
	RunStatusSuccess RunStatus = "success"

	// RunStatusFailed means at least one error was reported.
	RunStatusFailed RunStatus = "failed"
)

// Outcome classifies one result line of a plugin.
type Outcome string

const (
	// OutcomeUnchanged is a success that changed nothing. It is only shown
	// on request.
	OutcomeUnchanged Outcome = "unchanged"

	// OutcomeChanged is a success that changed the machine.
	OutcomeChanged Outcome = "changed"

	// OutcomeFailed is a failed state. It fails the run.
	OutcomeFailed Outcome = "failed"

	// OutcomeInvalid is an output line that could not be decoded. It
	// fails the run.
	OutcomeInvalid Outcome = "invalid"
)

// Classify returns the outcome of a decoded result.
func Classify(out *protocol.ProvisionStateOutput) Outcome {
	switch {
	case out.Failed():
		return OutcomeFailed
	case out.Changed:
		return OutcomeChanged
	default:
		return OutcomeUnchanged
	}
}

// Fails reports whether the outcome fails the run.
func (o Outcome) Fails() bool {
	return o == OutcomeFailed || o == OutcomeInvalid
}

// Summary counts the outcomes of a run.
type Summary struct {
	Plugins   int `json:"plugins"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Invalid   int `json:"invalid"`
	Unmatched int `json:"unmatched"`

	// Errors counts spawn failures and non-zero exits.
	Errors int `json:"errors"`
}

// Add counts one outcome.
func (s *Summary) Add(o Outcome) {
	switch o {
	case OutcomeChanged:
		s.Changed++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeFailed:
		s.Failed++
	case OutcomeInvalid:
		s.Invalid++
	}
}

// Status returns the run status the summary implies.
func (s *Summary) Status() RunStatus {
	if s.Failed > 0 || s.Invalid > 0 || s.Errors > 0 {
		return RunStatusFailed
	}
	return RunStatusSuccess
}

// Data returns the summary as event data.
func (s *Summary) Data() map[string]interface{} {
	return map[string]interface{}{
		"plugins":   s.Plugins,
		"changed":   s.Changed,
		"unchanged": s.Unchanged,
		"failed":    s.Failed,
		"invalid":   s.Invalid,
		"unmatched": s.Unmatched,
		"errors":    s.Errors,
	}
}
