// Package protocol defines how nk talks to plugin processes.
//
// A plugin is invoked as `<executable> provision <info>`, where info is a
// JSON encoded ProvisionInfo. Its standard input receives one JSON array of
// DeclaredState values and is then closed. The plugin answers on standard
// output with one ProvisionStateOutput JSON object per line.
package protocol

import "fmt"

// Command is the first argument of every plugin invocation.
const Command = "provision"

// ProvisionInfo is read-only context shared by every invocation of a run.
type ProvisionInfo struct {
	// Sources are the configured state directories.
	Sources []string `json:"sources"`

	// Vars are the fully merged and rendered variables.
	Vars map[string]any `json:"vars"`
}

// DeclaredState is one state instance under its declaration name.
type DeclaredState struct {
	Declaration string `json:"declaration"`
	State       any    `json:"state"`
}

// Status is the outcome of provisioning one state.
type Status string

const (
	// StatusSuccess means the state is in place.
	StatusSuccess Status = "success"
	// StatusFailed means the plugin could not provision the state.
	StatusFailed Status = "failed"
)

// Validate checks if the status is known.
func (s Status) Validate() error {
	switch s {
	case StatusSuccess, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown status: %q", s)
	}
}

// ProvisionStateOutput is a plugin's report for one state.
type ProvisionStateOutput struct {
	Status      Status `json:"status"`
	Changed     bool   `json:"changed"`
	Description string `json:"description"`
	Output      string `json:"output"`
}

// Validate checks the output is well formed.
func (o *ProvisionStateOutput) Validate() error {
	return o.Status.Validate()
}

// Failed reports whether the state could not be provisioned.
func (o *ProvisionStateOutput) Failed() bool {
	return o.Status == StatusFailed
}
