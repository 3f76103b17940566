package policy

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityWarning is reported but does not stop a run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run before any plugin is spawned.
	SeverityError Severity = "error"
)

// Policy is one Rego module whose deny rules are evaluated against every
// declared state.
type Policy struct {
	// Name identifies the policy in violations. For files it is the path.
	Name string `json:"name"`

	// Description is taken from the leading comment block of the module.
	Description string `json:"description,omitempty"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not name one.
	Severity Severity `json:"severity,omitempty"`
}

// Input is the document a policy sees as `input`.
type Input struct {
	// Declaration is the name of the declaration the state belongs to.
	Declaration string `json:"declaration"`

	// State is the rendered state.
	State any `json:"state"`

	// Plugin describes the plugin that will provision the state.
	Plugin PluginInfo `json:"plugin"`

	// Vars are the resolved variables of the run.
	Vars map[string]any `json:"vars"`
}

// PluginInfo is the plugin part of Input.
type PluginInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Violation is a single deny result.
type Violation struct {
	// Policy is the name of the policy that denied the state.
	Policy string `json:"policy"`

	// Declaration and Plugin locate the denied state.
	Declaration string `json:"declaration"`
	Plugin      string `json:"plugin"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	return v.Policy + ": " + v.Declaration + " (" + v.Plugin + "): " + v.Message
}

// Result collects the violations of one evaluation.
type Result struct {
	// Violations have error severity and block the run.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are reported only.
	Warnings []Violation `json:"warnings,omitempty"`
}

// Allowed reports whether no violation blocks the run.
func (r *Result) Allowed() bool {
	return len(r.Violations) == 0
}

func (r *Result) add(v Violation) {
	if v.Severity == SeverityWarning {
		r.Warnings = append(r.Warnings, v)
		return
	}
	r.Violations = append(r.Violations, v)
}
