package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass groups errors by the phase of a run that produced them.
type ErrorClass string

const (
	// ErrorClassConfiguration covers bad .nk.yml files, state files,
	// plugin definitions and scheduling constraints.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassEvaluation covers `when` rules that fail to parse or evaluate.
	ErrorClassEvaluation ErrorClass = "evaluation"

	// ErrorClassValidation covers states rejected by plugin schemas or policies.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassAcquisition covers downloading and installing remote plugins.
	ErrorClassAcquisition ErrorClass = "acquisition"

	// ErrorClassExecution covers spawning plugins, their exit status and
	// their output.
	ErrorClassExecution ErrorClass = "execution"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Source is the state source or file the error relates to.
	Source string `json:"source,omitempty"`

	// Rule is the `when` rule involved, if any.
	Rule string `json:"rule,omitempty"`

	// Plugin is the plugin involved, if any.
	Plugin string `json:"plugin,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	var ctx []string
	if e.Plugin != "" {
		ctx = append(ctx, "plugin="+e.Plugin)
	}
	if e.Source != "" {
		ctx = append(ctx, "source="+e.Source)
	}
	if e.Rule != "" {
		ctx = append(ctx, fmt.Sprintf("rule=%q", e.Rule))
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{
		Class:   class,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *EngineError {
	return newError(ErrorClassConfiguration, message, err)
}

// NewEvaluationError creates a new evaluation error.
func NewEvaluationError(message string, err error) *EngineError {
	return newError(ErrorClassEvaluation, message, err)
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return newError(ErrorClassValidation, message, err)
}

// NewAcquisitionError creates a new acquisition error.
func NewAcquisitionError(message string, err error) *EngineError {
	return newError(ErrorClassAcquisition, message, err)
}

// NewExecutionError creates a new execution error.
func NewExecutionError(message string, err error) *EngineError {
	return newError(ErrorClassExecution, message, err)
}

// WithSource adds source context to an error.
func (e *EngineError) WithSource(source string) *EngineError {
	e.Source = source
	return e
}

// WithRule adds rule context to an error.
func (e *EngineError) WithRule(rule string) *EngineError {
	e.Rule = rule
	return e
}

// WithPlugin adds plugin context to an error.
func (e *EngineError) WithPlugin(plugin string) *EngineError {
	e.Plugin = plugin
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of the first EngineError in err's chain, or
// "" if there is none.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsConfiguration returns true if the error is classified as configuration.
func IsConfiguration(err error) bool {
	return ClassOf(err) == ErrorClassConfiguration
}

// IsEvaluation returns true if the error is classified as evaluation.
func IsEvaluation(err error) bool {
	return ClassOf(err) == ErrorClassEvaluation
}

// IsValidation returns true if the error is classified as validation.
func IsValidation(err error) bool {
	return ClassOf(err) == ErrorClassValidation
}

// IsAcquisition returns true if the error is classified as acquisition.
func IsAcquisition(err error) bool {
	return ClassOf(err) == ErrorClassAcquisition
}

// IsExecution returns true if the error is classified as execution.
func IsExecution(err error) bool {
	return ClassOf(err) == ErrorClassExecution
}

// Common error codes.
const (
	ErrCodeCycle           = "CYCLE"
	ErrCodeSchema          = "SCHEMA_VIOLATION"
	ErrCodePolicy          = "POLICY_VIOLATION"
	ErrCodeSpawn           = "SPAWN_FAILED"
	ErrCodeExitStatus      = "EXIT_STATUS"
	ErrCodeDecode          = "DECODE_FAILED"
	ErrCodeStateFailed     = "STATE_FAILED"
	ErrCodeRunningAsRoot   = "RUNNING_AS_ROOT"
	ErrCodeUnknownPlugin   = "UNKNOWN_PLUGIN"
	ErrCodeInvalidFilter   = "INVALID_FILTER"
	ErrCodeInvalidTemplate = "INVALID_TEMPLATE"
)
