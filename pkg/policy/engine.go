package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
)

// Engine evaluates the deny rules of a fixed set of policies.
type Engine struct {
	policies []*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine compiles the given policies. Every policy must define its
// deny rules in its own package.
func NewEngine(ctx context.Context, logger zerolog.Logger, policies []Policy) (*Engine, error) {
	e := &Engine{
		logger: logger.With().Str("component", "policy-engine").Logger(),
	}

	for i := range policies {
		cp, err := compile(ctx, &policies[i])
		if err != nil {
			return nil, fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		e.policies = append(e.policies, cp)
	}

	e.logger.Debug().Int("count", len(e.policies)).Msg("Policies compiled")
	return e, nil
}

func compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, err
	}

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return &compiledPolicy{policy: policy, query: query}, nil
}

// Len returns the number of compiled policies.
func (e *Engine) Len() int {
	return len(e.policies)
}

// Evaluate runs every policy against every input and collects all
// violations. An evaluation error stops the evaluation.
func (e *Engine) Evaluate(ctx context.Context, inputs []Input) (*Result, error) {
	result := &Result{}

	for _, cp := range e.policies {
		for i := range inputs {
			denials, err := cp.eval(ctx, &inputs[i])
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", cp.policy.Name, err)
			}
			for _, d := range denials {
				result.add(cp.violation(d, &inputs[i]))
			}
		}
	}

	e.logger.Debug().
		Int("inputs", len(inputs)).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Msg("Policy evaluation completed")

	return result, nil
}

func (cp *compiledPolicy) eval(ctx context.Context, input *Input) ([]interface{}, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var denials []interface{}
	for _, result := range results {
		for _, expr := range result.Expressions {
			if set, ok := expr.Value.([]interface{}); ok {
				denials = append(denials, set...)
			}
		}
	}
	return denials, nil
}

// violation converts one deny value. Values are either a message string or
// an object with "message" and an optional "severity".
func (cp *compiledPolicy) violation(d interface{}, input *Input) Violation {
	v := Violation{
		Policy:      cp.policy.Name,
		Declaration: input.Declaration,
		Plugin:      input.Plugin.Name,
		Severity:    cp.policy.Severity,
	}
	if v.Severity == "" {
		v.Severity = SeverityError
	}

	switch d := d.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", d)
	}

	return v
}
