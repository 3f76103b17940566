package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/policy"
)

// Validator checks every declared state before anything is spawned.
type Validator struct {
	// Schemas compiles and evaluates plugin schemas.
	Schemas *config.SchemaRegistry

	// Policies is optional.
	Policies *policy.Engine

	// Vars are passed to policies.
	Vars map[string]any

	Reporter Reporter
}

// SchemaName is the registry name of a plugin's state schema.
func SchemaName(plugin string) string {
	return "plugin/" + plugin
}

// Validate checks every state of every set against its plugin's schema and
// the policies. All violations are returned together as one validation
// error whose "violations" detail holds their count.
func (v *Validator) Validate(ctx context.Context, sets []*ExecutionSet) error {
	reporter := v.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}

	var violations []error

	for _, set := range sets {
		schemaErrs, err := v.validateSchema(set)
		if err != nil {
			return err
		}
		violations = append(violations, schemaErrs...)
	}

	if v.Policies != nil && v.Policies.Len() > 0 {
		result, err := v.Policies.Evaluate(ctx, v.policyInputs(sets))
		if err != nil {
			return NewValidationError("failed to evaluate policies", err).WithCode(ErrCodePolicy)
		}
		for _, w := range result.Warnings {
			reporter.Warning(w)
		}
		for _, pv := range result.Violations {
			violations = append(violations, NewValidationError("denied by policy "+pv.Policy, errors.New(pv.Message)).
				WithPlugin(pv.Plugin).
				WithCode(ErrCodePolicy).
				WithDetail("declaration", pv.Declaration))
		}
	}

	if len(violations) == 0 {
		return nil
	}

	noun := "states"
	if len(violations) == 1 {
		noun = "state"
	}
	return NewValidationError(
		fmt.Sprintf("%d %s failed validation, no plugin was run", len(violations), noun),
		errors.Join(violations...),
	).WithDetail("violations", len(violations))
}

func (v *Validator) validateSchema(set *ExecutionSet) ([]error, error) {
	p := set.Plugin
	if p.Definition.Schema == nil {
		return nil, nil
	}

	name := SchemaName(p.Name())
	if !v.Schemas.HasSchema(name) {
		if err := v.Schemas.RegisterJSONSchema(name, p.Definition.Schema); err != nil {
			return nil, NewConfigurationError("invalid plugin schema", err).
				WithPlugin(p.Name()).
				WithSource(p.Path)
		}
	}

	var violations []error
	for i, ds := range set.States {
		if err := v.Schemas.Validate(name, ds.State); err != nil {
			violations = append(violations, NewValidationError(
				fmt.Sprintf("%s state %d (%s)", ds.Declaration, i, describe(ds.State)),
				err,
			).WithPlugin(p.Name()).WithCode(ErrCodeSchema).WithDetail("declaration", ds.Declaration))
		}
	}
	return violations, nil
}

func (v *Validator) policyInputs(sets []*ExecutionSet) []policy.Input {
	var inputs []policy.Input
	for _, set := range sets {
		info := policy.PluginInfo{
			Name:    set.Plugin.Name(),
			Version: set.Plugin.Version,
			Source:  set.Plugin.Source.Raw,
		}
		for _, ds := range set.States {
			inputs = append(inputs, policy.Input{
				Declaration: ds.Declaration,
				State:       ds.State,
				Plugin:      info,
				Vars:        v.Vars,
			})
		}
	}
	return inputs
}

// describe renders a short form of a state for messages.
func describe(st any) string {
	s := []rune(fmt.Sprintf("%v", st))
	if len(s) > 40 {
		return string(s[:37]) + "..."
	}
	return string(s)
}
