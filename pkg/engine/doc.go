// Package engine turns resolved state into plugin runs.
//
// # Workflow
//
// A Pipeline runs the stages of one invocation of nk:
//
//  1. Plugins - acquire remote plugins and load every configured plugin
//  2. Resolve - fold the state sources, seeded with plugin dependencies
//  3. Match - route each state to the first plugin whose provision.when holds
//  4. Schedule - order plugins by their `after` constraints (DAGBuilder)
//  5. Validate - check states against plugin schemas and policies
//  6. Provision - run each plugin once with all of its states
//
// Nothing is spawned unless every state passes validation. Plugins run one
// at a time. Each is invoked as `<executable> provision <info>`, reads all
// of its states as one JSON array on stdin and answers with one result per
// line on stdout.
//
// # Ordering
//
// A plugin whose after list names a declaration provisioned by another
// plugin runs after that plugin. Plugins without constraints keep their
// configuration order. A cycle is reported as a configuration error:
//
//	plugin ordering cycle: a -> b -> a
//
// # Error Classification
//
// Every error returned by the engine is an *EngineError with one of these
// classes:
//
//   - configuration: invalid sources, manifests, schemas or ordering cycles
//   - evaluation: a condition or filter failed to compile or evaluate
//   - validation: states rejected by a schema or a policy
//   - acquisition: a remote plugin could not be installed
//   - execution: a plugin could not be spawned, exited non-zero or reported
//     failed states
//
// Use ClassOf or errors.Is with a template error to branch on them:
//
//	if errors.Is(err, &engine.EngineError{Class: engine.ErrorClassValidation}) {
//	    // nothing was run
//	}
//
// # Reporting
//
// Progress is delivered to a Reporter as it happens. Telemetry (logs, spans,
// metrics and events) is recorded through the *telemetry.Telemetry carried by
// the pipeline.
package engine
