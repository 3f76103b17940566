// Package telemetry provides observability instrumentation for nk.
//
// The package integrates structured logging (zerolog), tracing
// (OpenTelemetry), metrics (Prometheus) and run events into a single
// Telemetry value created at startup.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.ConfigFromEnv())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, run := tel.StartRun(ctx, runID, "provision")
//	err = provision(ctx)
//	run.End(status, err, nil)
//
// # Logging
//
// Loggers are carried in the context:
//
//	logger := telemetry.FromContext(ctx).WithPlugin("pkg", "v1.2.0")
//	logger.Info("running plugin")
//
// Log levels: trace, debug, info, warn, error.
//
// # Tracing
//
// Spans are only recorded when an exporter is configured. Set
// NK_TRACE_EXPORTER to "stdout" or "otlp", or set
// OTEL_EXPORTER_OTLP_ENDPOINT to export to a collector.
//
// # Metrics
//
// nk is a short-lived process, so metrics are not served over HTTP. When
// MetricsConfig.TextfilePath is set they are written on Shutdown in the
// node exporter textfile format:
//
//   - nk_runs_total{status}
//   - nk_run_duration_seconds{status}
//   - nk_plugin_invocations_total{plugin,status}
//   - nk_plugin_duration_seconds{plugin}
//   - nk_states_total{plugin,outcome}
//   - nk_plugin_acquisitions_total{plugin,outcome}
//   - nk_schema_violations_total
//   - nk_errors_total{class}
//
// # Events
//
// Subscribers receive run.started, plugin.completed, state.unmatched and
// run.completed or run.failed, in that order. The run history store is a
// subscriber.
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Message)
//	}, telemetry.FilterByType(telemetry.EventTypeRunFailed))
package telemetry
