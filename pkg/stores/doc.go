// Package stores keeps the run history of nk in SQLite. A Recorder
// subscribed to the telemetry events writes one row per run and per plugin
// invocation, plus the run's event log. Only counts are stored, never
// states or plugin output.
package stores
