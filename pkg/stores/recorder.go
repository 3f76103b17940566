package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/nk/pkg/telemetry"
)

// Recorder writes telemetry events of runs into a Store.
type Recorder struct {
	store   Store
	logger  zerolog.Logger
	timeout time.Duration
}

// NewRecorder creates a recorder for store. Write failures are logged and
// never fail a run.
func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger, timeout: 5 * time.Second}
}

// Attach subscribes the recorder to the run events of publisher.
func (r *Recorder) Attach(publisher *telemetry.EventPublisher) {
	publisher.Subscribe(r.Handle, telemetry.FilterByType(
		telemetry.EventTypeRunStarted,
		telemetry.EventTypePluginCompleted,
		telemetry.EventTypeStateUnmatched,
		telemetry.EventTypeRunCompleted,
		telemetry.EventTypeRunFailed,
	))
}

// Handle records one event.
func (r *Recorder) Handle(event telemetry.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.handle(ctx, event); err != nil {
		r.logger.Warn().Err(err).
			Str("event", event.Type).
			Str("run_id", event.RunID).
			Msg("Failed to record run history")
	}
}

func (r *Recorder) handle(ctx context.Context, event telemetry.Event) error {
	switch event.Type {
	case telemetry.EventTypeRunStarted:
		command, _ := event.Data["command"].(string)
		if err := r.store.CreateRun(ctx, &Run{
			ID:        event.RunID,
			Command:   command,
			StartedAt: event.Timestamp.UTC(),
		}); err != nil {
			return err
		}

	case telemetry.EventTypePluginCompleted:
		pr := &PluginRun{
			RunID:      event.RunID,
			Plugin:     event.Plugin,
			Status:     RunStatus(stringField(event.Data, "status")),
			States:     intField(event.Data, "states"),
			Duration:   durationField(event.Data),
			Counts:     countsOf(event.Data),
			Error:      optionalString(event.Data, "error"),
			FinishedAt: event.Timestamp.UTC(),
		}
		if err := r.store.AppendPluginRun(ctx, pr); err != nil {
			return err
		}

	case telemetry.EventTypeRunCompleted, telemetry.EventTypeRunFailed:
		run, err := r.store.GetRun(ctx, event.RunID)
		if err != nil {
			return err
		}
		completed := event.Timestamp.UTC()
		run.CompletedAt = &completed
		run.Duration = durationField(event.Data)
		run.Plugins = intField(event.Data, "plugins")
		run.Unmatched = intField(event.Data, "unmatched")
		run.Errors = intField(event.Data, "errors")
		run.Counts = countsOf(event.Data)
		run.Status = RunStatusSuccess
		if event.Type == telemetry.EventTypeRunFailed {
			run.Status = RunStatusFailed
			run.Error = optionalString(event.Data, "reason")
		}
		if err := r.store.CompleteRun(ctx, run); err != nil {
			return err
		}
	}

	return r.appendEvent(ctx, event)
}

func (r *Recorder) appendEvent(ctx context.Context, event telemetry.Event) error {
	e := &Event{
		RunID:     event.RunID,
		Type:      event.Type,
		Level:     EventLevel(event.Level),
		Message:   event.Message,
		Timestamp: event.Timestamp.UTC(),
	}
	if event.Plugin != "" {
		plugin := event.Plugin
		e.Plugin = &plugin
	}
	if len(event.Data) > 0 {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return err
		}
		details := string(data)
		e.Details = &details
	}
	return r.store.AppendEvent(ctx, e)
}

func countsOf(data map[string]interface{}) Counts {
	return Counts{
		Changed:   intField(data, "changed"),
		Unchanged: intField(data, "unchanged"),
		Failed:    intField(data, "failed"),
		Invalid:   intField(data, "invalid"),
	}
}

func intField(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func optionalString(data map[string]interface{}, key string) *string {
	if s := stringField(data, key); s != "" {
		return &s
	}
	return nil
}

func durationField(data map[string]interface{}) time.Duration {
	return time.Duration(intField(data, "duration_ms")) * time.Millisecond
}
