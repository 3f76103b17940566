package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/nk/pkg/telemetry"
)

func newPublisher(t *testing.T) *telemetry.EventPublisher {
	t.Helper()
	pub, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}
	return pub
}

func TestRecorderRecordsRun(t *testing.T) {
	store := setupTestStore(t)
	pub := newPublisher(t)
	NewRecorder(store, zerolog.Nop()).Attach(pub)

	_ = pub.PublishRunStarted("r1", "provision")
	_ = pub.PublishStateUnmatched("r1", "services")
	_ = pub.PublishPluginCompleted("r1", "pkg", 1500*time.Millisecond, map[string]interface{}{
		"status":    "failed",
		"states":    3,
		"changed":   1,
		"unchanged": 1,
		"failed":    1,
		"invalid":   0,
		"error":     "plugin exited with status 1",
	})
	_ = pub.PublishRunFailed("r1", 2*time.Second, "provisioning failed: 1 failed state", map[string]interface{}{
		"plugins":   1,
		"changed":   1,
		"unchanged": 1,
		"failed":    1,
		"invalid":   0,
		"unmatched": 1,
		"errors":    1,
	})

	ctx := context.Background()
	run, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusFailed || run.Command != "provision" {
		t.Errorf("Expected a failed provision run, got %s %s", run.Status, run.Command)
	}
	wantCounts := Counts{Changed: 1, Unchanged: 1, Failed: 1}
	if diff := cmp.Diff(wantCounts, run.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if run.Plugins != 1 || run.Unmatched != 1 || run.Errors != 1 {
		t.Errorf("Expected 1 plugin, 1 unmatched and 1 error, got %d, %d, %d", run.Plugins, run.Unmatched, run.Errors)
	}
	if run.Duration != 2*time.Second {
		t.Errorf("Expected duration 2s, got %s", run.Duration)
	}
	if run.Error == nil || *run.Error != "provisioning failed: 1 failed state" {
		t.Errorf("Expected the failure reason, got %v", run.Error)
	}

	prs, err := store.ListPluginRuns(ctx, "r1")
	if err != nil {
		t.Fatalf("failed to list plugin runs: %v", err)
	}
	if len(prs) != 1 {
		t.Fatalf("Expected 1 plugin run, got %d", len(prs))
	}
	pr := prs[0]
	if pr.Plugin != "pkg" || pr.Status != RunStatusFailed || pr.States != 3 || pr.Duration != 1500*time.Millisecond {
		t.Errorf("unexpected plugin run: %+v", pr)
	}

	runID := "r1"
	events, err := store.GetEvents(ctx, &runID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := []string{
		telemetry.EventTypeRunStarted,
		telemetry.EventTypeStateUnmatched,
		telemetry.EventTypePluginCompleted,
		telemetry.EventTypeRunFailed,
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorderRunCompleted(t *testing.T) {
	store := setupTestStore(t)
	pub := newPublisher(t)
	NewRecorder(store, zerolog.Nop()).Attach(pub)

	_ = pub.PublishRunStarted("r2", "provision")
	_ = pub.PublishRunCompleted("r2", time.Second, map[string]interface{}{"plugins": 2, "changed": 3})

	run, err := store.GetRun(context.Background(), "r2")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusSuccess || run.Changed != 3 || run.Error != nil || run.CompletedAt == nil {
		t.Errorf("unexpected run: %+v", run)
	}
}

func TestRecorderIgnoresUnknownRun(t *testing.T) {
	store := setupTestStore(t)
	r := NewRecorder(store, zerolog.Nop())

	err := r.handle(context.Background(), telemetry.Event{Type: telemetry.EventTypeRunCompleted, RunID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}

	// Handle logs instead of failing.
	r.Handle(telemetry.Event{Type: telemetry.EventTypeRunCompleted, RunID: "ghost"})
}
