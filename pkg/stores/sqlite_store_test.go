package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "plugin_runs", "events"} {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Migrating again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migration failed: %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.CreateRun(ctx, &Run{ID: "r1", Command: "provision", StartedAt: started}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	run, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("Expected status running, got %s", run.Status)
	}
	if run.CompletedAt != nil {
		t.Errorf("Expected no completion time, got %v", run.CompletedAt)
	}

	msg := "provisioning failed: 1 failed state"
	completed := started.Add(3 * time.Second)
	run.Status = RunStatusFailed
	run.CompletedAt = &completed
	run.Duration = 3 * time.Second
	run.Plugins = 2
	run.Unmatched = 1
	run.Counts = Counts{Changed: 2, Unchanged: 4, Failed: 1}
	run.Error = &msg
	if err := store.CompleteRun(ctx, run); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if diff := cmp.Diff(run, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
	if err := store.DeleteRun(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on delete, got: %v", err)
	}
}

func TestListAndPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		run := &Run{ID: id, Command: "provision", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	ids := func(runs []*Run) []string {
		var out []string
		for _, r := range runs {
			out = append(out, r.ID)
		}
		return out
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if diff := cmp.Diff([]string{"r3", "r2", "r1"}, ids(runs)); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}

	runs, err = store.ListRuns(ctx, 1, 1)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if diff := cmp.Diff([]string{"r2"}, ids(runs)); diff != "" {
		t.Errorf("paginated runs mismatch (-want +got):\n%s", diff)
	}

	pruned, err := store.PruneRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to prune runs: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 pruned run, got %d", pruned)
	}
	if _, err := store.GetRun(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected the oldest run to be pruned, got: %v", err)
	}
}

func TestPluginRunsAndEventsCascade(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, &Run{ID: "r1", Command: "provision"}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	for _, name := range []string{"pkg", "files"} {
		pr := &PluginRun{RunID: "r1", Plugin: name, Status: RunStatusSuccess, States: 2, Counts: Counts{Changed: 1, Unchanged: 1}}
		if err := store.AppendPluginRun(ctx, pr); err != nil {
			t.Fatalf("failed to append plugin run: %v", err)
		}
		if pr.ID == 0 {
			t.Errorf("Expected an ID to be assigned")
		}
	}

	details := `{"declaration":"services"}`
	events := []*Event{
		{RunID: "r1", Type: "run.started", Level: EventLevelInfo, Message: "started", Timestamp: time.Now()},
		{RunID: "r1", Type: "state.unmatched", Level: EventLevelWarning, Message: "unmatched", Details: &details, Timestamp: time.Now()},
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	prs, err := store.ListPluginRuns(ctx, "r1")
	if err != nil {
		t.Fatalf("failed to list plugin runs: %v", err)
	}
	if len(prs) != 2 || prs[0].Plugin != "pkg" || prs[1].Plugin != "files" {
		t.Errorf("Expected pkg then files, got %+v", prs)
	}

	warning := EventLevelWarning
	got, err := store.GetEvents(ctx, nil, &warning, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(got) != 1 || got[0].Type != "state.unmatched" || got[0].Details == nil || *got[0].Details != details {
		t.Errorf("Expected the warning event, got %+v", got)
	}

	if err := store.DeleteRun(ctx, "r1"); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	prs, err = store.ListPluginRuns(ctx, "r1")
	if err != nil {
		t.Fatalf("failed to list plugin runs: %v", err)
	}
	runID := "r1"
	left, err := store.GetEvents(ctx, &runID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(prs) != 0 || len(left) != 0 {
		t.Errorf("Expected plugin runs and events to be deleted with the run, got %d and %d", len(prs), len(left))
	}
}
