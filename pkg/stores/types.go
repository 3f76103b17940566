package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a recorded run
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Counts are the outcome counters of a run or a plugin invocation.
type Counts struct {
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Invalid   int `json:"invalid"`
}

// Run represents one recorded nk command. Only counts are kept, never
// states or plugin output.
type Run struct {
	ID          string        `json:"id"`
	Command     string        `json:"command"`
	Status      RunStatus     `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Plugins     int           `json:"plugins"`
	Unmatched   int           `json:"unmatched"`
	Errors      int           `json:"errors"`
	Counts
	Error *string `json:"error,omitempty"`
}

// PluginRun is one plugin invocation of a run
type PluginRun struct {
	ID       int64         `json:"id"`
	RunID    string        `json:"run_id"`
	Plugin   string        `json:"plugin"`
	Status   RunStatus     `json:"status"`
	States   int           `json:"states"`
	Duration time.Duration `json:"duration"`
	Counts
	Error      *string   `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Type      string     `json:"type"`
	Level     EventLevel `json:"level"`
	Plugin    *string    `json:"plugin,omitempty"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the run history
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	CompleteRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// PluginRun operations
	AppendPluginRun(ctx context.Context, pr *PluginRun) error
	ListPluginRuns(ctx context.Context, runID string) ([]*PluginRun, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
