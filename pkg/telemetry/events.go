package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event of a run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID.
	RunID string `json:"run_id,omitempty"`

	// Plugin is the associated plugin, if applicable.
	Plugin string `json:"plugin,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants.
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunCompleted    = "run.completed"
	EventTypeRunFailed       = "run.failed"
	EventTypePluginCompleted = "plugin.completed"
	EventTypeStateUnmatched  = "state.unmatched"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher delivers events to subscribers in publication order.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closeOnce   sync.Once
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ep := &EventPublisher{config: cfg}
	if cfg.Enabled && cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}
	return ep, nil
}

// Publish publishes an event to all subscribers. In synchronous mode
// subscribers have run when Publish returns.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	if ep.buffer == nil {
		ep.deliverEvent(event)
		return nil
	}

	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, dropping %s", event.Type)
	}
}

// PublishRunStarted publishes a run.started event.
func (ep *EventPublisher) PublishRunStarted(runID, command string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s started", runID),
		Data:    map[string]interface{}{"command": command},
	})
}

// PublishRunCompleted publishes a run.completed event.
func (ep *EventPublisher) PublishRunCompleted(runID string, duration time.Duration, data map[string]interface{}) error {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["duration_ms"] = duration.Milliseconds()
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s completed", runID),
		Data:    data,
	})
}

// PublishRunFailed publishes a run.failed event.
func (ep *EventPublisher) PublishRunFailed(runID string, duration time.Duration, reason string, data map[string]interface{}) error {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["duration_ms"] = duration.Milliseconds()
	data["reason"] = reason
	return ep.Publish(Event{
		Type:    EventTypeRunFailed,
		RunID:   runID,
		Level:   EventLevelError,
		Message: fmt.Sprintf("Run %s failed: %s", runID, reason),
		Data:    data,
	})
}

// PublishPluginCompleted publishes a plugin.completed event.
func (ep *EventPublisher) PublishPluginCompleted(runID, plugin string, duration time.Duration, data map[string]interface{}) error {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["duration_ms"] = duration.Milliseconds()
	return ep.Publish(Event{
		Type:    EventTypePluginCompleted,
		RunID:   runID,
		Plugin:  plugin,
		Message: fmt.Sprintf("Plugin %s completed", plugin),
		Data:    data,
	})
}

// PublishStateUnmatched publishes a state.unmatched event.
func (ep *EventPublisher) PublishStateUnmatched(runID, declaration string) error {
	return ep.Publish(Event{
		Type:    EventTypeStateUnmatched,
		RunID:   runID,
		Level:   EventLevelWarning,
		Message: fmt.Sprintf("No plugin provisions a %s state", declaration),
		Data:    map[string]interface{}{"declaration": declaration},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts everything.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents delivers buffered events until the buffer is closed.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for event := range ep.buffer {
		ep.deliverEvent(event)
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown delivers any buffered events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep.buffer == nil {
		return nil
	}

	ep.closeOnce.Do(func() { close(ep.buffer) })

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
