package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes events in the system.
type EventType string

const (
	// Job events
	EventTypeJobCreated      EventType = "job.created"
	EventTypeJobSubmitted    EventType = "job.submitted"
	EventTypeJobStateChanged EventType = "job.state_changed"
	EventTypeJobCompleted    EventType = "job.completed"
	EventTypeJobFailed       EventType = "job.failed"
	EventTypeJobCancelled    EventType = "job.cancelled"

	// Script events
	EventTypeScriptRendered EventType = "script.rendered"
	EventTypeScriptUploaded EventType = "script.uploaded"

	// Run events
	EventTypeRunStarted  EventType = "run.started"
	EventTypeRunFinished EventType = "run.finished"

	// System events
	EventTypeError   EventType = "error"
	EventTypeWarning EventType = "warning"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeJob    EntityType = "job"
	EntityTypeRun    EntityType = "run"
	EntityTypeSystem EntityType = "system"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// StateChangedPayload is the payload for job.state_changed events.
type StateChangedPayload struct {
	OldState JobState `json:"old_state"`
	NewState JobState `json:"new_state"`
	BatchID  string   `json:"batch_id,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// JobSubmittedPayload is the payload for job.submitted events.
type JobSubmittedPayload struct {
	BatchID    string `json:"batch_id"`
	Host       string `json:"host,omitempty"`
	ScriptPath string `json:"script_path"`
	Attempt    int    `json:"attempt"`
}

// JobFailedPayload is the payload for job.failed events.
type JobFailedPayload struct {
	BatchID  string `json:"batch_id,omitempty"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// ScriptRenderedPayload is the payload for script.rendered events.
type ScriptRenderedPayload struct {
	Skeleton   string `json:"skeleton"`
	ScriptPath string `json:"script_path"`
	Bytes      int    `json:"bytes"`
}

// RunFinishedPayload is the payload for run.finished events.
type RunFinishedPayload struct {
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Duration  string `json:"duration"`
}

// ErrorPayload is the payload for error events.
type ErrorPayload struct {
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
}
