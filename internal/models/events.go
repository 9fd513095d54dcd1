package models

import (
	"encoding/json"
	"time"
)

// EventType identifies a push event emitted by the pipeline executor.
type EventType string

// Inbound event types.
const (
	EventJobCreated         EventType = "job:created"
	EventJobProgress        EventType = "job:progress"
	EventJobCompleted       EventType = "job:completed"
	EventJobSkipped         EventType = "job:skipped"
	EventValidationProgress EventType = "config:validation_progress"
	EventValidationComplete EventType = "config:validation_complete"
	EventStatsUpdated       EventType = "stats:updated"
)

// Envelope is the wire frame published on scope channels. Data carries the
// event-specific payload; stats:updated carries none.
type Envelope struct {
	Event     EventType       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// SkippedPayload is the lightweight body of a job:skipped event. Unlike the
// other job events it does not carry a full Job.
type SkippedPayload struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// ValidationProgress is one step of a config URL validation run.
type ValidationProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	URL     string `json:"url"`
	Status  string `json:"status"`
}

// ValidationIssue describes one problem found during validation.
type ValidationIssue struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// ValidationResult is the terminal payload of a validation run.
type ValidationResult struct {
	Valid    int               `json:"valid"`
	Invalid  int               `json:"invalid"`
	Total    int               `json:"total"`
	Issues   []ValidationIssue `json:"issues,omitempty"`
	Duration float64           `json:"duration_seconds,omitempty"`
}
