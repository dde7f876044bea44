package session

import (
	"time"

	"github.com/spboyer/arena/internal/models"
	"github.com/spboyer/arena/internal/orchestration"
)

// EventType identifies the kind of session event.
type EventType string

const (
	EventSessionStart  EventType = "session_start"
	EventSessionEnd    EventType = "session_complete"
	EventRunStart      EventType = EventType(orchestration.EventRunStart)
	EventPhaseStart    EventType = EventType(orchestration.EventPhaseStart)
	EventCallSettled   EventType = EventType(orchestration.EventCallSettled)
	EventPhaseComplete EventType = EventType(orchestration.EventPhaseComplete)
	EventRunComplete   EventType = EventType(orchestration.EventRunComplete)
	EventError         EventType = "error"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// SessionStartData returns event data for a session start.
func SessionStartData(specPath, engine string, strategy models.Strategy, testCaseCount int) map[string]any {
	return map[string]any{
		"spec_path":       specPath,
		"engine":          engine,
		"strategy":        string(strategy),
		"test_case_count": testCaseCount,
	}
}

// SessionCompleteData returns event data for a session end.
func SessionCompleteData(runID string, s models.RunSummary, durationMs int64) map[string]any {
	return map[string]any{
		"run_id":              runID,
		"total_test_cases":    s.TotalTestCases,
		"generated":           s.Generated,
		"scored":              s.Scored,
		"generation_failures": s.GenerationFailures,
		"evaluation_failures": s.EvaluationFailures,
		"duration_ms":         durationMs,
	}
}

// ProgressData returns event data for a pipeline progress event.
func ProgressData(ev orchestration.ProgressEvent) map[string]any {
	d := map[string]any{
		"run_id":    ev.RunID,
		"phase":     string(ev.Phase),
		"completed": ev.Completed,
		"total":     ev.Total,
		"percent":   ev.Percent,
	}
	if ev.EventType == orchestration.EventCallSettled {
		d["test_case_id"] = ev.TestCaseID
		d["index"] = ev.CurrentIndex
		d["failed"] = ev.Failed
		d["cached"] = ev.Cached
	}
	return d
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
