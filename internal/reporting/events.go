package reporting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Service lifecycle events
	EventTypeServiceRunning EventType = "service.running"
	EventTypeServiceExited  EventType = "service.exited"

	// Run events
	EventTypeRunState EventType = "run.state"
)

// Event is the base interface for all events carried by the bus
type Event interface {
	Type() EventType
	// Source is the service or component the event is about
	Source() string
	Timestamp() time.Time
	// RunID correlates the event with its orchestration run
	RunID() string
	String() string
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	EventType   EventType `json:"type"`
	SourceLabel string    `json:"source"`
	EventTime   time.Time `json:"timestamp"`
	Run         string    `json:"run_id"`
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Source() string       { return e.SourceLabel }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e BaseEvent) RunID() string        { return e.Run }

func (e BaseEvent) String() string {
	return string(e.EventType) + " from " + e.SourceLabel
}

// LaunchEvent is an observed transition of a launched service: it entered
// Running, or it exited with a status.
type LaunchEvent struct {
	BaseEvent
	PID    int   `json:"pid,omitempty"`
	Status int   `json:"status"`
	Error  error `json:"-"`
}

// Service returns the service the event is about.
func (e LaunchEvent) Service() string {
	return e.SourceLabel
}

// IsExit reports whether this is the terminal event of the service.
func (e LaunchEvent) IsExit() bool {
	return e.EventType == EventTypeServiceExited
}

// String returns a human-readable description
func (e LaunchEvent) String() string {
	switch e.EventType {
	case EventTypeServiceExited:
		if e.Error != nil {
			return fmt.Sprintf("%s exited with status %d (error: %v)", e.SourceLabel, e.Status, e.Error)
		}
		return fmt.Sprintf("%s exited with status %d", e.SourceLabel, e.Status)
	case EventTypeServiceRunning:
		if e.PID > 0 {
			return fmt.Sprintf("%s running (pid %d)", e.SourceLabel, e.PID)
		}
		return e.SourceLabel + " running"
	default:
		return e.BaseEvent.String()
	}
}

// NewRunningEvent creates the event emitted once a service has been started.
func NewRunningEvent(runID, service string, pid int) LaunchEvent {
	return LaunchEvent{
		BaseEvent: BaseEvent{EventType: EventTypeServiceRunning, SourceLabel: service, EventTime: time.Now(), Run: runID},
		PID:       pid,
	}
}

// NewExitedEvent creates the terminal event of a service. A start failure is
// reported as an exit with status -1 and the start error.
func NewExitedEvent(runID, service string, status int, err error) LaunchEvent {
	return LaunchEvent{
		BaseEvent: BaseEvent{EventType: EventTypeServiceExited, SourceLabel: service, EventTime: time.Now(), Run: runID},
		Status:    status,
		Error:     err,
	}
}

// RunStateEvent announces a change of the overall run state.
type RunStateEvent struct {
	BaseEvent
	OldState RunState `json:"old_state"`
	NewState RunState `json:"new_state"`
	Reason   string   `json:"reason,omitempty"`
}

// String returns a human-readable description
func (e RunStateEvent) String() string {
	if e.Reason != "" {
		return fmt.Sprintf("run %s: %s → %s (%s)", e.Run, e.OldState, e.NewState, e.Reason)
	}
	return fmt.Sprintf("run %s: %s → %s", e.Run, e.OldState, e.NewState)
}

// NewRunStateEvent creates a run state change event.
func NewRunStateEvent(runID string, oldState, newState RunState, reason string) RunStateEvent {
	return RunStateEvent{
		BaseEvent: BaseEvent{EventType: EventTypeRunState, SourceLabel: "run", EventTime: time.Now(), Run: runID},
		OldState:  oldState,
		NewState:  newState,
		Reason:    reason,
	}
}

// NewRunID returns a fresh identifier for an orchestration run.
func NewRunID() string {
	return uuid.New().String()
}
