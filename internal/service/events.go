package service

import (
	"time"

	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

// Event names a workflow event.
type Event string

const (
	EventSubmit    Event = "submit"
	EventApprove   Event = "approve"
	EventReject    Event = "reject"
	EventSendBack  Event = "send_back"
	EventReopen    Event = "reopen"
	EventEscalate  Event = "escalate"
	EventProvision Event = "provision"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification is an intent for the delivery service. The engine never
// delivers anything itself.
type Notification struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	RecipientID string `json:"recipient_id"`
	ActorID     string `json:"actor_id,omitempty"`
	TaskID      string `json:"task_id"`
	Message     string `json:"message"`
}

// TaskEvent is a change-feed message.
type TaskEvent struct {
	Event           Event                 `json:"event"`
	TaskID          string                `json:"task_id"`
	ComplianceID    string                `json:"compliance_id"`
	Status          repository.TaskStatus `json:"status"`
	EscalationLevel int                   `json:"escalation_level"`
	ActorID         string                `json:"actor_id,omitempty"`
	At              time.Time             `json:"at"`
}

func newTaskEvent(ev Event, t *repository.TaskInstance, actorID string, at time.Time) TaskEvent {
	return TaskEvent{
		Event:           ev,
		TaskID:          t.ID,
		ComplianceID:    t.ComplianceID,
		Status:          t.Status,
		EscalationLevel: t.EscalationLevel,
		ActorID:         actorID,
		At:              at,
	}
}
