package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

// natsPublisher is the part of *nats.Conn the publisher uses.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher hands notification intents to the notifications
// service over NATS.
//
// Subject convention: <prefix>.<notification_type>
// Types: task_submitted, task_approved, task_rejected, task_sent_back,
// task_assigned, task_escalated
//
// Publishing is non-fatal: errors are logged and never reach the workflow.
type NotificationPublisher struct {
	nats   natsPublisher
	prefix string
	log    zerolog.Logger
}

var _ service.Notifier = (*NotificationPublisher)(nil)

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string    `json:"event_type"`
	Priority     string    `json:"priority"`
	ActorID      string    `json:"actor_id,omitempty"`
	Recipients   []string  `json:"recipients"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	IsActionable bool      `json:"is_actionable"`
	Message      string    `json:"message"`
	Category     string    `json:"category"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(nc natsPublisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nc, prefix: prefix, log: log}
}

// Notify publishes one notification intent.
func (p *NotificationPublisher) Notify(_ context.Context, n service.Notification) {
	if p.nats == nil || n.RecipientID == "" {
		return
	}

	event := &NotificationEvent{
		EventType:    n.Type,
		Priority:     n.Priority,
		ActorID:      n.ActorID,
		Recipients:   []string{n.RecipientID},
		ResourceType: "compliance_task",
		ResourceID:   n.TaskID,
		IsActionable: n.Type != "task_approved",
		Message:      n.Message,
		Category:     "compliance",
		OccurredAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", n.Type).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, n.Type)
	if err := p.nats.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("task_id", n.TaskID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("task_id", n.TaskID).
		Str("recipient_id", n.RecipientID).
		Msg("notification: event published")
}

// ConnectNATS dials NATS with reconnects that never give up.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}
