package events

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketEscalated     EventType = "ticket_escalated"
	EventSLAWarning          EventType = "sla_warning"
	EventSLABreached         EventType = "sla_breached"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TenantID string                `json:"tenant_id"`
	Number   string                `json:"number"`
	Priority domain.TicketPriority `json:"priority"`
	Subject  string                `json:"subject"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	TenantID  string              `json:"tenant_id"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TenantID   string `json:"tenant_id"`
	AssigneeID string `json:"assignee_id"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	TenantID        string  `json:"tenant_id"`
	EscalationLevel int     `json:"escalation_level"`
	Score           float64 `json:"score"`
	Reason          string  `json:"reason"`
}

// SLAPayload carries deadline context for warning and breach events.
type SLAPayload struct {
	TenantID string    `json:"tenant_id"`
	Kind     string    `json:"kind"` // response | resolution
	Deadline time.Time `json:"deadline"`
}
