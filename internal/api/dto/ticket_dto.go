package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// CreateTicketRequest is the ticket creation payload.
type CreateTicketRequest struct {
	Subject          string                `json:"subject"`
	Details          string                `json:"details"`
	Priority         domain.TicketPriority `json:"priority"`
	Billable         bool                  `json:"billable"`
	ClientID         *string               `json:"client_id"`
	ClientImportance float64               `json:"client_importance"`
	SLAPolicyID      *string               `json:"sla_policy_id"`
	WorkflowID       *string               `json:"workflow_id"`
	ScheduledAt      *time.Time            `json:"scheduled_at"`
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	ToStatus domain.TicketStatus `json:"to_status"`
	Comment  string              `json:"comment"`
}

// CommentRequest adds a comment.
type CommentRequest struct {
	Body string `json:"body"`
}

// WorkRequest records worked time.
type WorkRequest struct {
	Minutes int `json:"minutes"`
}

// TicketSummary is the list-view ticket shape.
type TicketSummary struct {
	ID         string                `json:"id"`
	Key        string                `json:"key"`
	Subject    string                `json:"subject"`
	Status     domain.TicketStatus   `json:"status"`
	Priority   domain.TicketPriority `json:"priority"`
	AssigneeID *string               `json:"assignee_id,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// TicketDetail is the single-ticket shape.
type TicketDetail struct {
	TicketSummary
	Details          string     `json:"details"`
	Billable         bool       `json:"billable"`
	ClientID         *string    `json:"client_id,omitempty"`
	ClientImportance float64    `json:"client_importance"`
	SLAPolicyID      *string    `json:"sla_policy_id,omitempty"`
	WorkflowID       *string    `json:"workflow_id,omitempty"`
	TimeWorkedMin    int        `json:"time_worked_min"`
	FirstResponseAt  *time.Time `json:"first_response_at,omitempty"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	ClosedBy         *string    `json:"closed_by,omitempty"`
}

// CommentResponse is the comment shape.
type CommentResponse struct {
	ID        string    `json:"id"`
	AuthorID  *string   `json:"author_id,omitempty"`
	Body      string    `json:"body"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}

// TransitionError is one blocking reason for a rejected transition.
type TransitionError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// TransitionResponse reports a transition outcome.
type TransitionResponse struct {
	Success    bool                `json:"success"`
	Ticket     *TicketDetail       `json:"ticket,omitempty"`
	ActionsRun []domain.ActionKind `json:"actions_run,omitempty"`
	Errors     []TransitionError   `json:"errors,omitempty"`
}

// NewTicketSummary maps a domain ticket to its list shape.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:         ticket.ID,
		Key:        ticket.Key(),
		Subject:    ticket.Subject,
		Status:     ticket.Status,
		Priority:   ticket.Priority,
		AssigneeID: ticket.AssigneeID,
		CreatedAt:  ticket.CreatedAt,
		UpdatedAt:  ticket.UpdatedAt,
	}
}

// NewTicketDetail maps a domain ticket to its detail shape.
func NewTicketDetail(ticket *domain.Ticket) TicketDetail {
	return TicketDetail{
		TicketSummary:    NewTicketSummary(ticket),
		Details:          ticket.Details,
		Billable:         ticket.Billable,
		ClientID:         ticket.ClientID,
		ClientImportance: ticket.ClientImportance,
		SLAPolicyID:      ticket.SLAPolicyID,
		WorkflowID:       ticket.WorkflowID,
		TimeWorkedMin:    ticket.TimeWorkedMin,
		FirstResponseAt:  ticket.FirstResponseAt,
		ScheduledAt:      ticket.ScheduledAt,
		ClosedAt:         ticket.ClosedAt,
		ClosedBy:         ticket.ClosedBy,
	}
}

// NewCommentResponse maps a domain comment.
func NewCommentResponse(comment *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:        comment.ID,
		AuthorID:  comment.AuthorID,
		Body:      comment.Body,
		IsSystem:  comment.IsSystem,
		CreatedAt: comment.CreatedAt,
	}
}
