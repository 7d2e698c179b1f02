package domain

import "time"

// EscalationRuleKind identifies one of the closed set of escalation triggers.
type EscalationRuleKind string

const (
	EscalateSLABreach       EscalationRuleKind = "sla_breach"
	EscalateTimeSinceUpdate EscalationRuleKind = "time_since_update"
	EscalatePriorityAge     EscalationRuleKind = "priority_age"
	EscalateNoAssignment    EscalationRuleKind = "no_assignment"
)

// EscalationRule is a typed trigger attached to a queue entry. Any single
// rule evaluating true escalates the entry.
type EscalationRule struct {
	Kind       EscalationRuleKind
	Hours      float64          // time_since_update, priority_age, no_assignment
	Priorities []TicketPriority // priority_age
}

// PriorityQueueEntry tracks one ticket's slot in the tenant work queue.
// Active entries for a tenant hold contiguous positions 1..N.
type PriorityQueueEntry struct {
	ID              string
	TenantID        string
	TicketID        string
	Position        int
	Score           float64
	EscalationLevel int
	AssignedTeam    *string
	SLADeadline     *time.Time
	EscalatedAt     *time.Time
	Rules           []EscalationRule
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
