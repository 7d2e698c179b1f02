package domain

import (
	"strconv"
	"time"
)

// TicketStatus is the workflow-constrained lifecycle state of a ticket.
// Custom workflows may restrict transitions further but only over the
// statuses they declare as allowed.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusOnHold     TicketStatus = "on_hold"
	TicketStatusWaiting    TicketStatus = "waiting"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// DefaultStatuses is the status set used when a workflow does not declare its own.
var DefaultStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusOnHold,
	TicketStatusWaiting,
	TicketStatusResolved,
	TicketStatusClosed,
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

var priorityRank = map[TicketPriority]int{
	TicketPriorityLow:      1,
	TicketPriorityMedium:   2,
	TicketPriorityHigh:     3,
	TicketPriorityCritical: 4,
}

// Rank returns the ordinal of a priority for comparison guards, 0 for unknown values.
func (p TicketPriority) Rank() int {
	return priorityRank[p]
}

// Valid reports whether the priority is one of the fixed enum values.
func (p TicketPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Ticket is the aggregate root for support requests. Status mutates
// through the workflow engine only; direct writes bypass guards and are
// disallowed by contract.
type Ticket struct {
	ID               string
	TenantID         string
	Number           int64
	NumberPrefix     string
	Subject          string
	Details          string
	Status           TicketStatus
	Priority         TicketPriority
	Billable         bool
	ClientID         *string
	ClientImportance float64
	AssigneeID       *string
	SLAPolicyID      *string
	WorkflowID       *string
	CreatedBy        string
	AssignedBy       *string
	ClosedBy         *string
	TimeWorkedMin    int
	FirstResponseAt  *time.Time
	ScheduledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ClosedAt         *time.Time
	ArchivedAt       *time.Time
}

// IsClosed reports whether the ticket is in a terminal status.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusResolved || t.Status == TicketStatusClosed
}

// Age returns elapsed time since creation at the given instant.
func (t *Ticket) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// Key renders the per-tenant ticket key, e.g. "TCK-42".
func (t *Ticket) Key() string {
	prefix := t.NumberPrefix
	if prefix == "" {
		prefix = "TCK"
	}
	return prefix + "-" + strconv.FormatInt(t.Number, 10)
}
