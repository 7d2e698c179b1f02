// Package sla answers deadline and breach questions for tickets against
// their tenant's SLA policy. All functions are pure queries over the
// policy and the ticket's timestamps.
package sla

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/calendar"
	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// Kind selects which SLA window a query refers to.
type Kind string

const (
	KindResponse   Kind = "response"
	KindResolution Kind = "resolution"
)

// Evaluation summarizes a ticket's SLA standing for external callers.
type Evaluation struct {
	ResponseDeadline   time.Time `json:"response_deadline"`
	ResolutionDeadline time.Time `json:"resolution_deadline"`
	ResponseBreached   bool      `json:"response_breached"`
	ResolutionBreached bool      `json:"resolution_breached"`
	ApproachingBreach  bool      `json:"approaching_breach"`
}

// Evaluator computes SLA deadlines and breach state.
type Evaluator struct {
	clk clock.Clock
}

// NewEvaluator constructs an evaluator around the given clock.
func NewEvaluator(clk clock.Clock) *Evaluator {
	return &Evaluator{clk: clk}
}

// ResponseDeadline returns the first-response deadline for the ticket.
func (e *Evaluator) ResponseDeadline(ticket *domain.Ticket, policy *domain.SLAPolicy) (time.Time, error) {
	return e.deadline(ticket, policy, KindResponse)
}

// ResolutionDeadline returns the resolution deadline for the ticket.
func (e *Evaluator) ResolutionDeadline(ticket *domain.Ticket, policy *domain.SLAPolicy) (time.Time, error) {
	return e.deadline(ticket, policy, KindResolution)
}

func (e *Evaluator) deadline(ticket *domain.Ticket, policy *domain.SLAPolicy, kind Kind) (time.Time, error) {
	target := policy.TargetFor(ticket.Priority)
	minutes := target.ResolutionMinutes
	if kind == KindResponse {
		minutes = target.ResponseMinutes
	}
	return calendar.Deadline(ticket.CreatedAt, minutes, policy)
}

// IsBreached reports whether the window of the given kind is breached.
// Resolution compares the resolved timestamp, or asOf when unresolved.
// Response compares the first-response timestamp; a ticket closed before
// any response does not count as a response breach.
func (e *Evaluator) IsBreached(ticket *domain.Ticket, policy *domain.SLAPolicy, kind Kind, asOf *time.Time) (bool, error) {
	deadline, err := e.deadline(ticket, policy, kind)
	if err != nil {
		return false, err
	}
	now := e.clk.Now()
	if asOf != nil {
		now = *asOf
	}

	switch kind {
	case KindResolution:
		resolvedAt := now
		if ticket.ClosedAt != nil {
			resolvedAt = *ticket.ClosedAt
		}
		return resolvedAt.After(deadline), nil
	default:
		if ticket.FirstResponseAt != nil {
			return ticket.FirstResponseAt.After(deadline), nil
		}
		if ticket.ClosedAt != nil {
			// Closed without any reply; the response window stopped
			// consuming time when work ended.
			return false, nil
		}
		return now.After(deadline), nil
	}
}

// IsApproachingBreach reports whether the elapsed fraction of the window
// has reached the policy's warning threshold.
func (e *Evaluator) IsApproachingBreach(ticket *domain.Ticket, policy *domain.SLAPolicy, kind Kind) (bool, error) {
	deadline, err := e.deadline(ticket, policy, kind)
	if err != nil {
		return false, err
	}
	return calendar.IsApproachingBreach(ticket.CreatedAt, deadline, e.clk.Now(), policy.WarningPct), nil
}

// Evaluate bundles both deadlines and breach flags into one summary.
func (e *Evaluator) Evaluate(ticket *domain.Ticket, policy *domain.SLAPolicy) (Evaluation, error) {
	responseDeadline, err := e.ResponseDeadline(ticket, policy)
	if err != nil {
		return Evaluation{}, err
	}
	resolutionDeadline, err := e.ResolutionDeadline(ticket, policy)
	if err != nil {
		return Evaluation{}, err
	}
	responseBreached, err := e.IsBreached(ticket, policy, KindResponse, nil)
	if err != nil {
		return Evaluation{}, err
	}
	resolutionBreached, err := e.IsBreached(ticket, policy, KindResolution, nil)
	if err != nil {
		return Evaluation{}, err
	}
	approaching, err := e.IsApproachingBreach(ticket, policy, KindResolution)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		ResponseDeadline:   responseDeadline,
		ResolutionDeadline: resolutionDeadline,
		ResponseBreached:   responseBreached,
		ResolutionBreached: resolutionBreached,
		ApproachingBreach:  approaching,
	}, nil
}
