package workflow

import (
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-core/internal/calendar"
	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// GuardContext carries everything guard evaluation may consult.
type GuardContext struct {
	Ticket *domain.Ticket
	Actor  domain.Actor
	Policy *domain.SLAPolicy // may be nil; business_hours guards fall back to defaults
	Now    time.Time
}

// evaluateGuard returns whether the condition holds, and a blocking
// reason when it does not. Unknown kinds block so a misconfigured
// workflow fails visibly rather than waving transitions through.
func evaluateGuard(cond domain.GuardCondition, gctx GuardContext) (bool, string) {
	switch cond.Kind {
	case domain.GuardTicketAgeHours:
		age := gctx.Ticket.Age(gctx.Now).Hours()
		if compareFloat(age, cond.Op, cond.Hours) {
			return true, ""
		}
		return false, fmt.Sprintf("ticket age %.1fh does not satisfy %s %.1fh", age, cond.Op, cond.Hours)

	case domain.GuardTimeWorkedHours:
		worked := float64(gctx.Ticket.TimeWorkedMin) / 60
		if compareFloat(worked, cond.Op, cond.Hours) {
			return true, ""
		}
		return false, fmt.Sprintf("time worked %.1fh does not satisfy %s %.1fh", worked, cond.Op, cond.Hours)

	case domain.GuardTicketPriority:
		if comparePriority(gctx.Ticket.Priority, cond) {
			return true, ""
		}
		return false, fmt.Sprintf("ticket priority %q does not satisfy %s condition", gctx.Ticket.Priority, cond.Op)

	case domain.GuardActorRole:
		has := gctx.Actor.HasRole(cond.Role)
		if cond.Op == domain.OpNe {
			has = !has
		}
		if has {
			return true, ""
		}
		return false, fmt.Sprintf("actor lacks role %q", cond.Role)

	case domain.GuardBusinessHours:
		policy := businessHoursPolicy(gctx.Policy, cond.Timezone)
		ok, err := calendar.IsBusinessTime(gctx.Now, policy)
		if err != nil {
			return false, fmt.Sprintf("business hours check failed: %v", err)
		}
		if ok {
			return true, ""
		}
		return false, "outside business hours"

	default:
		return false, fmt.Sprintf("unknown guard kind %q", cond.Kind)
	}
}

func compareFloat(actual float64, op domain.CompareOp, expected float64) bool {
	switch op {
	case domain.OpEq:
		return actual == expected
	case domain.OpNe:
		return actual != expected
	case domain.OpGt:
		return actual > expected
	case domain.OpGte:
		return actual >= expected
	case domain.OpLt:
		return actual < expected
	case domain.OpLte:
		return actual <= expected
	default:
		return false
	}
}

func comparePriority(actual domain.TicketPriority, cond domain.GuardCondition) bool {
	switch cond.Op {
	case domain.OpIn:
		return priorityInSet(actual, cond.Priorities)
	case domain.OpNotIn:
		return !priorityInSet(actual, cond.Priorities)
	case domain.OpEq:
		return actual == cond.Priority
	case domain.OpNe:
		return actual != cond.Priority
	case domain.OpGt:
		return actual.Rank() > cond.Priority.Rank()
	case domain.OpGte:
		return actual.Rank() >= cond.Priority.Rank()
	case domain.OpLt:
		return actual.Rank() < cond.Priority.Rank()
	case domain.OpLte:
		return actual.Rank() <= cond.Priority.Rank()
	default:
		return false
	}
}

func priorityInSet(p domain.TicketPriority, set []domain.TicketPriority) bool {
	for _, candidate := range set {
		if candidate == p {
			return true
		}
	}
	return false
}

// businessHoursPolicy resolves the calendar a business_hours guard runs
// against: the ticket's policy with an optional timezone override, or a
// 9-to-5 Monday-Friday default when no policy is attached.
func businessHoursPolicy(policy *domain.SLAPolicy, timezone string) *domain.SLAPolicy {
	out := &domain.SLAPolicy{
		Coverage:      domain.CoverageBusinessHours,
		BusinessStart: "09:00",
		BusinessEnd:   "17:00",
		BusinessDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		Timezone: "UTC",
	}
	if policy != nil && policy.CoversBusinessHoursOnly() {
		out.BusinessStart = policy.BusinessStart
		out.BusinessEnd = policy.BusinessEnd
		out.BusinessDays = policy.BusinessDays
		out.Timezone = policy.Timezone
	}
	if timezone != "" {
		out.Timezone = timezone
	}
	return out
}
