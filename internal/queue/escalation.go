package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
)

// escalationCooldown keeps a sweep from bumping the same entry on every
// pass while its triggering condition persists.
const escalationCooldown = time.Hour

// warningCooldown spaces repeated warning events for an entry that stays
// inside the warning window across sweeps.
const warningCooldown = time.Hour

// SweepReport summarizes one escalation sweep over a tenant.
type SweepReport struct {
	TenantID  string `json:"tenant_id"`
	Checked   int    `json:"checked"`
	Escalated int    `json:"escalated"`
	Warned    int    `json:"warned"`
	Failures  int    `json:"failures"`
}

// ShouldEscalate reports whether any of the entry's rules fire for the
// ticket at the given instant, and which rule fired first.
func ShouldEscalate(entry *domain.PriorityQueueEntry, ticket *domain.Ticket, now time.Time) (bool, domain.EscalationRuleKind) {
	for _, rule := range entry.Rules {
		if ruleFires(rule, entry, ticket, now) {
			return true, rule.Kind
		}
	}
	return false, ""
}

func ruleFires(rule domain.EscalationRule, entry *domain.PriorityQueueEntry, ticket *domain.Ticket, now time.Time) bool {
	switch rule.Kind {
	case domain.EscalateSLABreach:
		return entry.SLADeadline != nil && now.After(*entry.SLADeadline)

	case domain.EscalateTimeSinceUpdate:
		return now.Sub(ticket.UpdatedAt).Hours() >= rule.Hours

	case domain.EscalatePriorityAge:
		if len(rule.Priorities) > 0 && !priorityListed(ticket.Priority, rule.Priorities) {
			return false
		}
		return ticket.Age(now).Hours() >= rule.Hours

	case domain.EscalateNoAssignment:
		return ticket.AssigneeID == nil && ticket.Age(now).Hours() >= rule.Hours

	default:
		return false
	}
}

func priorityListed(p domain.TicketPriority, set []domain.TicketPriority) bool {
	for _, candidate := range set {
		if candidate == p {
			return true
		}
	}
	return false
}

// RunEscalationSweep evaluates every active entry of a tenant against
// its escalation rules and escalates the ones that fire. A failure on
// one entry never aborts the rest of the sweep.
func (m *Manager) RunEscalationSweep(ctx context.Context, tenantID string) (SweepReport, error) {
	report := SweepReport{TenantID: tenantID}

	lock := m.tenantLock(tenantID)
	lock.Lock()
	active, err := m.store.ListActive(ctx, tenantID)
	lock.Unlock()
	if err != nil {
		return report, err
	}

	now := m.clk.Now()
	for _, entry := range active {
		report.Checked++
		if entry.EscalatedAt != nil && now.Sub(*entry.EscalatedAt) < escalationCooldown {
			continue
		}
		ticket, err := m.tickets.GetByID(ctx, entry.TicketID)
		if err != nil {
			report.Failures++
			m.logger.Warn("escalation sweep failed to load ticket",
				zap.String("tenant_id", tenantID),
				zap.String("ticket_id", entry.TicketID),
				zap.Error(err))
			continue
		}
		fire, kind := ShouldEscalate(&entry, ticket, now)
		if !fire {
			if m.slaStatus(entry, now) == "warning" && m.shouldWarn(entry.ID, now) {
				report.Warned++
				m.publish(ctx, events.Event{
					Type:     events.EventSLAWarning,
					TicketID: entry.TicketID,
					Payload: events.SLAPayload{
						TenantID: tenantID,
						Kind:     "resolution",
						Deadline: *entry.SLADeadline,
					},
				})
			}
			continue
		}
		if err := m.Escalate(ctx, entry.ID, string(kind)); err != nil {
			report.Failures++
			m.logger.Warn("escalation sweep failed to escalate entry",
				zap.String("tenant_id", tenantID),
				zap.String("ticket_id", entry.TicketID),
				zap.Error(err))
			continue
		}
		report.Escalated++
		if kind == domain.EscalateSLABreach && entry.SLADeadline != nil {
			m.publish(ctx, events.Event{
				Type:     events.EventSLABreached,
				TicketID: entry.TicketID,
				Payload: events.SLAPayload{
					TenantID: tenantID,
					Kind:     "resolution",
					Deadline: *entry.SLADeadline,
				},
			})
		}
	}
	m.logger.Info("escalation sweep finished",
		zap.String("tenant_id", tenantID),
		zap.Int("checked", report.Checked),
		zap.Int("escalated", report.Escalated),
		zap.Int("warned", report.Warned),
		zap.Int("failures", report.Failures))
	return report, nil
}

// shouldWarn reports whether a warning for the entry is due, recording
// the instant so repeat sweeps inside the cooldown stay quiet.
func (m *Manager) shouldWarn(entryID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warned == nil {
		m.warned = make(map[string]time.Time)
	}
	if last, ok := m.warned[entryID]; ok && now.Sub(last) < warningCooldown {
		return false
	}
	m.warned[entryID] = now
	return true
}
