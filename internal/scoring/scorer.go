// Package scoring computes the urgency score that orders the tenant
// work queue.
package scoring

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/domain"
)

const (
	ageBonusPerDay    = 0.1
	ageBonusCap       = 2.0
	importanceWeight  = 0.5
	nearDeadlineBonus = 2.0
	breachedBonus     = 5.0
	nearDeadlineSpan  = 24 * time.Hour
)

var priorityWeight = map[domain.TicketPriority]float64{
	domain.TicketPriorityLow:      1,
	domain.TicketPriorityMedium:   2,
	domain.TicketPriorityHigh:     3,
	domain.TicketPriorityCritical: 5,
}

// DeadlineInfo carries the SLA context a score depends on.
type DeadlineInfo struct {
	ResolutionDeadline *time.Time
}

// Scorer computes deterministic urgency scores. It holds no state
// beyond the injected clock.
type Scorer struct {
	clk clock.Clock
}

// NewScorer constructs a scorer.
func NewScorer(clk clock.Clock) *Scorer {
	return &Scorer{clk: clk}
}

// Score returns the weighted urgency of a ticket: priority base, age
// bonus, client importance, and SLA proximity.
func (s *Scorer) Score(ticket *domain.Ticket, info DeadlineInfo) float64 {
	now := s.clk.Now()
	score := priorityWeight[ticket.Priority]

	ageDays := ticket.Age(now).Hours() / 24
	ageBonus := ageDays * ageBonusPerDay
	if ageBonus > ageBonusCap {
		ageBonus = ageBonusCap
	}
	if ageBonus > 0 {
		score += ageBonus
	}

	if ticket.ClientImportance > 0 {
		score += importanceWeight * ticket.ClientImportance
	}

	if info.ResolutionDeadline != nil {
		deadline := *info.ResolutionDeadline
		switch {
		case now.After(deadline):
			score += breachedBonus
		case deadline.Sub(now) <= nearDeadlineSpan:
			score += nearDeadlineBonus
		}
	}
	return score
}
