package domain

import "time"

// CoverageMode controls whether SLA time accrues around the clock or
// only during business hours.
type CoverageMode string

const (
	CoverageContinuous    CoverageMode = "continuous"
	CoverageBusinessHours CoverageMode = "business_hours"
	CoverageCustom        CoverageMode = "custom"
)

// SLATarget holds the minute budgets for one priority level.
type SLATarget struct {
	ResponseMinutes   int
	ResolutionMinutes int
}

// SLAPolicy is a per-tenant service-level policy. Tickets reference
// policies, never own them; many tickets share one policy.
type SLAPolicy struct {
	ID            string
	TenantID      string
	Name          string
	Targets       map[TicketPriority]SLATarget
	Coverage      CoverageMode
	BusinessStart string // "HH:MM"
	BusinessEnd   string // "HH:MM"
	BusinessDays  []time.Weekday
	Timezone      string
	WarningPct    int // 0-100, elapsed fraction that counts as approaching breach
	IsDefault     bool
	IsActive      bool
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TargetFor returns the minute budgets for a priority, falling back to
// the medium target when the priority has no explicit entry.
func (p *SLAPolicy) TargetFor(priority TicketPriority) SLATarget {
	if t, ok := p.Targets[priority]; ok {
		return t
	}
	return p.Targets[TicketPriorityMedium]
}

// CoversBusinessHoursOnly reports whether deadline math must respect the
// business calendar.
func (p *SLAPolicy) CoversBusinessHoursOnly() bool {
	return p.Coverage == CoverageBusinessHours || p.Coverage == CoverageCustom
}

// WorksOn reports whether the weekday is a business day under the policy.
func (p *SLAPolicy) WorksOn(day time.Weekday) bool {
	for _, d := range p.BusinessDays {
		if d == day {
			return true
		}
	}
	return false
}

// EffectiveAt reports whether the policy applies at the given instant.
func (p *SLAPolicy) EffectiveAt(t time.Time) bool {
	if !p.IsActive {
		return false
	}
	if !p.EffectiveFrom.IsZero() && t.Before(p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && t.After(*p.EffectiveTo) {
		return false
	}
	return true
}
