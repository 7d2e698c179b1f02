package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// SLATargetDTO is the minute budget pair for one priority.
type SLATargetDTO struct {
	ResponseMinutes   int `json:"response_minutes"`
	ResolutionMinutes int `json:"resolution_minutes"`
}

// PolicyRequest creates or updates an SLA policy.
type PolicyRequest struct {
	Name          string                  `json:"name"`
	Targets       map[string]SLATargetDTO `json:"targets"`
	Coverage      domain.CoverageMode     `json:"coverage"`
	BusinessStart string                  `json:"business_start"`
	BusinessEnd   string                  `json:"business_end"`
	BusinessDays  []int                   `json:"business_days"`
	Timezone      string                  `json:"timezone"`
	WarningPct    int                     `json:"warning_pct"`
	IsDefault     bool                    `json:"is_default"`
	IsActive      bool                    `json:"is_active"`
	EffectiveFrom time.Time               `json:"effective_from"`
	EffectiveTo   *time.Time              `json:"effective_to"`
}

// PolicyResponse is the policy read shape.
type PolicyResponse struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	Targets       map[string]SLATargetDTO `json:"targets"`
	Coverage      domain.CoverageMode     `json:"coverage"`
	BusinessStart string                  `json:"business_start,omitempty"`
	BusinessEnd   string                  `json:"business_end,omitempty"`
	BusinessDays  []int                   `json:"business_days,omitempty"`
	Timezone      string                  `json:"timezone,omitempty"`
	WarningPct    int                     `json:"warning_pct"`
	IsDefault     bool                    `json:"is_default"`
	IsActive      bool                    `json:"is_active"`
	EffectiveFrom time.Time               `json:"effective_from"`
	EffectiveTo   *time.Time              `json:"effective_to,omitempty"`
}

// ToDomain converts the request into a policy for the given tenant.
func (r *PolicyRequest) ToDomain(tenantID string) *domain.SLAPolicy {
	targets := make(map[domain.TicketPriority]domain.SLATarget, len(r.Targets))
	for priority, target := range r.Targets {
		targets[domain.TicketPriority(priority)] = domain.SLATarget{
			ResponseMinutes:   target.ResponseMinutes,
			ResolutionMinutes: target.ResolutionMinutes,
		}
	}
	days := make([]time.Weekday, 0, len(r.BusinessDays))
	for _, d := range r.BusinessDays {
		days = append(days, time.Weekday(d))
	}
	return &domain.SLAPolicy{
		TenantID:      tenantID,
		Name:          r.Name,
		Targets:       targets,
		Coverage:      r.Coverage,
		BusinessStart: r.BusinessStart,
		BusinessEnd:   r.BusinessEnd,
		BusinessDays:  days,
		Timezone:      r.Timezone,
		WarningPct:    r.WarningPct,
		IsDefault:     r.IsDefault,
		IsActive:      r.IsActive,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
	}
}

// NewPolicyResponse maps a domain policy.
func NewPolicyResponse(policy *domain.SLAPolicy) PolicyResponse {
	targets := make(map[string]SLATargetDTO, len(policy.Targets))
	for priority, target := range policy.Targets {
		targets[string(priority)] = SLATargetDTO{
			ResponseMinutes:   target.ResponseMinutes,
			ResolutionMinutes: target.ResolutionMinutes,
		}
	}
	days := make([]int, 0, len(policy.BusinessDays))
	for _, d := range policy.BusinessDays {
		days = append(days, int(d))
	}
	return PolicyResponse{
		ID:            policy.ID,
		Name:          policy.Name,
		Targets:       targets,
		Coverage:      policy.Coverage,
		BusinessStart: policy.BusinessStart,
		BusinessEnd:   policy.BusinessEnd,
		BusinessDays:  days,
		Timezone:      policy.Timezone,
		WarningPct:    policy.WarningPct,
		IsDefault:     policy.IsDefault,
		IsActive:      policy.IsActive,
		EffectiveFrom: policy.EffectiveFrom,
		EffectiveTo:   policy.EffectiveTo,
	}
}
