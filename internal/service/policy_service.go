package service

import (
	"context"
	"strings"

	"github.com/spec-kit/helpdesk-core/internal/calendar"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// PolicyService manages SLA policy configuration.
type PolicyService struct {
	policies repository.SLAPolicyRepository
}

// NewPolicyService constructs the service.
func NewPolicyService(policies repository.SLAPolicyRepository) *PolicyService {
	return &PolicyService{policies: policies}
}

// CreatePolicy validates and persists a policy.
func (s *PolicyService) CreatePolicy(ctx context.Context, policy *domain.SLAPolicy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return err
	}
	if policy.IsDefault {
		return s.policies.SetDefault(ctx, policy.TenantID, policy.ID)
	}
	return nil
}

// UpdatePolicy validates and rewrites a policy.
func (s *PolicyService) UpdatePolicy(ctx context.Context, policy *domain.SLAPolicy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	return s.policies.Update(ctx, policy)
}

// SetDefault promotes a policy to tenant default. Only one policy per
// tenant is default at a time.
func (s *PolicyService) SetDefault(ctx context.Context, tenantID, policyID string) error {
	return s.policies.SetDefault(ctx, tenantID, policyID)
}

// GetPolicy fetches a policy scoped to its tenant.
func (s *PolicyService) GetPolicy(ctx context.Context, tenantID, policyID string) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy.TenantID != tenantID {
		return nil, apperrors.NewNotFound("sla policy", map[string]any{"policy_id": policyID})
	}
	return policy, nil
}

// ListPolicies returns a tenant's active policies.
func (s *PolicyService) ListPolicies(ctx context.Context, tenantID string) ([]domain.SLAPolicy, error) {
	return s.policies.ListActive(ctx, tenantID)
}

func validatePolicy(policy *domain.SLAPolicy) error {
	if strings.TrimSpace(policy.Name) == "" {
		return apperrors.NewValidationError("policy name is required", nil)
	}
	if len(policy.Targets) == 0 {
		return apperrors.NewValidationError("policy needs at least one priority target", nil)
	}
	for priority, target := range policy.Targets {
		if !priority.Valid() {
			return apperrors.NewValidationError("unknown priority in targets", map[string]any{"priority": string(priority)})
		}
		if target.ResponseMinutes < 0 || target.ResolutionMinutes < 0 {
			return apperrors.NewValidationError("negative minute budget", map[string]any{"priority": string(priority)})
		}
	}
	if policy.WarningPct < 0 || policy.WarningPct > 100 {
		return apperrors.NewValidationError("warning percentage out of range", map[string]any{"warning_pct": policy.WarningPct})
	}
	return calendar.ValidateSchedule(policy)
}
