package service

import (
	"context"

	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/repository"
)

// PolicyResolver picks the SLA policy governing a ticket: the ticket's
// pinned policy while it is effective, otherwise the tenant default.
// A nil result means the ticket runs without SLA tracking.
type PolicyResolver struct {
	policies repository.SLAPolicyRepository
	clk      clock.Clock
}

// NewPolicyResolver constructs the resolver.
func NewPolicyResolver(policies repository.SLAPolicyRepository, clk clock.Clock) *PolicyResolver {
	return &PolicyResolver{policies: policies, clk: clk}
}

func (r *PolicyResolver) ResolveForTicket(ctx context.Context, ticket *domain.Ticket) (*domain.SLAPolicy, error) {
	now := r.clk.Now()
	if ticket.SLAPolicyID != nil {
		policy, err := r.policies.GetByID(ctx, *ticket.SLAPolicyID)
		if err != nil {
			return nil, err
		}
		if policy.TenantID == ticket.TenantID && policy.EffectiveAt(now) {
			return policy, nil
		}
	}
	policy, err := r.policies.GetDefault(ctx, ticket.TenantID)
	if err != nil {
		return nil, err
	}
	if policy == nil || !policy.EffectiveAt(now) {
		return nil, nil
	}
	return policy, nil
}
