package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/service"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// PoliciesHandler manages SLA policy endpoints.
type PoliciesHandler struct {
	service *service.PolicyService
}

// NewPoliciesHandler constructs handler.
func NewPoliciesHandler(policyService *service.PolicyService) *PoliciesHandler {
	return &PoliciesHandler{service: policyService}
}

// CreatePolicy POST /sla-policies.
func (h *PoliciesHandler) CreatePolicy(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.PolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy := req.ToDomain(principal.TenantID)
	if err := h.service.CreatePolicy(c.Context(), policy); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewPolicyResponse(policy)})
}

// UpdatePolicy PUT /sla-policies/:id.
func (h *PoliciesHandler) UpdatePolicy(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	existing, err := h.service.GetPolicy(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	var req dto.PolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy := req.ToDomain(principal.TenantID)
	policy.ID = existing.ID
	if err := h.service.UpdatePolicy(c.Context(), policy); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPolicyResponse(policy)})
}

// GetPolicy GET /sla-policies/:id.
func (h *PoliciesHandler) GetPolicy(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	policy, err := h.service.GetPolicy(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPolicyResponse(policy)})
}

// ListPolicies GET /sla-policies.
func (h *PoliciesHandler) ListPolicies(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	policies, err := h.service.ListPolicies(c.Context(), principal.TenantID)
	if err != nil {
		return err
	}
	items := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, dto.NewPolicyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SetDefault POST /sla-policies/:id/default.
func (h *PoliciesHandler) SetDefault(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	if _, err := h.service.GetPolicy(c.Context(), principal.TenantID, c.Params("id")); err != nil {
		return err
	}
	if err := h.service.SetDefault(c.Context(), principal.TenantID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"policy_id": c.Params("id"), "is_default": true}})
}
