package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/service"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// WorkflowsHandler manages workflow definition endpoints.
type WorkflowsHandler struct {
	service *service.WorkflowService
}

// NewWorkflowsHandler constructs handler.
func NewWorkflowsHandler(workflowService *service.WorkflowService) *WorkflowsHandler {
	return &WorkflowsHandler{service: workflowService}
}

// CreateWorkflow POST /workflows.
func (h *WorkflowsHandler) CreateWorkflow(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.WorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	definition := req.ToDomain(principal.TenantID)
	if err := h.service.CreateWorkflow(c.Context(), definition); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewWorkflowResponse(definition)})
}

// UpdateWorkflow PUT /workflows/:id.
func (h *WorkflowsHandler) UpdateWorkflow(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	existing, err := h.service.GetWorkflow(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	var req dto.WorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	definition := req.ToDomain(principal.TenantID)
	definition.ID = existing.ID
	if err := h.service.UpdateWorkflow(c.Context(), definition); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(definition)})
}

// GetWorkflow GET /workflows/:id.
func (h *WorkflowsHandler) GetWorkflow(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	definition, err := h.service.GetWorkflow(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(definition)})
}

// SetDefault POST /workflows/:id/default.
func (h *WorkflowsHandler) SetDefault(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	if _, err := h.service.GetWorkflow(c.Context(), principal.TenantID, c.Params("id")); err != nil {
		return err
	}
	if err := h.service.SetDefault(c.Context(), principal.TenantID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"workflow_id": c.Params("id"), "is_default": true}})
}

// ListWorkflows GET /workflows.
func (h *WorkflowsHandler) ListWorkflows(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	definitions, err := h.service.ListWorkflows(c.Context(), principal.TenantID)
	if err != nil {
		return err
	}
	items := make([]dto.WorkflowResponse, 0, len(definitions))
	for i := range definitions {
		items = append(items, dto.NewWorkflowResponse(&definitions[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
