package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/service"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.TicketCreateInput{
		Subject:          req.Subject,
		Details:          req.Details,
		Priority:         req.Priority,
		Billable:         req.Billable,
		ClientID:         req.ClientID,
		ClientImportance: req.ClientImportance,
		SLAPolicyID:      req.SLAPolicyID,
		WorkflowID:       req.WorkflowID,
		ScheduledAt:      req.ScheduledAt,
	}
	ticket, err := h.service.CreateTicket(c.Context(), principal.TenantID, principal.Agent.ID, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	filter := parseTicketQuery(c, principal.TenantID)
	tickets, err := h.service.ListTickets(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	ticket, err := h.service.GetTicket(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Transition POST /tickets/:id/transition.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ToStatus == "" {
		return apperrors.NewValidationError("to_status required", nil)
	}
	ticket, result, err := h.service.ChangeStatus(c.Context(), principal.TenantID, c.Params("id"), req.ToStatus, principal.Actor(), req.Comment)
	if err != nil {
		return err
	}
	if !result.Success {
		errs := make([]dto.TransitionError, 0, len(result.Errors))
		status := http.StatusUnprocessableEntity
		for _, e := range result.Errors {
			errs = append(errs, dto.TransitionError{Code: e.Code, Message: e.Message, Details: e.Details})
			if e.HTTPStatus == http.StatusForbidden {
				status = http.StatusForbidden
			}
		}
		return c.Status(status).JSON(dto.TransitionResponse{Success: false, Errors: errs})
	}
	detail := dto.NewTicketDetail(ticket)
	return c.JSON(dto.TransitionResponse{
		Success:    true,
		Ticket:     &detail,
		ActionsRun: result.ActionsRun,
	})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.service.AddComment(c.Context(), principal.TenantID, c.Params("id"), principal.Actor(), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

// ListComments GET /tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	comments, err := h.service.ListComments(c.Context(), principal.TenantID, c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		items = append(items, dto.NewCommentResponse(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// RecordWork POST /tickets/:id/work.
func (h *TicketsHandler) RecordWork(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.WorkRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.RecordWork(c.Context(), principal.TenantID, c.Params("id"), req.Minutes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// EvaluateSLA GET /tickets/:id/sla.
func (h *TicketsHandler) EvaluateSLA(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	evaluation, err := h.service.EvaluateSLA(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	if evaluation == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": evaluation})
}

func parseTicketQuery(c *fiber.Ctx, tenantID string) repository.TicketFilter {
	filter := repository.TicketFilter{
		TenantID: tenantID,
		Limit:    c.QueryInt("limit", 20),
		Offset:   c.QueryInt("offset", 0),
	}
	if v := c.Query("assignee_id"); v != "" {
		filter.AssigneeID = &v
	}
	if v := c.Query("client_id"); v != "" {
		filter.ClientID = &v
	}
	if v := c.Query("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(s)))
		}
	}
	if v := c.Query("priority"); v != "" {
		for _, p := range strings.Split(v, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(p)))
		}
	}
	if v := c.Query("q"); v != "" {
		filter.SearchTerm = &v
	}
	return filter
}
