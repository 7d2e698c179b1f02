package service

import (
	"context"
	"strings"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// WorkflowService manages workflow definitions.
type WorkflowService struct {
	workflows repository.WorkflowRepository
}

// NewWorkflowService constructs the service.
func NewWorkflowService(workflows repository.WorkflowRepository) *WorkflowService {
	return &WorkflowService{workflows: workflows}
}

// CreateWorkflow validates and persists a definition with its transitions.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, definition *domain.WorkflowDefinition) error {
	if err := validateWorkflow(definition); err != nil {
		return err
	}
	if err := s.workflows.Create(ctx, definition); err != nil {
		return err
	}
	if definition.IsDefault {
		return s.workflows.SetDefault(ctx, definition.TenantID, definition.ID)
	}
	return nil
}

// UpdateWorkflow validates and rewrites a definition, replacing its
// transition set. The default flag is not touched here; it only moves
// through SetDefault.
func (s *WorkflowService) UpdateWorkflow(ctx context.Context, definition *domain.WorkflowDefinition) error {
	if err := validateWorkflow(definition); err != nil {
		return err
	}
	return s.workflows.Update(ctx, definition)
}

// SetDefault promotes a workflow to tenant default. Only one workflow
// per tenant is default at a time.
func (s *WorkflowService) SetDefault(ctx context.Context, tenantID, workflowID string) error {
	return s.workflows.SetDefault(ctx, tenantID, workflowID)
}

// GetWorkflow fetches a definition scoped to its tenant.
func (s *WorkflowService) GetWorkflow(ctx context.Context, tenantID, workflowID string) (*domain.WorkflowDefinition, error) {
	definition, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if definition.TenantID != tenantID {
		return nil, apperrors.NewNotFound("workflow", map[string]any{"workflow_id": workflowID})
	}
	return definition, nil
}

// ListWorkflows returns a tenant's active definitions.
func (s *WorkflowService) ListWorkflows(ctx context.Context, tenantID string) ([]domain.WorkflowDefinition, error) {
	return s.workflows.ListActive(ctx, tenantID)
}

func validateWorkflow(definition *domain.WorkflowDefinition) error {
	if strings.TrimSpace(definition.Name) == "" {
		return apperrors.NewValidationError("workflow name is required", nil)
	}
	if len(definition.AllowedStatuses) == 0 {
		definition.AllowedStatuses = domain.DefaultStatuses
	}
	if definition.InitialStatus == "" {
		definition.InitialStatus = domain.TicketStatusOpen
	}
	if !definition.Allows(definition.InitialStatus) {
		return apperrors.NewValidationError("initial status not in allowed statuses", map[string]any{
			"initial_status": string(definition.InitialStatus),
		})
	}
	for _, transition := range definition.Transitions {
		if !definition.Allows(transition.FromStatus) || !definition.Allows(transition.ToStatus) {
			return apperrors.NewValidationError("transition references status outside allowed set", map[string]any{
				"from": string(transition.FromStatus),
				"to":   string(transition.ToStatus),
			})
		}
		if transition.FromStatus == transition.ToStatus {
			return apperrors.NewValidationError("transition endpoints must differ", map[string]any{
				"status": string(transition.FromStatus),
			})
		}
		for _, action := range transition.Actions {
			if action.Kind == domain.ActionUpdatePriority && !action.Priority.Valid() {
				return apperrors.NewValidationError("update_priority action carries invalid priority", map[string]any{
					"priority": string(action.Priority),
				})
			}
			if action.Kind == domain.ActionAssignUser && (action.Assign == nil || len(action.Assign.UserIDs) == 0) {
				return apperrors.NewValidationError("assign_user action has no candidates", nil)
			}
		}
	}
	return nil
}
