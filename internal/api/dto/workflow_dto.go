package dto

import (
	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// GuardDTO mirrors one guard condition.
type GuardDTO struct {
	Kind       domain.GuardKind        `json:"kind"`
	Op         domain.CompareOp        `json:"op,omitempty"`
	Hours      float64                 `json:"hours,omitempty"`
	Priority   domain.TicketPriority   `json:"priority,omitempty"`
	Priorities []domain.TicketPriority `json:"priorities,omitempty"`
	Role       string                  `json:"role,omitempty"`
	Timezone   string                  `json:"timezone,omitempty"`
}

// ActionDTO mirrors one automated action.
type ActionDTO struct {
	Kind         domain.ActionKind     `json:"kind"`
	Event        string                `json:"event,omitempty"`
	Recipients   []string              `json:"recipients,omitempty"`
	CommentBody  string                `json:"comment_body,omitempty"`
	Priority     domain.TicketPriority `json:"priority,omitempty"`
	DueHours     float64               `json:"due_hours,omitempty"`
	AssignUsers  []string              `json:"assign_users,omitempty"`
	AssignPolicy domain.AssignStrategy `json:"assign_strategy,omitempty"`
}

// TransitionDTO mirrors one workflow edge.
type TransitionDTO struct {
	ID              string              `json:"id,omitempty"`
	FromStatus      domain.TicketStatus `json:"from_status"`
	ToStatus        domain.TicketStatus `json:"to_status"`
	RequiredRole    string              `json:"required_role,omitempty"`
	RequiresComment bool                `json:"requires_comment"`
	Guards          []GuardDTO          `json:"guards,omitempty"`
	Actions         []ActionDTO         `json:"actions,omitempty"`
	SortOrder       int                 `json:"sort_order"`
	IsActive        bool                `json:"is_active"`
}

// WorkflowRequest creates or updates a workflow definition.
type WorkflowRequest struct {
	Name            string                `json:"name"`
	IsDefault       bool                  `json:"is_default"`
	IsActive        bool                  `json:"is_active"`
	InitialStatus   domain.TicketStatus   `json:"initial_status"`
	AllowedStatuses []domain.TicketStatus `json:"allowed_statuses"`
	Transitions     []TransitionDTO       `json:"transitions"`
}

// WorkflowResponse is the workflow read shape.
type WorkflowResponse struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	IsDefault       bool                  `json:"is_default"`
	IsActive        bool                  `json:"is_active"`
	InitialStatus   domain.TicketStatus   `json:"initial_status"`
	AllowedStatuses []domain.TicketStatus `json:"allowed_statuses"`
	Transitions     []TransitionDTO       `json:"transitions"`
}

// ToDomain converts the request into a definition for the given tenant.
func (r *WorkflowRequest) ToDomain(tenantID string) *domain.WorkflowDefinition {
	transitions := make([]domain.Transition, 0, len(r.Transitions))
	for _, t := range r.Transitions {
		transitions = append(transitions, t.toDomain())
	}
	return &domain.WorkflowDefinition{
		TenantID:        tenantID,
		Name:            r.Name,
		IsDefault:       r.IsDefault,
		IsActive:        r.IsActive,
		InitialStatus:   r.InitialStatus,
		AllowedStatuses: r.AllowedStatuses,
		Transitions:     transitions,
	}
}

func (t TransitionDTO) toDomain() domain.Transition {
	guards := make([]domain.GuardCondition, 0, len(t.Guards))
	for _, g := range t.Guards {
		guards = append(guards, domain.GuardCondition{
			Kind:       g.Kind,
			Op:         g.Op,
			Hours:      g.Hours,
			Priority:   g.Priority,
			Priorities: g.Priorities,
			Role:       g.Role,
			Timezone:   g.Timezone,
		})
	}
	actions := make([]domain.Action, 0, len(t.Actions))
	for _, a := range t.Actions {
		action := domain.Action{
			Kind:     a.Kind,
			Priority: a.Priority,
			DueHours: a.DueHours,
		}
		switch a.Kind {
		case domain.ActionSendNotification:
			action.Notification = &domain.NotifyParams{Event: a.Event, Recipients: a.Recipients}
		case domain.ActionAddComment:
			action.Comment = &domain.CommentParams{Body: a.CommentBody}
		case domain.ActionAssignUser:
			action.Assign = &domain.AssignParams{UserIDs: a.AssignUsers, Strategy: a.AssignPolicy}
		}
		actions = append(actions, action)
	}
	return domain.Transition{
		ID:              t.ID,
		FromStatus:      t.FromStatus,
		ToStatus:        t.ToStatus,
		RequiredRole:    t.RequiredRole,
		RequiresComment: t.RequiresComment,
		Guards:          guards,
		Actions:         actions,
		SortOrder:       t.SortOrder,
		IsActive:        t.IsActive,
	}
}

// NewWorkflowResponse maps a domain definition.
func NewWorkflowResponse(definition *domain.WorkflowDefinition) WorkflowResponse {
	transitions := make([]TransitionDTO, 0, len(definition.Transitions))
	for _, t := range definition.Transitions {
		transitions = append(transitions, newTransitionDTO(t))
	}
	return WorkflowResponse{
		ID:              definition.ID,
		Name:            definition.Name,
		IsDefault:       definition.IsDefault,
		IsActive:        definition.IsActive,
		InitialStatus:   definition.InitialStatus,
		AllowedStatuses: definition.AllowedStatuses,
		Transitions:     transitions,
	}
}

func newTransitionDTO(t domain.Transition) TransitionDTO {
	guards := make([]GuardDTO, 0, len(t.Guards))
	for _, g := range t.Guards {
		guards = append(guards, GuardDTO{
			Kind:       g.Kind,
			Op:         g.Op,
			Hours:      g.Hours,
			Priority:   g.Priority,
			Priorities: g.Priorities,
			Role:       g.Role,
			Timezone:   g.Timezone,
		})
	}
	actions := make([]ActionDTO, 0, len(t.Actions))
	for _, a := range t.Actions {
		action := ActionDTO{
			Kind:     a.Kind,
			Priority: a.Priority,
			DueHours: a.DueHours,
		}
		if a.Notification != nil {
			action.Event = a.Notification.Event
			action.Recipients = a.Notification.Recipients
		}
		if a.Comment != nil {
			action.CommentBody = a.Comment.Body
		}
		if a.Assign != nil {
			action.AssignUsers = a.Assign.UserIDs
			action.AssignPolicy = a.Assign.Strategy
		}
		actions = append(actions, action)
	}
	return TransitionDTO{
		ID:              t.ID,
		FromStatus:      t.FromStatus,
		ToStatus:        t.ToStatus,
		RequiredRole:    t.RequiredRole,
		RequiresComment: t.RequiresComment,
		Guards:          guards,
		Actions:         actions,
		SortOrder:       t.SortOrder,
		IsActive:        t.IsActive,
	}
}
