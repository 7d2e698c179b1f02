// Package workflow validates and executes rule-gated ticket status
// transitions with automated side effects.
package workflow

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// Authorizer answers role checks for transition gating.
type Authorizer interface {
	HasRole(actor domain.Actor, role string) bool
}

// ActorRoles authorizes from the roles carried on the actor itself.
type ActorRoles struct{}

func (ActorRoles) HasRole(actor domain.Actor, role string) bool {
	return actor.HasRole(role)
}

// Notifier delivers fire-and-forget notifications for transitions.
type Notifier interface {
	Send(ctx context.Context, event string, ticket *domain.Ticket, meta map[string]any) error
}

// CommentSink records system-authored comments produced by actions.
type CommentSink interface {
	AddSystemComment(ctx context.Context, ticketID, body string) error
}

// DueDateSetter updates the ticket's queue entry SLA deadline.
type DueDateSetter interface {
	SetDeadline(ctx context.Context, tenantID, ticketID string, deadline time.Time) error
}

// AssigneeDirectory answers assignment-strategy queries over the
// candidate user list of an assign_user action.
type AssigneeDirectory interface {
	// MostRecentlyAssigned returns which of the listed users was
	// assigned a ticket last, or "" when none has been.
	MostRecentlyAssigned(ctx context.Context, tenantID string, userIDs []string) (string, error)
	// OpenAssignedCount returns the user's number of open tickets.
	OpenAssignedCount(ctx context.Context, tenantID, userID string) (int, error)
}

// Result reports the outcome of a transition request. A failed request
// carries every blocking reason so callers can explain all of them.
type Result struct {
	Success    bool
	Errors     []*apperrors.DomainError
	ActionsRun []domain.ActionKind
}

// Dependencies bundles the engine's collaborators.
type Dependencies struct {
	Authorizer Authorizer
	Notifier   Notifier
	Comments   CommentSink
	DueDates   DueDateSetter
	Assignees  AssigneeDirectory
	Clock      clock.Clock
	Logger     *zap.Logger
}

// Engine executes transitions against a workflow definition.
type Engine struct {
	authorizer Authorizer
	notifier   Notifier
	comments   CommentSink
	dueDates   DueDateSetter
	assignees  AssigneeDirectory
	clk        clock.Clock
	logger     *zap.Logger
}

// NewEngine constructs the engine.
func NewEngine(deps Dependencies) *Engine {
	authorizer := deps.Authorizer
	if authorizer == nil {
		authorizer = ActorRoles{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		authorizer: authorizer,
		notifier:   deps.Notifier,
		comments:   deps.Comments,
		dueDates:   deps.DueDates,
		assignees:  deps.Assignees,
		clk:        deps.Clock,
		logger:     logger,
	}
}

// Execute validates the requested transition and, when legal, mutates
// the ticket status and runs the transition's actions in order. Guard,
// role and comment failures leave the ticket untouched; action failures
// are logged and never revert the already-applied status change.
func (e *Engine) Execute(ctx context.Context, ticket *domain.Ticket, definition *domain.WorkflowDefinition, policy *domain.SLAPolicy, toStatus domain.TicketStatus, actor domain.Actor, comment string) Result {
	now := e.clk.Now()

	// Legacy open-ended behavior: without a workflow every transition
	// is allowed and no actions exist to run.
	if definition == nil {
		fromStatus := ticket.Status
		e.applyStatus(ticket, toStatus, actor, now)
		e.logger.Info("transition executed without workflow",
			zap.String("ticket_id", ticket.ID),
			zap.String("from", string(fromStatus)),
			zap.String("to", string(toStatus)))
		return Result{Success: true}
	}

	transition := definition.FindTransition(ticket.Status, toStatus)
	if transition == nil {
		return Result{Errors: []*apperrors.DomainError{
			apperrors.NewTransitionUndefined(string(ticket.Status), string(toStatus)),
		}}
	}

	var blocked []*apperrors.DomainError
	if transition.RequiredRole != "" && !e.authorizer.HasRole(actor, transition.RequiredRole) {
		blocked = append(blocked, apperrors.NewRoleRequired(transition.RequiredRole))
	}
	gctx := GuardContext{Ticket: ticket, Actor: actor, Policy: policy, Now: now}
	for _, guard := range transition.Guards {
		if ok, reason := evaluateGuard(guard, gctx); !ok {
			blocked = append(blocked, apperrors.NewGuardRejected(string(guard.Kind), reason, nil))
		}
	}
	if transition.RequiresComment && strings.TrimSpace(comment) == "" {
		blocked = append(blocked, apperrors.NewCommentRequired())
	}
	if len(blocked) > 0 {
		return Result{Errors: blocked}
	}

	fromStatus := ticket.Status
	e.applyStatus(ticket, toStatus, actor, now)

	result := Result{Success: true}
	for _, action := range transition.Actions {
		if err := e.runAction(ctx, action, ticket, fromStatus, actor, now); err != nil {
			e.logger.Warn("transition action failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("action", string(action.Kind)),
				zap.Error(err))
			continue
		}
		result.ActionsRun = append(result.ActionsRun, action.Kind)
	}
	e.logger.Info("transition executed",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(fromStatus)),
		zap.String("to", string(toStatus)),
		zap.String("actor", actor.ID),
		zap.Int("actions_run", len(result.ActionsRun)))
	return result
}

// applyStatus mutates the status and keeps closed_at consistent with
// the terminal-status invariant.
func (e *Engine) applyStatus(ticket *domain.Ticket, toStatus domain.TicketStatus, actor domain.Actor, now time.Time) {
	ticket.Status = toStatus
	ticket.UpdatedAt = now
	if ticket.IsClosed() {
		if ticket.ClosedAt == nil {
			closedAt := now
			ticket.ClosedAt = &closedAt
			actorID := actor.ID
			ticket.ClosedBy = &actorID
		}
	} else {
		ticket.ClosedAt = nil
		ticket.ClosedBy = nil
	}
}

func (e *Engine) runAction(ctx context.Context, action domain.Action, ticket *domain.Ticket, fromStatus domain.TicketStatus, actor domain.Actor, now time.Time) error {
	switch action.Kind {
	case domain.ActionSendNotification:
		if e.notifier == nil {
			return nil
		}
		event := "ticket_status_changed"
		var recipients []string
		if action.Notification != nil {
			if action.Notification.Event != "" {
				event = action.Notification.Event
			}
			recipients = action.Notification.Recipients
		}
		return e.notifier.Send(ctx, event, ticket, map[string]any{
			"from":       string(fromStatus),
			"to":         string(ticket.Status),
			"actor":      actor.ID,
			"recipients": recipients,
		})

	case domain.ActionAddComment:
		if e.comments == nil {
			return nil
		}
		body := "Status changed from {from} to {to} by {actor}"
		if action.Comment != nil && action.Comment.Body != "" {
			body = action.Comment.Body
		}
		body = strings.NewReplacer(
			"{from}", string(fromStatus),
			"{to}", string(ticket.Status),
			"{actor}", actor.Name,
			"{ticket}", ticket.Key(),
		).Replace(body)
		return e.comments.AddSystemComment(ctx, ticket.ID, body)

	case domain.ActionUpdatePriority:
		if !action.Priority.Valid() {
			return apperrors.NewValidationError("update_priority action carries invalid priority", map[string]any{
				"priority": string(action.Priority),
			})
		}
		ticket.Priority = action.Priority
		return nil

	case domain.ActionSetDueDate:
		if e.dueDates == nil {
			return nil
		}
		deadline := now.Add(time.Duration(action.DueHours * float64(time.Hour)))
		return e.dueDates.SetDeadline(ctx, ticket.TenantID, ticket.ID, deadline)

	case domain.ActionAssignUser:
		if action.Assign == nil || len(action.Assign.UserIDs) == 0 {
			return apperrors.NewValidationError("assign_user action has no candidates", nil)
		}
		userID, err := e.pickAssignee(ctx, ticket.TenantID, action.Assign)
		if err != nil {
			return err
		}
		ticket.AssigneeID = &userID
		actorID := actor.ID
		ticket.AssignedBy = &actorID
		return nil

	default:
		return apperrors.NewValidationError("unknown action kind", map[string]any{"kind": string(action.Kind)})
	}
}

// pickAssignee applies the configured strategy over the candidate list.
// Round-robin picks the candidate after the most recently assigned one;
// load-balance picks the fewest open tickets, ties broken by list order.
func (e *Engine) pickAssignee(ctx context.Context, tenantID string, params *domain.AssignParams) (string, error) {
	if e.assignees == nil {
		return params.UserIDs[0], nil
	}
	switch params.Strategy {
	case domain.AssignLoadBalance:
		best := ""
		bestCount := 0
		for _, userID := range params.UserIDs {
			count, err := e.assignees.OpenAssignedCount(ctx, tenantID, userID)
			if err != nil {
				return "", err
			}
			if best == "" || count < bestCount {
				best = userID
				bestCount = count
			}
		}
		return best, nil
	default: // round robin
		last, err := e.assignees.MostRecentlyAssigned(ctx, tenantID, params.UserIDs)
		if err != nil {
			return "", err
		}
		if last == "" {
			return params.UserIDs[0], nil
		}
		for i, userID := range params.UserIDs {
			if userID == last {
				return params.UserIDs[(i+1)%len(params.UserIDs)], nil
			}
		}
		return params.UserIDs[0], nil
	}
}
