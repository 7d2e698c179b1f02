package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/queue"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/sla"
	"github.com/spec-kit/helpdesk-core/internal/workflow"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// TicketService coordinates ticket lifecycle, SLA evaluation and queue
// placement. Status never mutates outside the workflow engine.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	workflows  repository.WorkflowRepository
	resolver   *PolicyResolver
	queue      *queue.Manager
	engine     *workflow.Engine
	evaluator  *sla.Evaluator
	dispatcher events.Dispatcher
	clk        clock.Clock
	logger     *zap.Logger
	rules      []domain.EscalationRule
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	CommentRepo     repository.CommentRepository
	WorkflowRepo    repository.WorkflowRepository
	PolicyResolver  *PolicyResolver
	Queue           *queue.Manager
	Evaluator       *sla.Evaluator
	Dispatcher      events.Dispatcher
	Clock           clock.Clock
	Logger          *zap.Logger
	EscalationRules []domain.EscalationRule
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject          string
	Details          string
	Priority         domain.TicketPriority
	Billable         bool
	ClientID         *string
	ClientImportance float64
	SLAPolicyID      *string
	WorkflowID       *string
	ScheduledAt      *time.Time
}

// NewTicketService constructs the service and wires the workflow engine
// to the queue and comment side effects.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		workflows:  deps.WorkflowRepo,
		resolver:   deps.PolicyResolver,
		queue:      deps.Queue,
		evaluator:  deps.Evaluator,
		dispatcher: deps.Dispatcher,
		clk:        deps.Clock,
		logger:     logger,
		rules:      deps.EscalationRules,
	}
	s.engine = workflow.NewEngine(workflow.Dependencies{
		Notifier:  &eventNotifier{dispatcher: deps.Dispatcher, clk: deps.Clock},
		Comments:  &systemCommentSink{comments: deps.CommentRepo},
		DueDates:  deps.Queue,
		Assignees: &assigneeDirectory{tickets: deps.TicketRepo},
		Clock:     deps.Clock,
		Logger:    logger,
	})
	return s
}

// CreateTicket allocates the next tenant ticket number, persists the
// ticket in its workflow's initial status and enqueues it.
func (s *TicketService) CreateTicket(ctx context.Context, tenantID, createdBy string, input TicketCreateInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, apperrors.NewValidationError("subject is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": string(priority)})
	}

	definition, err := s.resolveWorkflow(ctx, tenantID, input.WorkflowID)
	if err != nil {
		return nil, err
	}
	initialStatus := domain.TicketStatusOpen
	if definition != nil && definition.InitialStatus != "" {
		initialStatus = definition.InitialStatus
	}

	number, err := s.tickets.NextNumber(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ticket := &domain.Ticket{
		TenantID:         tenantID,
		Number:           number,
		NumberPrefix:     "TCK",
		Subject:          subject,
		Details:          strings.TrimSpace(input.Details),
		Status:           initialStatus,
		Priority:         priority,
		Billable:         input.Billable,
		ClientID:         input.ClientID,
		ClientImportance: input.ClientImportance,
		SLAPolicyID:      input.SLAPolicyID,
		WorkflowID:       input.WorkflowID,
		CreatedBy:        createdBy,
		ScheduledAt:      input.ScheduledAt,
	}
	if definition != nil && ticket.WorkflowID == nil {
		workflowID := definition.ID
		ticket.WorkflowID = &workflowID
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	if _, err := s.queue.Add(ctx, ticket, s.rules, nil); err != nil {
		s.logger.Warn("ticket created but not enqueued",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  createdBy,
		Payload: events.TicketCreatedPayload{
			TenantID: tenantID,
			Number:   ticket.Key(),
			Priority: ticket.Priority,
			Subject:  ticket.Subject,
		},
	})
	return ticket, nil
}

// ChangeStatus runs the requested transition through the workflow
// engine. The returned result carries every blocking reason when the
// transition is rejected; err is reserved for infrastructure failures.
func (s *TicketService) ChangeStatus(ctx context.Context, tenantID, ticketID string, toStatus domain.TicketStatus, actor domain.Actor, comment string) (*domain.Ticket, workflow.Result, error) {
	ticket, err := s.getTenantTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, workflow.Result{}, err
	}
	definition, err := s.resolveWorkflow(ctx, tenantID, ticket.WorkflowID)
	if err != nil {
		return nil, workflow.Result{}, err
	}
	policy, err := s.resolver.ResolveForTicket(ctx, ticket)
	if err != nil {
		return nil, workflow.Result{}, err
	}

	oldStatus := ticket.Status
	result := s.engine.Execute(ctx, ticket, definition, policy, toStatus, actor, comment)
	if !result.Success {
		return ticket, result, nil
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, result, err
	}
	if strings.TrimSpace(comment) != "" {
		s.addTransitionComment(ctx, ticket, actor, comment)
	}
	if ticket.IsClosed() {
		if err := s.queue.RemoveTicket(ctx, tenantID, ticket.ID); err != nil {
			s.logger.Warn("failed to dequeue closed ticket",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
	} else {
		if err := s.queue.RefreshScore(ctx, ticket); err != nil {
			s.logger.Warn("failed to refresh queue score",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketStatusChangedPayload{
			TenantID:  tenantID,
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
			Comment:   comment,
		},
	})
	if ticket.AssigneeID != nil && contains(result.ActionsRun, domain.ActionAssignUser) {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Payload: events.TicketAssignedPayload{
				TenantID:   tenantID,
				AssigneeID: *ticket.AssigneeID,
			},
		})
	}
	return ticket, result, nil
}

// GetTicket fetches a ticket scoped to its tenant.
func (s *TicketService) GetTicket(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	return s.getTenantTicket(ctx, tenantID, ticketID)
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, filter)
}

// AddComment records an agent comment. The first non-system comment
// stamps the ticket's first response time.
func (s *TicketService) AddComment(ctx context.Context, tenantID, ticketID string, actor domain.Actor, body string) (*domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", nil)
	}
	ticket, err := s.getTenantTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	authorID := actor.ID
	comment := &domain.Comment{
		TicketID: ticket.ID,
		AuthorID: &authorID,
		Body:     body,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	if ticket.FirstResponseAt == nil {
		now := s.clk.Now()
		ticket.FirstResponseAt = &now
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, err
		}
	}
	return comment, nil
}

// ListComments returns a ticket's comments in chronological order.
func (s *TicketService) ListComments(ctx context.Context, tenantID, ticketID string, limit, offset int) ([]domain.Comment, error) {
	ticket, err := s.getTenantTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	return s.comments.ListByTicket(ctx, ticket.ID, limit, offset)
}

// RecordWork adds worked minutes to a ticket and refreshes its score.
func (s *TicketService) RecordWork(ctx context.Context, tenantID, ticketID string, minutes int) (*domain.Ticket, error) {
	if minutes <= 0 {
		return nil, apperrors.NewValidationError("worked minutes must be positive", map[string]any{"minutes": minutes})
	}
	ticket, err := s.getTenantTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	ticket.TimeWorkedMin += minutes
	ticket.UpdatedAt = s.clk.Now()
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.queue.RefreshScore(ctx, ticket); err != nil {
		s.logger.Warn("failed to refresh queue score",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
	return ticket, nil
}

// EvaluateSLA computes the ticket's deadlines and breach state under
// its resolved policy. Tickets without a policy return a nil evaluation.
func (s *TicketService) EvaluateSLA(ctx context.Context, tenantID, ticketID string) (*sla.Evaluation, error) {
	ticket, err := s.getTenantTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	policy, err := s.resolver.ResolveForTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, nil
	}
	evaluation, err := s.evaluator.Evaluate(ticket, policy)
	if err != nil {
		return nil, err
	}
	return &evaluation, nil
}

func (s *TicketService) getTenantTicket(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.TenantID != tenantID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) resolveWorkflow(ctx context.Context, tenantID string, workflowID *string) (*domain.WorkflowDefinition, error) {
	if workflowID != nil {
		definition, err := s.workflows.GetByID(ctx, *workflowID)
		if err != nil {
			return nil, err
		}
		if definition.TenantID != tenantID {
			return nil, apperrors.NewNotFound("workflow", map[string]any{"workflow_id": *workflowID})
		}
		return definition, nil
	}
	return s.workflows.GetDefault(ctx, tenantID)
}

func (s *TicketService) addTransitionComment(ctx context.Context, ticket *domain.Ticket, actor domain.Actor, body string) {
	authorID := actor.ID
	comment := &domain.Comment{
		TicketID: ticket.ID,
		AuthorID: &authorID,
		Body:     body,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		s.logger.Warn("failed to record transition comment",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.clk.Now()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func contains(actions []domain.ActionKind, kind domain.ActionKind) bool {
	for _, a := range actions {
		if a == kind {
			return true
		}
	}
	return false
}

// eventNotifier adapts the dispatcher to the engine's notifier port.
type eventNotifier struct {
	dispatcher events.Dispatcher
	clk        clock.Clock
}

func (n *eventNotifier) Send(ctx context.Context, event string, ticket *domain.Ticket, meta map[string]any) error {
	if n.dispatcher == nil {
		return nil
	}
	return n.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventType(event),
		TicketID:  ticket.ID,
		Timestamp: n.clk.Now(),
		Payload:   meta,
	})
}

// systemCommentSink adapts the comment repository to the engine's
// comment port.
type systemCommentSink struct {
	comments repository.CommentRepository
}

func (c *systemCommentSink) AddSystemComment(ctx context.Context, ticketID, body string) error {
	return c.comments.Create(ctx, &domain.Comment{
		TicketID: ticketID,
		Body:     body,
		IsSystem: true,
	})
}

// assigneeDirectory adapts the ticket repository to the engine's
// assignment-strategy port.
type assigneeDirectory struct {
	tickets repository.TicketRepository
}

func (d *assigneeDirectory) MostRecentlyAssigned(ctx context.Context, tenantID string, userIDs []string) (string, error) {
	return d.tickets.MostRecentAssignee(ctx, tenantID, userIDs)
}

func (d *assigneeDirectory) OpenAssignedCount(ctx context.Context, tenantID, userID string) (int, error) {
	return d.tickets.CountOpenAssigned(ctx, tenantID, userID)
}
