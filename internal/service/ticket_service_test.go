package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/queue"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/scoring"
	"github.com/spec-kit/helpdesk-core/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

type fakeTicketRepo struct {
	tickets map[string]*domain.Ticket
	seqs    map[string]int64
	nextID  int
	clk     clock.Clock
}

func newFakeTicketRepo(clk clock.Clock) *fakeTicketRepo {
	return &fakeTicketRepo{
		tickets: make(map[string]*domain.Ticket),
		seqs:    make(map[string]int64),
		clk:     clk,
	}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.nextID++
	ticket.ID = fmt.Sprintf("t-%d", r.nextID)
	ticket.CreatedAt = r.clk.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) GetByNumber(_ context.Context, tenantID string, number int64) (*domain.Ticket, error) {
	for _, ticket := range r.tickets {
		if ticket.TenantID == tenantID && ticket.Number == number {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.TenantID == filter.TenantID {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) NextNumber(_ context.Context, tenantID string) (int64, error) {
	r.seqs[tenantID]++
	return r.seqs[tenantID], nil
}

func (r *fakeTicketRepo) CountOpenAssigned(_ context.Context, tenantID, userID string) (int, error) {
	count := 0
	for _, ticket := range r.tickets {
		if ticket.TenantID == tenantID && ticket.AssigneeID != nil && *ticket.AssigneeID == userID && !ticket.IsClosed() {
			count++
		}
	}
	return count, nil
}

func (r *fakeTicketRepo) MostRecentAssignee(_ context.Context, tenantID string, userIDs []string) (string, error) {
	var (
		best     string
		bestTime time.Time
	)
	for _, ticket := range r.tickets {
		if ticket.TenantID != tenantID || ticket.AssigneeID == nil {
			continue
		}
		for _, userID := range userIDs {
			if *ticket.AssigneeID == userID && ticket.UpdatedAt.After(bestTime) {
				best = userID
				bestTime = ticket.UpdatedAt
			}
		}
	}
	return best, nil
}

type fakeCommentRepo struct {
	comments []domain.Comment
	nextID   int
	clk      clock.Clock
}

func (r *fakeCommentRepo) Create(_ context.Context, comment *domain.Comment) error {
	r.nextID++
	comment.ID = fmt.Sprintf("c-%d", r.nextID)
	comment.CreatedAt = r.clk.Now()
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *fakeCommentRepo) ListByTicket(_ context.Context, ticketID string, _, _ int) ([]domain.Comment, error) {
	var out []domain.Comment
	for _, comment := range r.comments {
		if comment.TicketID == ticketID {
			out = append(out, comment)
		}
	}
	return out, nil
}

type fakeWorkflowRepo struct {
	definitions map[string]*domain.WorkflowDefinition
	byTenant    map[string]*domain.WorkflowDefinition
}

func (r *fakeWorkflowRepo) Create(_ context.Context, _ *domain.WorkflowDefinition) error { return nil }
func (r *fakeWorkflowRepo) Update(_ context.Context, _ *domain.WorkflowDefinition) error { return nil }

func (r *fakeWorkflowRepo) GetByID(_ context.Context, id string) (*domain.WorkflowDefinition, error) {
	definition, ok := r.definitions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return definition, nil
}

func (r *fakeWorkflowRepo) GetDefault(_ context.Context, tenantID string) (*domain.WorkflowDefinition, error) {
	return r.byTenant[tenantID], nil
}

func (r *fakeWorkflowRepo) ListActive(_ context.Context, _ string) ([]domain.WorkflowDefinition, error) {
	return nil, nil
}

func (r *fakeWorkflowRepo) SetDefault(_ context.Context, _, _ string) error { return nil }

type fakePolicyRepo struct {
	policies map[string]*domain.SLAPolicy
	defaults map[string]*domain.SLAPolicy
}

func (r *fakePolicyRepo) Create(_ context.Context, _ *domain.SLAPolicy) error { return nil }
func (r *fakePolicyRepo) Update(_ context.Context, _ *domain.SLAPolicy) error { return nil }

func (r *fakePolicyRepo) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	policy, ok := r.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return policy, nil
}

func (r *fakePolicyRepo) GetDefault(_ context.Context, tenantID string) (*domain.SLAPolicy, error) {
	return r.defaults[tenantID], nil
}

func (r *fakePolicyRepo) ListActive(_ context.Context, _ string) ([]domain.SLAPolicy, error) {
	return nil, nil
}

func (r *fakePolicyRepo) SetDefault(_ context.Context, _, _ string) error { return nil }

type fakeQueueStore struct {
	entries map[string]*domain.PriorityQueueEntry
	nextID  int
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{entries: make(map[string]*domain.PriorityQueueEntry)}
}

func (s *fakeQueueStore) ListActive(_ context.Context, tenantID string) ([]domain.PriorityQueueEntry, error) {
	var out []domain.PriorityQueueEntry
	for _, entry := range s.entries {
		if entry.TenantID == tenantID && entry.IsActive {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *fakeQueueStore) GetByID(_ context.Context, id string) (*domain.PriorityQueueEntry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (s *fakeQueueStore) GetActiveByTicket(_ context.Context, tenantID, ticketID string) (*domain.PriorityQueueEntry, error) {
	for _, entry := range s.entries {
		if entry.TenantID == tenantID && entry.TicketID == ticketID && entry.IsActive {
			copied := *entry
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeQueueStore) Insert(_ context.Context, entry *domain.PriorityQueueEntry) error {
	s.nextID++
	entry.ID = fmt.Sprintf("q-%d", s.nextID)
	copied := *entry
	s.entries[entry.ID] = &copied
	return nil
}

func (s *fakeQueueStore) Update(_ context.Context, entry *domain.PriorityQueueEntry) error {
	if _, ok := s.entries[entry.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *entry
	s.entries[entry.ID] = &copied
	return nil
}

func (s *fakeQueueStore) UpdateAll(ctx context.Context, entries []domain.PriorityQueueEntry) error {
	for i := range entries {
		if err := s.Update(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeQueueStore) ActiveTenants(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, entry := range s.entries {
		if entry.IsActive && !seen[entry.TenantID] {
			seen[entry.TenantID] = true
			out = append(out, entry.TenantID)
		}
	}
	return out, nil
}

type serviceFixture struct {
	service    *TicketService
	tickets    *fakeTicketRepo
	comments   *fakeCommentRepo
	workflows  *fakeWorkflowRepo
	queueStore *fakeQueueStore
	clk        *clock.Fixed
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clk := &clock.Fixed{Instant: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)}
	tickets := newFakeTicketRepo(clk)
	comments := &fakeCommentRepo{clk: clk}
	workflows := &fakeWorkflowRepo{
		definitions: make(map[string]*domain.WorkflowDefinition),
		byTenant:    make(map[string]*domain.WorkflowDefinition),
	}
	policies := &fakePolicyRepo{
		policies: make(map[string]*domain.SLAPolicy),
		defaults: make(map[string]*domain.SLAPolicy),
	}
	resolver := NewPolicyResolver(policies, clk)
	queueStore := newFakeQueueStore()
	manager := queue.NewManager(queue.Dependencies{
		Store:     queueStore,
		Tickets:   tickets,
		Policies:  resolver,
		Scorer:    scoring.NewScorer(clk),
		Evaluator: sla.NewEvaluator(clk),
		Clock:     clk,
	})
	svc := NewTicketService(TicketDependencies{
		TicketRepo:     tickets,
		CommentRepo:    comments,
		WorkflowRepo:   workflows,
		PolicyResolver: resolver,
		Queue:          manager,
		Evaluator:      sla.NewEvaluator(clk),
		Clock:          clk,
	})
	return &serviceFixture{
		service:    svc,
		tickets:    tickets,
		comments:   comments,
		workflows:  workflows,
		queueStore: queueStore,
		clk:        clk,
	}
}

// triageWorkflow is open -> in_progress (free) and in_progress ->
// resolved (comment required, manager only).
func triageWorkflow(tenantID string) *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		ID:              "wf-1",
		TenantID:        tenantID,
		Name:            "triage",
		IsDefault:       true,
		IsActive:        true,
		InitialStatus:   domain.TicketStatusOpen,
		AllowedStatuses: domain.DefaultStatuses,
		Transitions: []domain.Transition{
			{
				ID:         "tr-1",
				FromStatus: domain.TicketStatusOpen,
				ToStatus:   domain.TicketStatusInProgress,
				IsActive:   true,
			},
			{
				ID:              "tr-2",
				FromStatus:      domain.TicketStatusInProgress,
				ToStatus:        domain.TicketStatusResolved,
				RequiredRole:    domain.RoleManager,
				RequiresComment: true,
				IsActive:        true,
			},
		},
	}
}

func installWorkflow(f *serviceFixture, definition *domain.WorkflowDefinition) {
	f.workflows.definitions[definition.ID] = definition
	if definition.IsDefault {
		f.workflows.byTenant[definition.TenantID] = definition
	}
}

func TestCreateTicket(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	installWorkflow(f, triageWorkflow("acme"))
	ctx := context.Background()

	first, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "printer on fire"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if first.Number != 1 {
		t.Fatalf("first ticket number = %d, want 1", first.Number)
	}
	if first.Key() != "TCK-1" {
		t.Fatalf("ticket key = %q, want TCK-1", first.Key())
	}
	if first.Status != domain.TicketStatusOpen {
		t.Fatalf("initial status = %q, want open", first.Status)
	}
	if first.Priority != domain.TicketPriorityMedium {
		t.Fatalf("default priority = %q, want medium", first.Priority)
	}
	if first.WorkflowID == nil || *first.WorkflowID != "wf-1" {
		t.Fatalf("workflow id not stamped from tenant default: %v", first.WorkflowID)
	}

	second, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "vpn down", Priority: domain.TicketPriorityHigh})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if second.Number != 2 {
		t.Fatalf("second ticket number = %d, want 2", second.Number)
	}

	entry, err := f.queueStore.GetActiveByTicket(ctx, "acme", first.ID)
	if err != nil || entry == nil {
		t.Fatalf("first ticket not enqueued: entry=%v err=%v", entry, err)
	}
	if entry.Position != 1 {
		t.Fatalf("first entry position = %d, want 1", entry.Position)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "   "}); err == nil {
		t.Fatal("expected error for blank subject")
	}
	_, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "x", Priority: "urgent"})
	if err == nil {
		t.Fatal("expected error for unknown priority")
	}
	domainErr := apperrors.ToDomainError(err)
	if domainErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("error code = %q, want VALIDATION_FAILED", domainErr.Code)
	}
}

func TestChangeStatusSuccess(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	installWorkflow(f, triageWorkflow("acme"))
	ctx := context.Background()
	actor := domain.Actor{ID: "agent-1", Name: "Sam", Roles: []string{domain.RoleAgent}}

	ticket, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "vpn down"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	updated, result, err := f.service.ChangeStatus(ctx, "acme", ticket.ID, domain.TicketStatusInProgress, actor, "")
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if !result.Success {
		t.Fatalf("transition rejected: %+v", result.Errors)
	}
	if updated.Status != domain.TicketStatusInProgress {
		t.Fatalf("status = %q, want in_progress", updated.Status)
	}
	stored, _ := f.tickets.GetByID(ctx, ticket.ID)
	if stored.Status != domain.TicketStatusInProgress {
		t.Fatalf("persisted status = %q, want in_progress", stored.Status)
	}
}

func TestChangeStatusBlocked(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	installWorkflow(f, triageWorkflow("acme"))
	ctx := context.Background()
	agent := domain.Actor{ID: "agent-1", Roles: []string{domain.RoleAgent}}

	ticket, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "vpn down"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, result, err := f.service.ChangeStatus(ctx, "acme", ticket.ID, domain.TicketStatusInProgress, agent, ""); err != nil || !result.Success {
		t.Fatalf("setup transition failed: err=%v result=%+v", err, result)
	}

	// Agent lacks the manager role and sends no comment: both blockers
	// must be reported and the ticket must stay in_progress.
	_, result, err := f.service.ChangeStatus(ctx, "acme", ticket.ID, domain.TicketStatusResolved, agent, "")
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if result.Success {
		t.Fatal("expected rejected transition")
	}
	codes := map[string]bool{}
	for _, e := range result.Errors {
		codes[e.Code] = true
	}
	if !codes["ROLE_REQUIRED"] || !codes["COMMENT_REQUIRED"] {
		t.Fatalf("blocking codes = %v, want ROLE_REQUIRED and COMMENT_REQUIRED", codes)
	}
	stored, _ := f.tickets.GetByID(ctx, ticket.ID)
	if stored.Status != domain.TicketStatusInProgress {
		t.Fatalf("persisted status mutated on rejection: %q", stored.Status)
	}
}

func TestChangeStatusDequeuesClosedTicket(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	installWorkflow(f, triageWorkflow("acme"))
	ctx := context.Background()
	manager := domain.Actor{ID: "mgr-1", Name: "Lee", Roles: []string{domain.RoleManager}}

	ticket, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "vpn down"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, result, err := f.service.ChangeStatus(ctx, "acme", ticket.ID, domain.TicketStatusInProgress, manager, ""); err != nil || !result.Success {
		t.Fatalf("setup transition failed: err=%v result=%+v", err, result)
	}

	updated, result, err := f.service.ChangeStatus(ctx, "acme", ticket.ID, domain.TicketStatusResolved, manager, "rebooted the concentrator")
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if !result.Success {
		t.Fatalf("transition rejected: %+v", result.Errors)
	}
	if updated.ClosedAt == nil || updated.ClosedBy == nil || *updated.ClosedBy != "mgr-1" {
		t.Fatalf("closed stamps missing: closed_at=%v closed_by=%v", updated.ClosedAt, updated.ClosedBy)
	}

	entry, err := f.queueStore.GetActiveByTicket(ctx, "acme", ticket.ID)
	if err != nil {
		t.Fatalf("GetActiveByTicket: %v", err)
	}
	if entry != nil {
		t.Fatal("resolved ticket still holds an active queue entry")
	}

	// The transition comment must be recorded against the ticket.
	comments, _ := f.comments.ListByTicket(ctx, ticket.ID, 10, 0)
	if len(comments) != 1 || comments[0].Body != "rebooted the concentrator" {
		t.Fatalf("transition comment not recorded: %+v", comments)
	}
}

func TestChangeStatusUndefinedTransition(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	installWorkflow(f, triageWorkflow("acme"))
	ctx := context.Background()
	actor := domain.Actor{ID: "agent-1", Roles: []string{domain.RoleAgent}}

	ticket, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "vpn down"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	_, result, err := f.service.ChangeStatus(ctx, "acme", ticket.ID, domain.TicketStatusClosed, actor, "")
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if result.Success || len(result.Errors) != 1 || result.Errors[0].Code != "TRANSITION_UNDEFINED" {
		t.Fatalf("result = %+v, want single TRANSITION_UNDEFINED", result)
	}
}

func TestChangeStatusTenantScoping(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	installWorkflow(f, triageWorkflow("acme"))
	ctx := context.Background()

	ticket, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "vpn down"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	_, _, err = f.service.ChangeStatus(ctx, "globex", ticket.ID, domain.TicketStatusInProgress, domain.Actor{ID: "x"}, "")
	if err == nil {
		t.Fatal("expected cross-tenant access to fail")
	}
	if apperrors.ToDomainError(err).Code != "NOT_FOUND" {
		t.Fatalf("error code = %q, want NOT_FOUND", apperrors.ToDomainError(err).Code)
	}
}

func TestAddCommentStampsFirstResponse(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()
	actor := domain.Actor{ID: "agent-1", Roles: []string{domain.RoleAgent}}

	ticket, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "vpn down"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	f.clk.Advance(30 * time.Minute)
	firstResponse := f.clk.Now()
	if _, err := f.service.AddComment(ctx, "acme", ticket.ID, actor, "looking into it"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	stored, _ := f.tickets.GetByID(ctx, ticket.ID)
	if stored.FirstResponseAt == nil || !stored.FirstResponseAt.Equal(firstResponse) {
		t.Fatalf("first_response_at = %v, want %v", stored.FirstResponseAt, firstResponse)
	}

	f.clk.Advance(time.Hour)
	if _, err := f.service.AddComment(ctx, "acme", ticket.ID, actor, "still digging"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	stored, _ = f.tickets.GetByID(ctx, ticket.ID)
	if !stored.FirstResponseAt.Equal(firstResponse) {
		t.Fatalf("first_response_at moved on second comment: %v", stored.FirstResponseAt)
	}

	if _, err := f.service.AddComment(ctx, "acme", ticket.ID, actor, "  "); err == nil {
		t.Fatal("expected error for blank comment body")
	}
}

func TestRecordWork(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	ticket, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "vpn down"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, err := f.service.RecordWork(ctx, "acme", ticket.ID, 0); err == nil {
		t.Fatal("expected error for non-positive minutes")
	}
	if _, err := f.service.RecordWork(ctx, "acme", ticket.ID, 45); err != nil {
		t.Fatalf("RecordWork: %v", err)
	}
	updated, err := f.service.RecordWork(ctx, "acme", ticket.ID, 15)
	if err != nil {
		t.Fatalf("RecordWork: %v", err)
	}
	if updated.TimeWorkedMin != 60 {
		t.Fatalf("time_worked_min = %d, want 60", updated.TimeWorkedMin)
	}
}

func TestEvaluateSLAWithoutPolicy(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	ctx := context.Background()

	ticket, err := f.service.CreateTicket(ctx, "acme", "agent-1", TicketCreateInput{Subject: "vpn down"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	evaluation, err := f.service.EvaluateSLA(ctx, "acme", ticket.ID)
	if err != nil {
		t.Fatalf("EvaluateSLA: %v", err)
	}
	if evaluation != nil {
		t.Fatalf("evaluation = %+v, want nil without a policy", evaluation)
	}
}
