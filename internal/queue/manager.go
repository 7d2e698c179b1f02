// Package queue maintains the ordered, tenant-scoped work queue of
// active tickets. Active entries for a tenant always hold contiguous
// positions 1..N; every mutation for a tenant is serialized behind a
// per-tenant lock.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/scoring"
	"github.com/spec-kit/helpdesk-core/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// Store is the persistence port for queue entries.
type Store interface {
	ListActive(ctx context.Context, tenantID string) ([]domain.PriorityQueueEntry, error)
	GetByID(ctx context.Context, id string) (*domain.PriorityQueueEntry, error)
	GetActiveByTicket(ctx context.Context, tenantID, ticketID string) (*domain.PriorityQueueEntry, error)
	Insert(ctx context.Context, entry *domain.PriorityQueueEntry) error
	Update(ctx context.Context, entry *domain.PriorityQueueEntry) error
	UpdateAll(ctx context.Context, entries []domain.PriorityQueueEntry) error
}

// TicketSource loads tickets for scoring and escalation checks.
type TicketSource interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
}

// PolicySource resolves the SLA policy a ticket is governed by, or nil
// when the tenant has none.
type PolicySource interface {
	ResolveForTicket(ctx context.Context, ticket *domain.Ticket) (*domain.SLAPolicy, error)
}

// SnapshotEntry is the externally visible view of one queue slot.
type SnapshotEntry struct {
	TicketID        string  `json:"ticket_id"`
	Position        int     `json:"position"`
	Score           float64 `json:"score"`
	EscalationLevel int     `json:"escalation_level"`
	SLAStatus       string  `json:"sla_status"` // none | ok | warning | breached
}

// Dependencies bundles the manager's collaborators.
type Dependencies struct {
	Store      Store
	Tickets    TicketSource
	Policies   PolicySource
	Scorer     *scoring.Scorer
	Evaluator  *sla.Evaluator
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
	WarningPct int // snapshot warning threshold when an entry has a deadline
}

// Manager owns all queue mutations for every tenant.
type Manager struct {
	store      Store
	tickets    TicketSource
	policies   PolicySource
	scorer     *scoring.Scorer
	evaluator  *sla.Evaluator
	dispatcher events.Dispatcher
	clk        clock.Clock
	logger     *zap.Logger
	warningPct int

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	warned map[string]time.Time
}

// NewManager constructs the queue manager.
func NewManager(deps Dependencies) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	warningPct := deps.WarningPct
	if warningPct <= 0 {
		warningPct = 80
	}
	return &Manager{
		store:      deps.Store,
		tickets:    deps.Tickets,
		policies:   deps.Policies,
		scorer:     deps.Scorer,
		evaluator:  deps.Evaluator,
		dispatcher: deps.Dispatcher,
		clk:        deps.Clock,
		logger:     logger,
		warningPct: warningPct,
	}
}

// tenantLock returns the mutex serializing one tenant's queue.
func (m *Manager) tenantLock(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := m.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[tenantID] = lock
	}
	return lock
}

// scoreTicket computes the current score and resolution deadline for a
// ticket under its resolved policy.
func (m *Manager) scoreTicket(ctx context.Context, ticket *domain.Ticket) (float64, *time.Time, error) {
	var deadline *time.Time
	if m.policies != nil && m.evaluator != nil {
		policy, err := m.policies.ResolveForTicket(ctx, ticket)
		if err != nil {
			return 0, nil, err
		}
		if policy != nil {
			d, err := m.evaluator.ResolutionDeadline(ticket, policy)
			if err != nil {
				return 0, nil, err
			}
			deadline = &d
		}
	}
	score := m.scorer.Score(ticket, scoring.DeadlineInfo{ResolutionDeadline: deadline})
	return score, deadline, nil
}

// Add enqueues a ticket at the tail of its tenant's queue. A ticket
// already holding an active entry keeps it unchanged.
func (m *Manager) Add(ctx context.Context, ticket *domain.Ticket, rules []domain.EscalationRule, team *string) (*domain.PriorityQueueEntry, error) {
	lock := m.tenantLock(ticket.TenantID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.GetActiveByTicket(ctx, ticket.TenantID, ticket.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	active, err := m.activeContiguous(ctx, ticket.TenantID)
	if err != nil {
		return nil, err
	}
	score, deadline, err := m.scoreTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	now := m.clk.Now()
	entry := &domain.PriorityQueueEntry{
		TenantID:     ticket.TenantID,
		TicketID:     ticket.ID,
		Position:     len(active) + 1,
		Score:        score,
		AssignedTeam: team,
		SLADeadline:  deadline,
		Rules:        rules,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Escalate bumps an entry: score x1.5, level +1, escalated-at stamped,
// then a full reorder. The entry can only move toward position 1.
func (m *Manager) Escalate(ctx context.Context, entryID, reason string) error {
	entry, err := m.store.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperrors.NewInvalidQueueState("queue entry not found", map[string]any{"entry_id": entryID})
	}

	lock := m.tenantLock(entry.TenantID)
	lock.Lock()
	defer lock.Unlock()

	entry, err = m.store.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil || !entry.IsActive {
		return apperrors.NewInvalidQueueState("cannot escalate inactive entry", map[string]any{"entry_id": entryID})
	}

	now := m.clk.Now()
	entry.Score *= 1.5
	entry.EscalationLevel++
	entry.EscalatedAt = &now
	entry.UpdatedAt = now
	if err := m.store.Update(ctx, entry); err != nil {
		return err
	}
	if err := m.reorderLocked(ctx, entry.TenantID); err != nil {
		return err
	}
	m.logger.Info("queue entry escalated",
		zap.String("tenant_id", entry.TenantID),
		zap.String("ticket_id", entry.TicketID),
		zap.Int("level", entry.EscalationLevel),
		zap.String("reason", reason))
	m.publish(ctx, events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: entry.TicketID,
		Payload: events.TicketEscalatedPayload{
			TenantID:        entry.TenantID,
			EscalationLevel: entry.EscalationLevel,
			Score:           entry.Score,
			Reason:          reason,
		},
	})
	return nil
}

// MoveToPosition places an entry at the given 1-based position, shifting
// the entries between its old and new slots to keep contiguity.
func (m *Manager) MoveToPosition(ctx context.Context, entryID string, position int) error {
	entry, err := m.store.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperrors.NewInvalidQueueState("queue entry not found", map[string]any{"entry_id": entryID})
	}

	lock := m.tenantLock(entry.TenantID)
	lock.Lock()
	defer lock.Unlock()

	active, err := m.activeContiguous(ctx, entry.TenantID)
	if err != nil {
		return err
	}
	var current *domain.PriorityQueueEntry
	for i := range active {
		if active[i].ID == entryID {
			current = &active[i]
			break
		}
	}
	if current == nil {
		return apperrors.NewInvalidQueueState("cannot move inactive entry", map[string]any{"entry_id": entryID})
	}
	if position < 1 || position > len(active) {
		return apperrors.NewInvalidQueueState("position out of range", map[string]any{
			"position": position,
			"size":     len(active),
		})
	}
	old := current.Position
	if old == position {
		return nil
	}

	now := m.clk.Now()
	for i := range active {
		p := active[i].Position
		switch {
		case active[i].ID == entryID:
			active[i].Position = position
		case old < position && p > old && p <= position:
			active[i].Position = p - 1
		case old > position && p >= position && p < old:
			active[i].Position = p + 1
		default:
			continue
		}
		active[i].UpdatedAt = now
	}
	return m.store.UpdateAll(ctx, active)
}

// Remove deactivates an entry and shifts everything behind it down one.
func (m *Manager) Remove(ctx context.Context, entryID string) error {
	entry, err := m.store.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperrors.NewInvalidQueueState("queue entry not found", map[string]any{"entry_id": entryID})
	}

	lock := m.tenantLock(entry.TenantID)
	lock.Lock()
	defer lock.Unlock()

	active, err := m.activeContiguous(ctx, entry.TenantID)
	if err != nil {
		return err
	}
	now := m.clk.Now()
	removedPos := 0
	updated := make([]domain.PriorityQueueEntry, 0, len(active))
	for i := range active {
		if active[i].ID == entryID {
			removedPos = active[i].Position
			active[i].IsActive = false
			active[i].UpdatedAt = now
			updated = append(updated, active[i])
			break
		}
	}
	if removedPos == 0 {
		return apperrors.NewInvalidQueueState("cannot remove inactive entry", map[string]any{"entry_id": entryID})
	}
	for i := range active {
		if active[i].IsActive && active[i].Position > removedPos {
			active[i].Position--
			active[i].UpdatedAt = now
			updated = append(updated, active[i])
		}
	}
	return m.store.UpdateAll(ctx, updated)
}

// RemoveTicket deactivates the active entry of a ticket, if any.
func (m *Manager) RemoveTicket(ctx context.Context, tenantID, ticketID string) error {
	entry, err := m.store.GetActiveByTicket(ctx, tenantID, ticketID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	return m.Remove(ctx, entry.ID)
}

// ReorderByScore re-sorts the tenant's active entries by descending
// score, oldest-first on ties, and reassigns positions 1..N.
func (m *Manager) ReorderByScore(ctx context.Context, tenantID string) error {
	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()
	return m.reorderLocked(ctx, tenantID)
}

func (m *Manager) reorderLocked(ctx context.Context, tenantID string) error {
	active, err := m.store.ListActive(ctx, tenantID)
	if err != nil {
		return err
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Score != active[j].Score {
			return active[i].Score > active[j].Score
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	now := m.clk.Now()
	for i := range active {
		if active[i].Position != i+1 {
			active[i].Position = i + 1
			active[i].UpdatedAt = now
		}
	}
	return m.store.UpdateAll(ctx, active)
}

// activeContiguous lists a tenant's active entries, self-healing the
// contiguity invariant with a forced reorder when it is found broken.
func (m *Manager) activeContiguous(ctx context.Context, tenantID string) ([]domain.PriorityQueueEntry, error) {
	active, err := m.store.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if contiguous(active) {
		return active, nil
	}
	m.logger.Warn("queue positions not contiguous, forcing reorder", zap.String("tenant_id", tenantID))
	if err := m.reorderLocked(ctx, tenantID); err != nil {
		return nil, err
	}
	return m.store.ListActive(ctx, tenantID)
}

func contiguous(entries []domain.PriorityQueueEntry) bool {
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.Position < 1 || e.Position > len(entries) || seen[e.Position] {
			return false
		}
		seen[e.Position] = true
	}
	return true
}

// RefreshScore recomputes the score of a ticket's active entry. It does
// not reorder; reordering is an explicit, separate operation.
func (m *Manager) RefreshScore(ctx context.Context, ticket *domain.Ticket) error {
	lock := m.tenantLock(ticket.TenantID)
	lock.Lock()
	defer lock.Unlock()

	entry, err := m.store.GetActiveByTicket(ctx, ticket.TenantID, ticket.ID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	score, _, err := m.scoreTicket(ctx, ticket)
	if err != nil {
		return err
	}
	entry.Score = score
	entry.UpdatedAt = m.clk.Now()
	return m.store.Update(ctx, entry)
}

// SetDeadline creates or updates the SLA deadline on a ticket's queue
// entry. Implements the workflow engine's due-date port.
func (m *Manager) SetDeadline(ctx context.Context, tenantID, ticketID string, deadline time.Time) error {
	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	entry, err := m.store.GetActiveByTicket(ctx, tenantID, ticketID)
	if err != nil {
		return err
	}
	now := m.clk.Now()
	if entry != nil {
		entry.SLADeadline = &deadline
		entry.UpdatedAt = now
		return m.store.Update(ctx, entry)
	}

	ticket, err := m.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	active, err := m.activeContiguous(ctx, tenantID)
	if err != nil {
		return err
	}
	score := m.scorer.Score(ticket, scoring.DeadlineInfo{ResolutionDeadline: &deadline})
	return m.store.Insert(ctx, &domain.PriorityQueueEntry{
		TenantID:    tenantID,
		TicketID:    ticketID,
		Position:    len(active) + 1,
		Score:       score,
		SLADeadline: &deadline,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Snapshot returns the tenant's queue in position order.
func (m *Manager) Snapshot(ctx context.Context, tenantID string) ([]SnapshotEntry, error) {
	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	active, err := m.store.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Position < active[j].Position })

	now := m.clk.Now()
	out := make([]SnapshotEntry, 0, len(active))
	for _, entry := range active {
		out = append(out, SnapshotEntry{
			TicketID:        entry.TicketID,
			Position:        entry.Position,
			Score:           entry.Score,
			EscalationLevel: entry.EscalationLevel,
			SLAStatus:       m.slaStatus(entry, now),
		})
	}
	return out, nil
}

func (m *Manager) slaStatus(entry domain.PriorityQueueEntry, now time.Time) string {
	if entry.SLADeadline == nil {
		return "none"
	}
	if now.After(*entry.SLADeadline) {
		return "breached"
	}
	if m.approachingDeadline(entry, now) {
		return "warning"
	}
	return "ok"
}

func (m *Manager) approachingDeadline(entry domain.PriorityQueueEntry, now time.Time) bool {
	total := entry.SLADeadline.Sub(entry.CreatedAt)
	if total <= 0 {
		return true
	}
	elapsed := now.Sub(entry.CreatedAt)
	return float64(elapsed)/float64(total)*100 >= float64(m.warningPct)
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if m.dispatcher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.clk.Now()
	}
	_ = m.dispatcher.Publish(ctx, event)
}
