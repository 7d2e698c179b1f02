package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/scoring"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

type memDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *memDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *memDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *memDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type memStore struct {
	mu      sync.Mutex
	seq     int
	entries map[string]*domain.PriorityQueueEntry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*domain.PriorityQueueEntry)}
}

func (s *memStore) ListActive(_ context.Context, tenantID string) ([]domain.PriorityQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PriorityQueueEntry
	for _, e := range s.entries {
		if e.TenantID == tenantID && e.IsActive {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.PriorityQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) GetActiveByTicket(_ context.Context, tenantID, ticketID string) (*domain.PriorityQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.TenantID == tenantID && e.TicketID == ticketID && e.IsActive {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) Insert(_ context.Context, entry *domain.PriorityQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		s.seq++
		entry.ID = fmt.Sprintf("q-%d", s.seq)
	}
	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

func (s *memStore) Update(_ context.Context, entry *domain.PriorityQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

func (s *memStore) UpdateAll(ctx context.Context, entries []domain.PriorityQueueEntry) error {
	for i := range entries {
		if err := s.Update(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) ActiveTenants(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range s.entries {
		if e.IsActive && !seen[e.TenantID] {
			seen[e.TenantID] = true
			out = append(out, e.TenantID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// setPosition corrupts a stored position directly, bypassing the manager.
func (s *memStore) setPosition(id string, pos int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id].Position = pos
}

type memTickets struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	fail    map[string]error
}

func (s *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[id]; ok {
		return nil, err
	}
	t, ok := s.tickets[id]
	if !ok {
		return nil, errors.New("ticket not found")
	}
	cp := *t
	return &cp, nil
}

func testTicket(id string, priority domain.TicketPriority, created time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:        id,
		TenantID:  "acme",
		Priority:  priority,
		Status:    domain.TicketStatusOpen,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newTestManager(t *testing.T, clk *clock.Fixed) (*Manager, *memStore, *memTickets) {
	t.Helper()
	store := newMemStore()
	tickets := &memTickets{tickets: map[string]*domain.Ticket{}, fail: map[string]error{}}
	manager := NewManager(Dependencies{
		Store:   store,
		Tickets: tickets,
		Scorer:  scoring.NewScorer(clk),
		Clock:   clk,
	})
	return manager, store, tickets
}

func mustPositions(t *testing.T, store *memStore, tenantID string, wantTickets []string) {
	t.Helper()
	active, err := store.ListActive(context.Background(), tenantID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != len(wantTickets) {
		t.Fatalf("got %d active entries, want %d", len(active), len(wantTickets))
	}
	for i, entry := range active {
		if entry.Position != i+1 {
			t.Fatalf("positions not contiguous: entry %d holds position %d", i, entry.Position)
		}
		if entry.TicketID != wantTickets[i] {
			t.Fatalf("position %d holds ticket %s, want %s", i+1, entry.TicketID, wantTickets[i])
		}
	}
}

func TestManagerAdd(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, _ := newTestManager(t, clk)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ticket := testTicket(fmt.Sprintf("t-%d", i), domain.TicketPriorityMedium, now)
		entry, err := manager.Add(ctx, ticket, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if entry.Position != i {
			t.Fatalf("ticket %d enqueued at position %d, want %d", i, entry.Position, i)
		}
	}
	mustPositions(t, store, "acme", []string{"t-1", "t-2", "t-3"})

	// Re-adding a queued ticket returns its existing entry unchanged.
	again, err := manager.Add(ctx, testTicket("t-2", domain.TicketPriorityMedium, now), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.Position != 2 {
		t.Fatalf("re-add moved ticket to position %d", again.Position)
	}
	mustPositions(t, store, "acme", []string{"t-1", "t-2", "t-3"})
}

func TestManagerMoveToPosition(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, _ := newTestManager(t, clk)
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		entry, err := manager.Add(ctx, testTicket(fmt.Sprintf("t-%d", i), domain.TicketPriorityMedium, now), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, entry.ID)
	}

	// Move the entry at position 4 up to position 2.
	if err := manager.MoveToPosition(ctx, ids[3], 2); err != nil {
		t.Fatal(err)
	}
	mustPositions(t, store, "acme", []string{"t-1", "t-4", "t-2", "t-3", "t-5"})

	// Move it back down to position 4.
	if err := manager.MoveToPosition(ctx, ids[3], 4); err != nil {
		t.Fatal(err)
	}
	mustPositions(t, store, "acme", []string{"t-1", "t-2", "t-3", "t-4", "t-5"})

	// Same position is a no-op.
	if err := manager.MoveToPosition(ctx, ids[0], 1); err != nil {
		t.Fatal(err)
	}
	mustPositions(t, store, "acme", []string{"t-1", "t-2", "t-3", "t-4", "t-5"})
}

func TestManagerMoveToPosition_Invalid(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, _, _ := newTestManager(t, clk)
	ctx := context.Background()

	entry, err := manager.Add(ctx, testTicket("t-1", domain.TicketPriorityMedium, now), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		entryID  string
		position int
	}{
		{"position zero", entry.ID, 0},
		{"position past tail", entry.ID, 2},
		{"unknown entry", "q-missing", 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := manager.MoveToPosition(ctx, tc.entryID, tc.position)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := apperrors.ToDomainError(err).Code; code != "INVALID_QUEUE_STATE" {
				t.Fatalf("got code %s, want INVALID_QUEUE_STATE", code)
			}
		})
	}

	if err := manager.Remove(ctx, entry.ID); err != nil {
		t.Fatal(err)
	}
	if err := manager.MoveToPosition(ctx, entry.ID, 1); err == nil {
		t.Fatal("moving an inactive entry must fail")
	}
}

func TestManagerEscalate(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, _ := newTestManager(t, clk)
	ctx := context.Background()

	// Low before high: the low-priority ticket sits at the tail.
	if _, err := manager.Add(ctx, testTicket("t-high", domain.TicketPriorityHigh, now), nil, nil); err != nil {
		t.Fatal(err)
	}
	lowEntry, err := manager.Add(ctx, testTicket("t-low", domain.TicketPriorityLow, now), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := manager.ReorderByScore(ctx, "acme"); err != nil {
		t.Fatal(err)
	}
	mustPositions(t, store, "acme", []string{"t-high", "t-low"})

	// Low starts at 1.0; three escalations compound to 3.375, past
	// high's 3.0.
	for i := 0; i < 3; i++ {
		if err := manager.Escalate(ctx, lowEntry.ID, "sla_breach"); err != nil {
			t.Fatal(err)
		}
	}
	updated, err := store.GetByID(ctx, lowEntry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.EscalationLevel != 3 {
		t.Fatalf("escalation level = %d, want 3", updated.EscalationLevel)
	}
	if updated.EscalatedAt == nil || !updated.EscalatedAt.Equal(now) {
		t.Fatal("escalated_at not stamped")
	}
	if updated.Score < 3.37 || updated.Score > 3.38 {
		t.Fatalf("score = %v, want ~3.375", updated.Score)
	}
	mustPositions(t, store, "acme", []string{"t-low", "t-high"})

	// Escalation never demotes: the untouched entry moved down, the
	// escalated one moved up.
	if updated.Position != 1 {
		t.Fatalf("escalated entry at position %d, want 1", updated.Position)
	}
}

func TestManagerEscalate_InactiveEntry(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, _, _ := newTestManager(t, clk)
	ctx := context.Background()

	entry, err := manager.Add(ctx, testTicket("t-1", domain.TicketPriorityMedium, now), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := manager.Remove(ctx, entry.ID); err != nil {
		t.Fatal(err)
	}
	err = manager.Escalate(ctx, entry.ID, "manual")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apperrors.ToDomainError(err).Code; code != "INVALID_QUEUE_STATE" {
		t.Fatalf("got code %s, want INVALID_QUEUE_STATE", code)
	}
}

func TestManagerRemove(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, _ := newTestManager(t, clk)
	ctx := context.Background()

	ids := make([]string, 0, 4)
	for i := 1; i <= 4; i++ {
		entry, err := manager.Add(ctx, testTicket(fmt.Sprintf("t-%d", i), domain.TicketPriorityMedium, now), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, entry.ID)
	}
	if err := manager.Remove(ctx, ids[1]); err != nil {
		t.Fatal(err)
	}
	mustPositions(t, store, "acme", []string{"t-1", "t-3", "t-4"})

	removed, err := store.GetByID(ctx, ids[1])
	if err != nil {
		t.Fatal(err)
	}
	if removed.IsActive {
		t.Fatal("removed entry still active")
	}
}

func TestManagerReorderByScore(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, _ := newTestManager(t, clk)
	ctx := context.Background()

	// Same medium score for t-2 and t-3; t-2 is older and must win the tie.
	if _, err := manager.Add(ctx, testTicket("t-1", domain.TicketPriorityLow, now), nil, nil); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	if _, err := manager.Add(ctx, testTicket("t-2", domain.TicketPriorityMedium, now.Add(time.Minute)), nil, nil); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	if _, err := manager.Add(ctx, testTicket("t-3", domain.TicketPriorityMedium, now.Add(2*time.Minute)), nil, nil); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	if _, err := manager.Add(ctx, testTicket("t-4", domain.TicketPriorityCritical, now.Add(3*time.Minute)), nil, nil); err != nil {
		t.Fatal(err)
	}

	want := []string{"t-4", "t-2", "t-3", "t-1"}
	if err := manager.ReorderByScore(ctx, "acme"); err != nil {
		t.Fatal(err)
	}
	mustPositions(t, store, "acme", want)

	// Reordering an already ordered queue changes nothing.
	if err := manager.ReorderByScore(ctx, "acme"); err != nil {
		t.Fatal(err)
	}
	mustPositions(t, store, "acme", want)
}

func TestManagerSelfHealsContiguity(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, _ := newTestManager(t, clk)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 1; i <= 3; i++ {
		entry, err := manager.Add(ctx, testTicket(fmt.Sprintf("t-%d", i), domain.TicketPriorityMedium, now), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, entry.ID)
	}

	// Corrupt the invariant behind the manager's back.
	store.setPosition(ids[2], 9)

	if err := manager.MoveToPosition(ctx, ids[0], 3); err != nil {
		t.Fatal(err)
	}
	active, err := store.ListActive(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if !contiguous(active) {
		t.Fatal("positions still broken after self-heal")
	}
	for _, entry := range active {
		if entry.ID == ids[0] && entry.Position != 3 {
			t.Fatalf("moved entry at position %d, want 3", entry.Position)
		}
	}
}

func TestShouldEscalate(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	deadline := now.Add(-time.Minute)
	futureDeadline := now.Add(time.Hour)
	assignee := "agent-1"

	cases := []struct {
		name     string
		entry    domain.PriorityQueueEntry
		ticket   domain.Ticket
		want     bool
		wantKind domain.EscalationRuleKind
	}{
		{
			"sla breach past deadline",
			domain.PriorityQueueEntry{SLADeadline: &deadline,
				Rules: []domain.EscalationRule{{Kind: domain.EscalateSLABreach}}},
			domain.Ticket{CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now},
			true, domain.EscalateSLABreach,
		},
		{
			"sla breach before deadline",
			domain.PriorityQueueEntry{SLADeadline: &futureDeadline,
				Rules: []domain.EscalationRule{{Kind: domain.EscalateSLABreach}}},
			domain.Ticket{CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now},
			false, "",
		},
		{
			"stale since update",
			domain.PriorityQueueEntry{Rules: []domain.EscalationRule{{Kind: domain.EscalateTimeSinceUpdate, Hours: 4}}},
			domain.Ticket{CreatedAt: now.Add(-10 * time.Hour), UpdatedAt: now.Add(-5 * time.Hour)},
			true, domain.EscalateTimeSinceUpdate,
		},
		{
			"recently updated",
			domain.PriorityQueueEntry{Rules: []domain.EscalationRule{{Kind: domain.EscalateTimeSinceUpdate, Hours: 4}}},
			domain.Ticket{CreatedAt: now.Add(-10 * time.Hour), UpdatedAt: now.Add(-time.Hour)},
			false, "",
		},
		{
			"critical aged past threshold",
			domain.PriorityQueueEntry{Rules: []domain.EscalationRule{{
				Kind: domain.EscalatePriorityAge, Hours: 2,
				Priorities: []domain.TicketPriority{domain.TicketPriorityCritical}}}},
			domain.Ticket{Priority: domain.TicketPriorityCritical, CreatedAt: now.Add(-3 * time.Hour), UpdatedAt: now},
			true, domain.EscalatePriorityAge,
		},
		{
			"aged but priority not listed",
			domain.PriorityQueueEntry{Rules: []domain.EscalationRule{{
				Kind: domain.EscalatePriorityAge, Hours: 2,
				Priorities: []domain.TicketPriority{domain.TicketPriorityCritical}}}},
			domain.Ticket{Priority: domain.TicketPriorityLow, CreatedAt: now.Add(-3 * time.Hour), UpdatedAt: now},
			false, "",
		},
		{
			"unassigned past threshold",
			domain.PriorityQueueEntry{Rules: []domain.EscalationRule{{Kind: domain.EscalateNoAssignment, Hours: 1}}},
			domain.Ticket{CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now},
			true, domain.EscalateNoAssignment,
		},
		{
			"assigned",
			domain.PriorityQueueEntry{Rules: []domain.EscalationRule{{Kind: domain.EscalateNoAssignment, Hours: 1}}},
			domain.Ticket{AssigneeID: &assignee, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now},
			false, "",
		},
		{
			"no rules",
			domain.PriorityQueueEntry{},
			domain.Ticket{CreatedAt: now.Add(-100 * time.Hour), UpdatedAt: now.Add(-100 * time.Hour)},
			false, "",
		},
		{
			"first firing rule wins",
			domain.PriorityQueueEntry{Rules: []domain.EscalationRule{
				{Kind: domain.EscalateSLABreach},
				{Kind: domain.EscalateNoAssignment, Hours: 1},
			}},
			domain.Ticket{CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now},
			true, domain.EscalateNoAssignment,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, kind := ShouldEscalate(&tc.entry, &tc.ticket, now)
			if got != tc.want || kind != tc.wantKind {
				t.Fatalf("got (%v, %q), want (%v, %q)", got, kind, tc.want, tc.wantKind)
			}
		})
	}
}

func TestRunEscalationSweep(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, tickets := newTestManager(t, clk)
	ctx := context.Background()

	staleRule := []domain.EscalationRule{{Kind: domain.EscalateTimeSinceUpdate, Hours: 4}}
	created := now.Add(-8 * time.Hour)

	for _, id := range []string{"t-1", "t-2", "t-3"} {
		ticket := testTicket(id, domain.TicketPriorityMedium, created)
		tickets.tickets[id] = ticket
		if _, err := manager.Add(ctx, ticket, staleRule, nil); err != nil {
			t.Fatal(err)
		}
	}
	// t-2 cannot be loaded; its failure must not stop the sweep.
	tickets.fail["t-2"] = errors.New("storage offline")

	report, err := manager.RunEscalationSweep(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if report.Checked != 3 || report.Escalated != 2 || report.Failures != 1 {
		t.Fatalf("report = %+v, want checked 3, escalated 2, failures 1", report)
	}

	active, err := store.ListActive(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range active {
		wantLevel := 1
		if entry.TicketID == "t-2" {
			wantLevel = 0
		}
		if entry.EscalationLevel != wantLevel {
			t.Fatalf("ticket %s at level %d, want %d", entry.TicketID, entry.EscalationLevel, wantLevel)
		}
	}

	// A second sweep inside the cooldown escalates nothing.
	report, err = manager.RunEscalationSweep(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if report.Escalated != 0 {
		t.Fatalf("cooldown ignored, escalated %d entries", report.Escalated)
	}
}

func TestManagerAddSelfHealsContiguity(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, _ := newTestManager(t, clk)
	ctx := context.Background()

	first, err := manager.Add(ctx, testTicket("t-1", domain.TicketPriorityMedium, now), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	if _, err := manager.Add(ctx, testTicket("t-2", domain.TicketPriorityMedium, now.Add(time.Minute)), nil, nil); err != nil {
		t.Fatal(err)
	}

	// Both entries now claim position 2 behind the manager's back. The
	// next add must heal the queue instead of minting position 3 on top
	// of a broken layout.
	store.setPosition(first.ID, 2)

	entry, err := manager.Add(ctx, testTicket("t-3", domain.TicketPriorityMedium, now.Add(time.Minute)), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Position != 3 {
		t.Fatalf("new entry at position %d, want 3", entry.Position)
	}
	mustPositions(t, store, "acme", []string{"t-1", "t-2", "t-3"})
}

func TestRunEscalationSweepPublishesWarnings(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	store := newMemStore()
	tickets := &memTickets{tickets: map[string]*domain.Ticket{}, fail: map[string]error{}}
	dispatcher := &memDispatcher{}
	manager := NewManager(Dependencies{
		Store:      store,
		Tickets:    tickets,
		Scorer:     scoring.NewScorer(clk),
		Dispatcher: dispatcher,
		Clock:      clk,
	})
	ctx := context.Background()

	breached := now.Add(-time.Hour)
	soon := now.Add(time.Hour)      // 90% of the window elapsed
	far := now.Add(100 * time.Hour) // barely started

	entries := []domain.PriorityQueueEntry{
		{ID: "q-warn", TenantID: "acme", TicketID: "t-warn", Position: 1, IsActive: true,
			SLADeadline: &soon, CreatedAt: now.Add(-9 * time.Hour), UpdatedAt: now},
		{ID: "q-far", TenantID: "acme", TicketID: "t-far", Position: 2, IsActive: true,
			SLADeadline: &far, CreatedAt: now.Add(-time.Hour), UpdatedAt: now},
		{ID: "q-breach", TenantID: "acme", TicketID: "t-breach", Position: 3, IsActive: true,
			SLADeadline: &breached, CreatedAt: now.Add(-9 * time.Hour), UpdatedAt: now,
			Rules: []domain.EscalationRule{{Kind: domain.EscalateSLABreach}}},
	}
	for i := range entries {
		tickets.tickets[entries[i].TicketID] = testTicket(entries[i].TicketID, domain.TicketPriorityMedium, entries[i].CreatedAt)
		if err := store.Insert(ctx, &entries[i]); err != nil {
			t.Fatal(err)
		}
	}

	report, err := manager.RunEscalationSweep(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if report.Escalated != 1 || report.Warned != 1 {
		t.Fatalf("report = %+v, want escalated 1, warned 1", report)
	}

	warnings := dispatcher.byType(events.EventSLAWarning)
	if len(warnings) != 1 || warnings[0].TicketID != "t-warn" {
		t.Fatalf("warnings = %+v, want one for t-warn", warnings)
	}
	payload, ok := warnings[0].Payload.(events.SLAPayload)
	if !ok || payload.TenantID != "acme" || !payload.Deadline.Equal(soon) {
		t.Fatalf("warning payload = %+v", warnings[0].Payload)
	}
	if breaches := dispatcher.byType(events.EventSLABreached); len(breaches) != 1 || breaches[0].TicketID != "t-breach" {
		t.Fatalf("breaches = %+v, want one for t-breach", breaches)
	}

	// A second sweep inside the cooldown stays quiet.
	report, err = manager.RunEscalationSweep(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if report.Warned != 0 {
		t.Fatalf("cooldown ignored, warned %d entries", report.Warned)
	}
	if warnings := dispatcher.byType(events.EventSLAWarning); len(warnings) != 1 {
		t.Fatalf("warning published again inside cooldown: %d events", len(warnings))
	}
}

func TestManagerSnapshot(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, _ := newTestManager(t, clk)
	ctx := context.Background()

	past := now.Add(-time.Hour)
	soon := now.Add(time.Hour)      // 90% of the window elapsed
	far := now.Add(100 * time.Hour) // barely started

	entries := []domain.PriorityQueueEntry{
		{ID: "q-a", TenantID: "acme", TicketID: "t-a", Position: 1, Score: 9, IsActive: true,
			SLADeadline: &past, CreatedAt: now.Add(-9 * time.Hour), UpdatedAt: now},
		{ID: "q-b", TenantID: "acme", TicketID: "t-b", Position: 2, Score: 5, EscalationLevel: 2, IsActive: true,
			SLADeadline: &soon, CreatedAt: now.Add(-9 * time.Hour), UpdatedAt: now},
		{ID: "q-c", TenantID: "acme", TicketID: "t-c", Position: 3, Score: 3, IsActive: true,
			SLADeadline: &far, CreatedAt: now.Add(-time.Hour), UpdatedAt: now},
		{ID: "q-d", TenantID: "acme", TicketID: "t-d", Position: 4, Score: 1, IsActive: true,
			CreatedAt: now, UpdatedAt: now},
	}
	for i := range entries {
		if err := store.Insert(ctx, &entries[i]); err != nil {
			t.Fatal(err)
		}
	}

	snapshot, err := manager.Snapshot(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	want := []SnapshotEntry{
		{TicketID: "t-a", Position: 1, Score: 9, SLAStatus: "breached"},
		{TicketID: "t-b", Position: 2, Score: 5, EscalationLevel: 2, SLAStatus: "warning"},
		{TicketID: "t-c", Position: 3, Score: 3, SLAStatus: "ok"},
		{TicketID: "t-d", Position: 4, Score: 1, SLAStatus: "none"},
	}
	if len(snapshot) != len(want) {
		t.Fatalf("got %d snapshot entries, want %d", len(snapshot), len(want))
	}
	for i, got := range snapshot {
		if got != want[i] {
			t.Fatalf("snapshot[%d] = %+v, want %+v", i, got, want[i])
		}
	}
}

func TestManagerSetDeadline(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: now}
	manager, store, tickets := newTestManager(t, clk)
	ctx := context.Background()

	ticket := testTicket("t-1", domain.TicketPriorityHigh, now)
	tickets.tickets["t-1"] = ticket
	entry, err := manager.Add(ctx, ticket, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	deadline := now.Add(4 * time.Hour)
	if err := manager.SetDeadline(ctx, "acme", "t-1", deadline); err != nil {
		t.Fatal(err)
	}
	updated, err := store.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.SLADeadline == nil || !updated.SLADeadline.Equal(deadline) {
		t.Fatal("deadline not stored on existing entry")
	}

	// An unqueued ticket gets an entry created at the tail.
	other := testTicket("t-2", domain.TicketPriorityLow, now)
	tickets.tickets["t-2"] = other
	if err := manager.SetDeadline(ctx, "acme", "t-2", deadline); err != nil {
		t.Fatal(err)
	}
	createdEntry, err := store.GetActiveByTicket(ctx, "acme", "t-2")
	if err != nil {
		t.Fatal(err)
	}
	if createdEntry == nil || createdEntry.Position != 2 {
		t.Fatalf("expected new entry at position 2, got %+v", createdEntry)
	}
	if createdEntry.SLADeadline == nil || !createdEntry.SLADeadline.Equal(deadline) {
		t.Fatal("deadline not stored on created entry")
	}
}
