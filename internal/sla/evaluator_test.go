package sla

import (
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-core/internal/clock"
	"github.com/spec-kit/helpdesk-core/internal/domain"
)

func testPolicy() *domain.SLAPolicy {
	return &domain.SLAPolicy{
		ID:       "pol-1",
		TenantID: "acme",
		Targets: map[domain.TicketPriority]domain.SLATarget{
			domain.TicketPriorityCritical: {ResponseMinutes: 30, ResolutionMinutes: 240},
			domain.TicketPriorityHigh:     {ResponseMinutes: 60, ResolutionMinutes: 480},
			domain.TicketPriorityMedium:   {ResponseMinutes: 120, ResolutionMinutes: 960},
			domain.TicketPriorityLow:      {ResponseMinutes: 240, ResolutionMinutes: 2880},
		},
		Coverage:   domain.CoverageContinuous,
		WarningPct: 80,
		IsActive:   true,
	}
}

func testTicket(created time.Time, priority domain.TicketPriority) *domain.Ticket {
	return &domain.Ticket{
		ID:        "t-1",
		TenantID:  "acme",
		Priority:  priority,
		Status:    domain.TicketStatusOpen,
		CreatedAt: created,
	}
}

func TestDeadlines_PerPriorityBudget(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: created}
	eval := NewEvaluator(clk)
	policy := testPolicy()

	cases := []struct {
		priority       domain.TicketPriority
		wantResponse   time.Duration
		wantResolution time.Duration
	}{
		{domain.TicketPriorityCritical, 30 * time.Minute, 240 * time.Minute},
		{domain.TicketPriorityHigh, 60 * time.Minute, 480 * time.Minute},
		{domain.TicketPriorityMedium, 120 * time.Minute, 960 * time.Minute},
		{domain.TicketPriorityLow, 240 * time.Minute, 2880 * time.Minute},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.priority), func(t *testing.T) {
			t.Parallel()
			ticket := testTicket(created, tc.priority)
			response, err := eval.ResponseDeadline(ticket, policy)
			if err != nil {
				t.Fatalf("ResponseDeadline: %v", err)
			}
			if !response.Equal(created.Add(tc.wantResponse)) {
				t.Fatalf("response deadline = %v, want %v", response, created.Add(tc.wantResponse))
			}
			resolution, err := eval.ResolutionDeadline(ticket, policy)
			if err != nil {
				t.Fatalf("ResolutionDeadline: %v", err)
			}
			if !resolution.Equal(created.Add(tc.wantResolution)) {
				t.Fatalf("resolution deadline = %v, want %v", resolution, created.Add(tc.wantResolution))
			}
		})
	}
}

func TestIsBreached_Resolution(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	policy := testPolicy()

	t.Run("unresolved past deadline", func(t *testing.T) {
		t.Parallel()
		clk := &clock.Fixed{Instant: created.Add(5 * time.Hour)}
		eval := NewEvaluator(clk)
		ticket := testTicket(created, domain.TicketPriorityCritical)
		breached, err := eval.IsBreached(ticket, policy, KindResolution, nil)
		if err != nil {
			t.Fatalf("IsBreached: %v", err)
		}
		if !breached {
			t.Fatal("expected breach 5h after creation with a 4h budget")
		}
	})

	t.Run("resolved in time stays unbreached forever", func(t *testing.T) {
		t.Parallel()
		clk := &clock.Fixed{Instant: created.Add(100 * time.Hour)}
		eval := NewEvaluator(clk)
		ticket := testTicket(created, domain.TicketPriorityCritical)
		closedAt := created.Add(2 * time.Hour)
		ticket.ClosedAt = &closedAt
		ticket.Status = domain.TicketStatusResolved
		breached, err := eval.IsBreached(ticket, policy, KindResolution, nil)
		if err != nil {
			t.Fatalf("IsBreached: %v", err)
		}
		if breached {
			t.Fatal("resolved before deadline must not breach")
		}
	})

	t.Run("asOf overrides the clock", func(t *testing.T) {
		t.Parallel()
		clk := &clock.Fixed{Instant: created}
		eval := NewEvaluator(clk)
		ticket := testTicket(created, domain.TicketPriorityCritical)
		asOf := created.Add(10 * time.Hour)
		breached, err := eval.IsBreached(ticket, policy, KindResolution, &asOf)
		if err != nil {
			t.Fatalf("IsBreached: %v", err)
		}
		if !breached {
			t.Fatal("expected breach at the asOf instant")
		}
	})
}

func TestIsBreached_ResponseSuppressedAfterSilentClose(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	policy := testPolicy()
	clk := &clock.Fixed{Instant: created.Add(48 * time.Hour)}
	eval := NewEvaluator(clk)

	ticket := testTicket(created, domain.TicketPriorityCritical)
	closedAt := created.Add(10 * time.Minute)
	ticket.ClosedAt = &closedAt
	ticket.Status = domain.TicketStatusClosed

	breached, err := eval.IsBreached(ticket, policy, KindResponse, nil)
	if err != nil {
		t.Fatalf("IsBreached: %v", err)
	}
	if breached {
		t.Fatal("ticket closed without a reply must not count as response breach")
	}
}

func TestIsBreached_ResponseUsesFirstResponseTimestamp(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	policy := testPolicy()
	clk := &clock.Fixed{Instant: created}
	eval := NewEvaluator(clk)

	ticket := testTicket(created, domain.TicketPriorityCritical)
	late := created.Add(2 * time.Hour) // budget is 30 minutes
	ticket.FirstResponseAt = &late

	breached, err := eval.IsBreached(ticket, policy, KindResponse, nil)
	if err != nil {
		t.Fatalf("IsBreached: %v", err)
	}
	if !breached {
		t.Fatal("late first response must breach regardless of current time")
	}
}

func TestEvaluate_Summary(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	policy := testPolicy()
	// 85% of the 4h critical resolution window elapsed.
	clk := &clock.Fixed{Instant: created.Add(204 * time.Minute)}
	eval := NewEvaluator(clk)
	ticket := testTicket(created, domain.TicketPriorityCritical)

	got, err := eval.Evaluate(ticket, policy)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !got.ResponseBreached {
		t.Error("response should be breached 3.4h in with a 30m budget")
	}
	if got.ResolutionBreached {
		t.Error("resolution should not be breached before the 4h mark")
	}
	if !got.ApproachingBreach {
		t.Error("85% elapsed should cross the 80% warning threshold")
	}
	if !got.ResolutionDeadline.Equal(created.Add(4 * time.Hour)) {
		t.Errorf("resolution deadline = %v", got.ResolutionDeadline)
	}
}
