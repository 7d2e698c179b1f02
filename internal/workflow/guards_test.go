package workflow

import (
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

func guardTicket(created time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:            "t-1",
		TenantID:      "acme",
		Priority:      domain.TicketPriorityHigh,
		Status:        domain.TicketStatusOpen,
		TimeWorkedMin: 90,
		CreatedAt:     created,
	}
}

func TestEvaluateGuard(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC) // a Wednesday
	gctx := GuardContext{
		Ticket: guardTicket(now.Add(-10 * time.Hour)),
		Actor:  domain.Actor{ID: "a-1", Roles: []string{domain.RoleAgent}},
		Now:    now,
	}

	cases := []struct {
		name string
		cond domain.GuardCondition
		want bool
	}{
		{
			"age gte met",
			domain.GuardCondition{Kind: domain.GuardTicketAgeHours, Op: domain.OpGte, Hours: 8},
			true,
		},
		{
			"age lt unmet",
			domain.GuardCondition{Kind: domain.GuardTicketAgeHours, Op: domain.OpLt, Hours: 8},
			false,
		},
		{
			"time worked gte",
			domain.GuardCondition{Kind: domain.GuardTimeWorkedHours, Op: domain.OpGte, Hours: 1.5},
			true,
		},
		{
			"time worked gt unmet",
			domain.GuardCondition{Kind: domain.GuardTimeWorkedHours, Op: domain.OpGt, Hours: 1.5},
			false,
		},
		{
			"priority eq",
			domain.GuardCondition{Kind: domain.GuardTicketPriority, Op: domain.OpEq, Priority: domain.TicketPriorityHigh},
			true,
		},
		{
			"priority rank comparison",
			domain.GuardCondition{Kind: domain.GuardTicketPriority, Op: domain.OpGte, Priority: domain.TicketPriorityMedium},
			true,
		},
		{
			"priority in set",
			domain.GuardCondition{Kind: domain.GuardTicketPriority, Op: domain.OpIn,
				Priorities: []domain.TicketPriority{domain.TicketPriorityHigh, domain.TicketPriorityCritical}},
			true,
		},
		{
			"priority not_in set",
			domain.GuardCondition{Kind: domain.GuardTicketPriority, Op: domain.OpNotIn,
				Priorities: []domain.TicketPriority{domain.TicketPriorityLow}},
			true,
		},
		{
			"priority not_in unmet",
			domain.GuardCondition{Kind: domain.GuardTicketPriority, Op: domain.OpNotIn,
				Priorities: []domain.TicketPriority{domain.TicketPriorityHigh}},
			false,
		},
		{
			"actor role held",
			domain.GuardCondition{Kind: domain.GuardActorRole, Op: domain.OpEq, Role: domain.RoleAgent},
			true,
		},
		{
			"actor role missing",
			domain.GuardCondition{Kind: domain.GuardActorRole, Op: domain.OpEq, Role: domain.RoleManager},
			false,
		},
		{
			"business hours midday UTC wednesday",
			domain.GuardCondition{Kind: domain.GuardBusinessHours, Timezone: "UTC"},
			true,
		},
		{
			"unknown kind blocks",
			domain.GuardCondition{Kind: domain.GuardKind("moon_phase")},
			false,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, reason := evaluateGuard(tc.cond, gctx)
			if got != tc.want {
				t.Fatalf("got %v (reason %q), want %v", got, reason, tc.want)
			}
			if !got && reason == "" {
				t.Fatal("blocked guard must carry a reason")
			}
		})
	}
}

func TestEvaluateGuard_BusinessHoursTimezoneOverride(t *testing.T) {
	t.Parallel()
	// 02:00 UTC Wednesday is outside 9-17 UTC but inside 9-17 in Auckland.
	now := time.Date(2024, 5, 8, 2, 0, 0, 0, time.UTC)
	gctx := GuardContext{Ticket: guardTicket(now), Actor: domain.Actor{}, Now: now}

	utc := domain.GuardCondition{Kind: domain.GuardBusinessHours, Timezone: "UTC"}
	if ok, _ := evaluateGuard(utc, gctx); ok {
		t.Fatal("02:00 UTC should be outside business hours")
	}
	auckland := domain.GuardCondition{Kind: domain.GuardBusinessHours, Timezone: "Pacific/Auckland"}
	if ok, reason := evaluateGuard(auckland, gctx); !ok {
		t.Fatalf("expected business hours in Auckland, blocked: %s", reason)
	}
}
