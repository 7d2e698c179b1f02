package domain

import (
	"sort"
	"time"
)

// GuardKind identifies one of the closed set of guard condition types.
type GuardKind string

const (
	GuardTicketAgeHours  GuardKind = "ticket_age_hours"
	GuardTicketPriority  GuardKind = "ticket_priority"
	GuardTimeWorkedHours GuardKind = "time_worked_hours"
	GuardActorRole       GuardKind = "actor_role"
	GuardBusinessHours   GuardKind = "business_hours"
)

// CompareOp enumerates guard comparison operators.
type CompareOp string

const (
	OpEq    CompareOp = "eq"
	OpNe    CompareOp = "ne"
	OpGt    CompareOp = "gt"
	OpGte   CompareOp = "gte"
	OpLt    CompareOp = "lt"
	OpLte   CompareOp = "lte"
	OpIn    CompareOp = "in"
	OpNotIn CompareOp = "not_in"
)

// GuardCondition is a typed guard operand set. Kind selects which fields
// are meaningful; the engine matches kinds exhaustively.
type GuardCondition struct {
	Kind       GuardKind
	Op         CompareOp
	Hours      float64          // ticket_age_hours, time_worked_hours
	Priority   TicketPriority   // ticket_priority with scalar ops
	Priorities []TicketPriority // ticket_priority with in/not_in
	Role       string           // actor_role
	Timezone   string           // business_hours
}

// ActionKind identifies one of the closed set of automated action types.
type ActionKind string

const (
	ActionSendNotification ActionKind = "send_notification"
	ActionAddComment       ActionKind = "add_comment"
	ActionUpdatePriority   ActionKind = "update_priority"
	ActionSetDueDate       ActionKind = "set_due_date"
	ActionAssignUser       ActionKind = "assign_user"
)

// AssignStrategy selects how assign_user picks from its candidate list.
type AssignStrategy string

const (
	AssignRoundRobin  AssignStrategy = "round_robin"
	AssignLoadBalance AssignStrategy = "load_balance"
)

// NotifyParams configures a send_notification action.
type NotifyParams struct {
	Event      string
	Recipients []string
}

// CommentParams configures an add_comment action. Body supports the
// placeholders {from}, {to}, {actor} and {ticket}.
type CommentParams struct {
	Body string
}

// AssignParams configures an assign_user action.
type AssignParams struct {
	UserIDs  []string
	Strategy AssignStrategy
}

// Action is a typed automated side effect attached to a transition.
// Kind selects which payload field applies.
type Action struct {
	Kind         ActionKind
	Notification *NotifyParams
	Comment      *CommentParams
	Priority     TicketPriority // update_priority
	DueHours     float64        // set_due_date: deadline = now + DueHours
	Assign       *AssignParams
}

// Transition is a single allowed edge in a workflow definition.
type Transition struct {
	ID              string
	WorkflowID      string
	FromStatus      TicketStatus
	ToStatus        TicketStatus
	RequiredRole    string // empty means any actor
	RequiresComment bool
	Guards          []GuardCondition
	Actions         []Action
	SortOrder       int
	IsActive        bool
}

// WorkflowDefinition is a named graph of allowed status transitions for
// one tenant. At most one definition per tenant is the default.
type WorkflowDefinition struct {
	ID              string
	TenantID        string
	Name            string
	IsDefault       bool
	IsActive        bool
	InitialStatus   TicketStatus
	AllowedStatuses []TicketStatus
	Transitions     []Transition
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Allows reports whether the status may appear as a transition endpoint.
func (d *WorkflowDefinition) Allows(status TicketStatus) bool {
	for _, s := range d.AllowedStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// TransitionsFrom returns the active transitions leaving a status,
// ordered by sort order.
func (d *WorkflowDefinition) TransitionsFrom(from TicketStatus) []Transition {
	var out []Transition
	for _, tr := range d.Transitions {
		if tr.IsActive && tr.FromStatus == from {
			out = append(out, tr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// FindTransition returns the first active transition matching the edge,
// or nil when the edge is undefined.
func (d *WorkflowDefinition) FindTransition(from, to TicketStatus) *Transition {
	for _, tr := range d.TransitionsFrom(from) {
		if tr.ToStatus == to {
			t := tr
			return &t
		}
	}
	return nil
}
