package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	TenantID    string
	ClientID    *string
	AssigneeID  *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, tenantID string, number int64) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	NextNumber(ctx context.Context, tenantID string) (int64, error)
	CountOpenAssigned(ctx context.Context, tenantID, userID string) (int, error)
	MostRecentAssignee(ctx context.Context, tenantID string, userIDs []string) (string, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, tenant_id, number, number_prefix, subject, details, status, priority,
       billable, client_id, client_importance, assignee_id, sla_policy_id, workflow_id,
       created_by, assigned_by, closed_by, time_worked_min, first_response_at, scheduled_at,
       created_at, updated_at, closed_at, archived_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, number, number_prefix, subject, details, status, priority,
            billable, client_id, client_importance, assignee_id, sla_policy_id, workflow_id,
            created_by, time_worked_min, scheduled_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.Number,
		ticket.NumberPrefix,
		ticket.Subject,
		ticket.Details,
		ticket.Status,
		ticket.Priority,
		ticket.Billable,
		ticket.ClientID,
		ticket.ClientImportance,
		ticket.AssigneeID,
		ticket.SLAPolicyID,
		ticket.WorkflowID,
		ticket.CreatedBy,
		ticket.TimeWorkedMin,
		ticket.ScheduledAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET subject=$1, details=$2, status=$3, priority=$4, billable=$5,
            client_importance=$6, assignee_id=$7, sla_policy_id=$8, workflow_id=$9,
            assigned_by=$10, closed_by=$11, time_worked_min=$12, first_response_at=$13,
            scheduled_at=$14, closed_at=$15, archived_at=$16, updated_at=NOW()
        WHERE id=$17 AND tenant_id=$18`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Subject,
		ticket.Details,
		ticket.Status,
		ticket.Priority,
		ticket.Billable,
		ticket.ClientImportance,
		ticket.AssigneeID,
		ticket.SLAPolicyID,
		ticket.WorkflowID,
		ticket.AssignedBy,
		ticket.ClosedBy,
		ticket.TimeWorkedMin,
		ticket.FirstResponseAt,
		ticket.ScheduledAt,
		ticket.ClosedAt,
		ticket.ArchivedAt,
		ticket.ID,
		ticket.TenantID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, tenantID string, number int64) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE tenant_id=$1 AND number=$2`, ticketColumns)
	return r.fetchSingle(ctx, query, tenantID, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.Number,
		&ticket.NumberPrefix,
		&ticket.Subject,
		&ticket.Details,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Billable,
		&ticket.ClientID,
		&ticket.ClientImportance,
		&ticket.AssigneeID,
		&ticket.SLAPolicyID,
		&ticket.WorkflowID,
		&ticket.CreatedBy,
		&ticket.AssignedBy,
		&ticket.ClosedBy,
		&ticket.TimeWorkedMin,
		&ticket.FirstResponseAt,
		&ticket.ScheduledAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.ArchivedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"tenant_id=$1"}
	args := []any{filter.TenantID}

	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		clauses = append(clauses, fmt.Sprintf("client_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(details) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TenantID,
			&ticket.Number,
			&ticket.NumberPrefix,
			&ticket.Subject,
			&ticket.Details,
			&ticket.Status,
			&ticket.Priority,
			&ticket.Billable,
			&ticket.ClientID,
			&ticket.ClientImportance,
			&ticket.AssigneeID,
			&ticket.SLAPolicyID,
			&ticket.WorkflowID,
			&ticket.CreatedBy,
			&ticket.AssignedBy,
			&ticket.ClosedBy,
			&ticket.TimeWorkedMin,
			&ticket.FirstResponseAt,
			&ticket.ScheduledAt,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.ClosedAt,
			&ticket.ArchivedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

// NextNumber allocates the next per-tenant ticket number atomically.
func (r *ticketRepository) NextNumber(ctx context.Context, tenantID string) (int64, error) {
	const query = `
        INSERT INTO ticket_sequences (tenant_id, value) VALUES ($1, 1)
        ON CONFLICT (tenant_id) DO UPDATE SET value = ticket_sequences.value + 1
        RETURNING value`
	var number int64
	if err := r.pool.QueryRow(ctx, query, tenantID).Scan(&number); err != nil {
		return 0, err
	}
	return number, nil
}

func (r *ticketRepository) CountOpenAssigned(ctx context.Context, tenantID, userID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE tenant_id=$1 AND assignee_id=$2 AND status NOT IN ('resolved','closed')`
	var count int
	if err := r.pool.QueryRow(ctx, query, tenantID, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MostRecentAssignee returns which of the listed users was assigned a
// ticket last, or "" when none of them has been.
func (r *ticketRepository) MostRecentAssignee(ctx context.Context, tenantID string, userIDs []string) (string, error) {
	const query = `
        SELECT assignee_id FROM tickets
        WHERE tenant_id=$1 AND assignee_id = ANY($2)
        ORDER BY updated_at DESC LIMIT 1`
	var assignee string
	err := r.pool.QueryRow(ctx, query, tenantID, userIDs).Scan(&assignee)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return assignee, nil
}
