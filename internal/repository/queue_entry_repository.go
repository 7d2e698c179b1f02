package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// QueueEntryRepository persists priority queue entries. It satisfies the
// queue manager's store port.
type QueueEntryRepository interface {
	ListActive(ctx context.Context, tenantID string) ([]domain.PriorityQueueEntry, error)
	GetByID(ctx context.Context, id string) (*domain.PriorityQueueEntry, error)
	GetActiveByTicket(ctx context.Context, tenantID, ticketID string) (*domain.PriorityQueueEntry, error)
	Insert(ctx context.Context, entry *domain.PriorityQueueEntry) error
	Update(ctx context.Context, entry *domain.PriorityQueueEntry) error
	UpdateAll(ctx context.Context, entries []domain.PriorityQueueEntry) error
	ActiveTenants(ctx context.Context) ([]string, error)
}

type queueEntryRepository struct {
	pool *pgxpool.Pool
}

// NewQueueEntryRepository builds the repository.
func NewQueueEntryRepository(pool *pgxpool.Pool) QueueEntryRepository {
	return &queueEntryRepository{pool: pool}
}

const queueEntryColumns = `id, tenant_id, ticket_id, position, score, escalation_level,
       assigned_team, sla_deadline, escalated_at, rules, is_active, created_at, updated_at`

func (r *queueEntryRepository) ListActive(ctx context.Context, tenantID string) ([]domain.PriorityQueueEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM queue_entries WHERE tenant_id=$1 AND is_active ORDER BY position`, queueEntryColumns)
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PriorityQueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

func (r *queueEntryRepository) GetByID(ctx context.Context, id string) (*domain.PriorityQueueEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM queue_entries WHERE id=$1`, queueEntryColumns)
	entry, err := scanQueueEntry(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (r *queueEntryRepository) GetActiveByTicket(ctx context.Context, tenantID, ticketID string) (*domain.PriorityQueueEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM queue_entries WHERE tenant_id=$1 AND ticket_id=$2 AND is_active`, queueEntryColumns)
	entry, err := scanQueueEntry(r.pool.QueryRow(ctx, query, tenantID, ticketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (r *queueEntryRepository) Insert(ctx context.Context, entry *domain.PriorityQueueEntry) error {
	rules, err := json.Marshal(entry.Rules)
	if err != nil {
		return fmt.Errorf("encode escalation rules: %w", err)
	}
	const query = `
        INSERT INTO queue_entries (tenant_id, ticket_id, position, score, escalation_level,
            assigned_team, sla_deadline, escalated_at, rules, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		entry.TenantID,
		entry.TicketID,
		entry.Position,
		entry.Score,
		entry.EscalationLevel,
		entry.AssignedTeam,
		entry.SLADeadline,
		entry.EscalatedAt,
		rules,
		entry.IsActive,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
}

func (r *queueEntryRepository) Update(ctx context.Context, entry *domain.PriorityQueueEntry) error {
	rules, err := json.Marshal(entry.Rules)
	if err != nil {
		return fmt.Errorf("encode escalation rules: %w", err)
	}
	const query = `
        UPDATE queue_entries SET position=$1, score=$2, escalation_level=$3, assigned_team=$4,
            sla_deadline=$5, escalated_at=$6, rules=$7, is_active=$8, updated_at=NOW()
        WHERE id=$9`
	cmd, err := r.pool.Exec(ctx, query,
		entry.Position,
		entry.Score,
		entry.EscalationLevel,
		entry.AssignedTeam,
		entry.SLADeadline,
		entry.EscalatedAt,
		rules,
		entry.IsActive,
		entry.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateAll writes a batch of entries in one transaction so a reorder is
// either fully applied or not at all.
func (r *queueEntryRepository) UpdateAll(ctx context.Context, entries []domain.PriorityQueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
        UPDATE queue_entries SET position=$1, score=$2, escalation_level=$3, sla_deadline=$4,
            escalated_at=$5, is_active=$6, updated_at=NOW()
        WHERE id=$7`
	for i := range entries {
		entry := &entries[i]
		cmd, err := tx.Exec(ctx, query,
			entry.Position,
			entry.Score,
			entry.EscalationLevel,
			entry.SLADeadline,
			entry.EscalatedAt,
			entry.IsActive,
			entry.ID,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
	}
	return tx.Commit(ctx)
}

func (r *queueEntryRepository) ActiveTenants(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT tenant_id FROM queue_entries WHERE is_active ORDER BY tenant_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenantID)
	}
	return tenants, rows.Err()
}

type queueEntryRow interface {
	Scan(dest ...any) error
}

func scanQueueEntry(row queueEntryRow) (*domain.PriorityQueueEntry, error) {
	var (
		entry domain.PriorityQueueEntry
		rules []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.TicketID,
		&entry.Position,
		&entry.Score,
		&entry.EscalationLevel,
		&entry.AssignedTeam,
		&entry.SLADeadline,
		&entry.EscalatedAt,
		&rules,
		&entry.IsActive,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rules, &entry.Rules); err != nil {
		return nil, fmt.Errorf("decode escalation rules: %w", err)
	}
	return &entry, nil
}
