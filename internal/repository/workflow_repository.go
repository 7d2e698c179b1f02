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

// WorkflowRepository manages workflow definition persistence. Loaded
// definitions always carry their transitions.
type WorkflowRepository interface {
	Create(ctx context.Context, definition *domain.WorkflowDefinition) error
	Update(ctx context.Context, definition *domain.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	GetDefault(ctx context.Context, tenantID string) (*domain.WorkflowDefinition, error)
	ListActive(ctx context.Context, tenantID string) ([]domain.WorkflowDefinition, error)
	SetDefault(ctx context.Context, tenantID, workflowID string) error
}

type workflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository builds the repository.
func NewWorkflowRepository(pool *pgxpool.Pool) WorkflowRepository {
	return &workflowRepository{pool: pool}
}

const workflowColumns = `id, tenant_id, name, is_default, is_active, initial_status,
       allowed_statuses, created_at, updated_at`

func (r *workflowRepository) Create(ctx context.Context, definition *domain.WorkflowDefinition) error {
	statuses, err := json.Marshal(definition.AllowedStatuses)
	if err != nil {
		return fmt.Errorf("encode allowed statuses: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
        INSERT INTO workflow_definitions (tenant_id, name, is_default, is_active, initial_status, allowed_statuses)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		definition.TenantID,
		definition.Name,
		definition.IsDefault,
		definition.IsActive,
		definition.InitialStatus,
		statuses,
	).Scan(&definition.ID, &definition.CreatedAt, &definition.UpdatedAt); err != nil {
		return err
	}
	for i := range definition.Transitions {
		definition.Transitions[i].WorkflowID = definition.ID
		if err := insertTransition(ctx, tx, &definition.Transitions[i]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Update rewrites the definition and replaces its transition set. The
// default flag is left untouched; it only moves through SetDefault.
func (r *workflowRepository) Update(ctx context.Context, definition *domain.WorkflowDefinition) error {
	statuses, err := json.Marshal(definition.AllowedStatuses)
	if err != nil {
		return fmt.Errorf("encode allowed statuses: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
        UPDATE workflow_definitions SET name=$1, is_active=$2, initial_status=$3,
            allowed_statuses=$4, updated_at=NOW()
        WHERE id=$5 AND tenant_id=$6`
	cmd, err := tx.Exec(ctx, query,
		definition.Name,
		definition.IsActive,
		definition.InitialStatus,
		statuses,
		definition.ID,
		definition.TenantID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_transitions WHERE workflow_id=$1`, definition.ID); err != nil {
		return err
	}
	for i := range definition.Transitions {
		definition.Transitions[i].WorkflowID = definition.ID
		if err := insertTransition(ctx, tx, &definition.Transitions[i]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertTransition(ctx context.Context, tx pgx.Tx, transition *domain.Transition) error {
	guards, err := json.Marshal(transition.Guards)
	if err != nil {
		return fmt.Errorf("encode transition guards: %w", err)
	}
	actions, err := json.Marshal(transition.Actions)
	if err != nil {
		return fmt.Errorf("encode transition actions: %w", err)
	}
	const query = `
        INSERT INTO workflow_transitions (workflow_id, from_status, to_status, required_role,
            requires_comment, guards, actions, sort_order, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id`
	return tx.QueryRow(ctx, query,
		transition.WorkflowID,
		transition.FromStatus,
		transition.ToStatus,
		transition.RequiredRole,
		transition.RequiresComment,
		guards,
		actions,
		transition.SortOrder,
		transition.IsActive,
	).Scan(&transition.ID)
}

func (r *workflowRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_definitions WHERE id=$1`, workflowColumns)
	definition, err := r.fetchSingle(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadTransitions(ctx, definition); err != nil {
		return nil, err
	}
	return definition, nil
}

// GetDefault returns the tenant's default active workflow, or nil when
// the tenant has none.
func (r *workflowRepository) GetDefault(ctx context.Context, tenantID string) (*domain.WorkflowDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_definitions WHERE tenant_id=$1 AND is_default AND is_active`, workflowColumns)
	definition, err := r.fetchSingle(ctx, query, tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadTransitions(ctx, definition); err != nil {
		return nil, err
	}
	return definition, nil
}

func (r *workflowRepository) ListActive(ctx context.Context, tenantID string) ([]domain.WorkflowDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_definitions WHERE tenant_id=$1 AND is_active ORDER BY name`, workflowColumns)
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WorkflowDefinition
	for rows.Next() {
		definition, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *definition)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		if err := r.loadTransitions(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// SetDefault promotes one workflow to tenant default, demoting any other
// default in the same transaction.
func (r *workflowRepository) SetDefault(ctx context.Context, tenantID, workflowID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE workflow_definitions SET is_default=FALSE, updated_at=NOW() WHERE tenant_id=$1 AND is_default`,
		tenantID); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx,
		`UPDATE workflow_definitions SET is_default=TRUE, updated_at=NOW() WHERE id=$1 AND tenant_id=$2 AND is_active`,
		workflowID, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

type workflowRow interface {
	Scan(dest ...any) error
}

func (r *workflowRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.WorkflowDefinition, error) {
	return scanWorkflow(r.pool.QueryRow(ctx, query, args...))
}

func scanWorkflow(row workflowRow) (*domain.WorkflowDefinition, error) {
	var (
		definition domain.WorkflowDefinition
		statuses   []byte
	)
	if err := row.Scan(
		&definition.ID,
		&definition.TenantID,
		&definition.Name,
		&definition.IsDefault,
		&definition.IsActive,
		&definition.InitialStatus,
		&statuses,
		&definition.CreatedAt,
		&definition.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(statuses, &definition.AllowedStatuses); err != nil {
		return nil, fmt.Errorf("decode allowed statuses: %w", err)
	}
	return &definition, nil
}

func (r *workflowRepository) loadTransitions(ctx context.Context, definition *domain.WorkflowDefinition) error {
	const query = `
        SELECT id, workflow_id, from_status, to_status, required_role, requires_comment,
               guards, actions, sort_order, is_active
        FROM workflow_transitions WHERE workflow_id=$1 ORDER BY sort_order, id`
	rows, err := r.pool.Query(ctx, query, definition.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var transitions []domain.Transition
	for rows.Next() {
		var (
			transition domain.Transition
			guards     []byte
			actions    []byte
		)
		if err := rows.Scan(
			&transition.ID,
			&transition.WorkflowID,
			&transition.FromStatus,
			&transition.ToStatus,
			&transition.RequiredRole,
			&transition.RequiresComment,
			&guards,
			&actions,
			&transition.SortOrder,
			&transition.IsActive,
		); err != nil {
			return err
		}
		if err := json.Unmarshal(guards, &transition.Guards); err != nil {
			return fmt.Errorf("decode transition guards: %w", err)
		}
		if err := json.Unmarshal(actions, &transition.Actions); err != nil {
			return fmt.Errorf("decode transition actions: %w", err)
		}
		transitions = append(transitions, transition)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	definition.Transitions = transitions
	return nil
}
