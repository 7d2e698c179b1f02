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

// SLAPolicyRepository manages SLA policy persistence.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	GetDefault(ctx context.Context, tenantID string) (*domain.SLAPolicy, error)
	ListActive(ctx context.Context, tenantID string) ([]domain.SLAPolicy, error)
	SetDefault(ctx context.Context, tenantID, policyID string) error
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository builds the repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const slaPolicyColumns = `id, tenant_id, name, targets, coverage, business_start, business_end,
       business_days, timezone, warning_pct, is_default, is_active, effective_from, effective_to,
       created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	targets, days, err := encodePolicy(policy)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO sla_policies (tenant_id, name, targets, coverage, business_start, business_end,
            business_days, timezone, warning_pct, is_default, is_active, effective_from, effective_to)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.TenantID,
		policy.Name,
		targets,
		policy.Coverage,
		policy.BusinessStart,
		policy.BusinessEnd,
		days,
		policy.Timezone,
		policy.WarningPct,
		policy.IsDefault,
		policy.IsActive,
		policy.EffectiveFrom,
		policy.EffectiveTo,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	targets, days, err := encodePolicy(policy)
	if err != nil {
		return err
	}
	const query = `
        UPDATE sla_policies SET name=$1, targets=$2, coverage=$3, business_start=$4, business_end=$5,
            business_days=$6, timezone=$7, warning_pct=$8, is_active=$9, effective_from=$10,
            effective_to=$11, updated_at=NOW()
        WHERE id=$12 AND tenant_id=$13`
	cmd, err := r.pool.Exec(ctx, query,
		policy.Name,
		targets,
		policy.Coverage,
		policy.BusinessStart,
		policy.BusinessEnd,
		days,
		policy.Timezone,
		policy.WarningPct,
		policy.IsActive,
		policy.EffectiveFrom,
		policy.EffectiveTo,
		policy.ID,
		policy.TenantID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_policies WHERE id=$1`, slaPolicyColumns)
	return r.fetchSingle(ctx, query, id)
}

// GetDefault returns the tenant's default active policy, or nil when the
// tenant has none.
func (r *slaPolicyRepository) GetDefault(ctx context.Context, tenantID string) (*domain.SLAPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_policies WHERE tenant_id=$1 AND is_default AND is_active`, slaPolicyColumns)
	policy, err := r.fetchSingle(ctx, query, tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return policy, err
}

func (r *slaPolicyRepository) ListActive(ctx context.Context, tenantID string) ([]domain.SLAPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_policies WHERE tenant_id=$1 AND is_active ORDER BY name`, slaPolicyColumns)
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *policy)
	}
	return result, rows.Err()
}

// SetDefault promotes one policy to tenant default, demoting any other
// default in the same transaction.
func (r *slaPolicyRepository) SetDefault(ctx context.Context, tenantID, policyID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE sla_policies SET is_default=FALSE, updated_at=NOW() WHERE tenant_id=$1 AND is_default`,
		tenantID); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx,
		`UPDATE sla_policies SET is_default=TRUE, updated_at=NOW() WHERE id=$1 AND tenant_id=$2 AND is_active`,
		policyID, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

type policyRow interface {
	Scan(dest ...any) error
}

func (r *slaPolicyRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.SLAPolicy, error) {
	return scanPolicy(r.pool.QueryRow(ctx, query, args...))
}

func scanPolicy(row policyRow) (*domain.SLAPolicy, error) {
	var (
		policy  domain.SLAPolicy
		targets []byte
		days    []byte
	)
	if err := row.Scan(
		&policy.ID,
		&policy.TenantID,
		&policy.Name,
		&targets,
		&policy.Coverage,
		&policy.BusinessStart,
		&policy.BusinessEnd,
		&days,
		&policy.Timezone,
		&policy.WarningPct,
		&policy.IsDefault,
		&policy.IsActive,
		&policy.EffectiveFrom,
		&policy.EffectiveTo,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targets, &policy.Targets); err != nil {
		return nil, fmt.Errorf("decode policy targets: %w", err)
	}
	if err := json.Unmarshal(days, &policy.BusinessDays); err != nil {
		return nil, fmt.Errorf("decode policy business days: %w", err)
	}
	return &policy, nil
}

func encodePolicy(policy *domain.SLAPolicy) ([]byte, []byte, error) {
	targets, err := json.Marshal(policy.Targets)
	if err != nil {
		return nil, nil, fmt.Errorf("encode policy targets: %w", err)
	}
	days, err := json.Marshal(policy.BusinessDays)
	if err != nil {
		return nil, nil, fmt.Errorf("encode policy business days: %w", err)
	}
	return targets, days, nil
}
