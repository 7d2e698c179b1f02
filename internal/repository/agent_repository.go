package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// AgentRepository manages agent account persistence.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.AgentAccount) error
	Update(ctx context.Context, agent *domain.AgentAccount) error
	GetByID(ctx context.Context, id string) (*domain.AgentAccount, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*domain.AgentAccount, error)
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository builds the repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

const agentColumns = `id, tenant_id, email, display_name, password_hash, roles, is_active, created_at, updated_at`

func (r *agentRepository) Create(ctx context.Context, agent *domain.AgentAccount) error {
	const query = `
        INSERT INTO agent_accounts (tenant_id, email, display_name, password_hash, roles, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		agent.TenantID,
		agent.Email,
		agent.DisplayName,
		agent.PasswordHash,
		agent.Roles,
		agent.IsActive,
	).Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)
}

func (r *agentRepository) Update(ctx context.Context, agent *domain.AgentAccount) error {
	const query = `
        UPDATE agent_accounts SET email=$1, display_name=$2, password_hash=$3, roles=$4,
            is_active=$5, updated_at=NOW()
        WHERE id=$6 AND tenant_id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		agent.Email,
		agent.DisplayName,
		agent.PasswordHash,
		agent.Roles,
		agent.IsActive,
		agent.ID,
		agent.TenantID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.AgentAccount, error) {
	const query = `SELECT ` + agentColumns + ` FROM agent_accounts WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *agentRepository) GetByEmail(ctx context.Context, tenantID, email string) (*domain.AgentAccount, error) {
	const query = `SELECT ` + agentColumns + ` FROM agent_accounts WHERE tenant_id=$1 AND LOWER(email)=LOWER($2)`
	return r.fetchSingle(ctx, query, tenantID, email)
}

func (r *agentRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.AgentAccount, error) {
	var agent domain.AgentAccount
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&agent.ID,
		&agent.TenantID,
		&agent.Email,
		&agent.DisplayName,
		&agent.PasswordHash,
		&agent.Roles,
		&agent.IsActive,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}
