package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// SLAPolicyRepository stores the SLA policy table.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	List(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error)
	Deactivate(ctx context.Context, id string) error
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository builds repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (name, priority, response_minutes, resolution_minutes, escalation_minutes, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.Priority,
		policy.ResponseMinutes,
		policy.ResolutionMinutes,
		policy.EscalationMinutes,
		policy.IsActive,
	).Scan(&policy.ID, &policy.CreatedAt)
}

func (r *slaPolicyRepository) List(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	query := `
        SELECT id, name, priority, response_minutes, resolution_minutes, escalation_minutes, is_active, created_at
        FROM sla_policies`
	if activeOnly {
		query += ` WHERE is_active=TRUE`
	}
	query += ` ORDER BY priority ASC, created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var policy domain.SLAPolicy
		if err := rows.Scan(
			&policy.ID,
			&policy.Name,
			&policy.Priority,
			&policy.ResponseMinutes,
			&policy.ResolutionMinutes,
			&policy.EscalationMinutes,
			&policy.IsActive,
			&policy.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func (r *slaPolicyRepository) Deactivate(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE sla_policies SET is_active=FALSE WHERE id=$1`, id)
	if err != nil {
		return mapInvalidID(err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
