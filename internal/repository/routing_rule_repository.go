package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// RoutingRuleRepository stores the auto-routing rule table.
type RoutingRuleRepository interface {
	Create(ctx context.Context, rule *domain.RoutingRule) error
	List(ctx context.Context, activeOnly bool) ([]domain.RoutingRule, error)
	Deactivate(ctx context.Context, id string) error
}

type routingRuleRepository struct {
	pool *pgxpool.Pool
}

// NewRoutingRuleRepository builds repository.
func NewRoutingRuleRepository(pool *pgxpool.Pool) RoutingRuleRepository {
	return &routingRuleRepository{pool: pool}
}

func (r *routingRuleRepository) Create(ctx context.Context, rule *domain.RoutingRule) error {
	const query = `
        INSERT INTO routing_rules (name, rule_order, category, location, priority, user_id, role_id, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Order,
		rule.Category,
		rule.Location,
		rule.Priority,
		rule.UserID,
		rule.RoleID,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt)
	return mapForeignKeyViolation(mapInvalidID(err))
}

func (r *routingRuleRepository) List(ctx context.Context, activeOnly bool) ([]domain.RoutingRule, error) {
	query := `
        SELECT id, name, rule_order, category, location, priority, user_id, role_id, is_active, created_at
        FROM routing_rules`
	if activeOnly {
		query += ` WHERE is_active=TRUE`
	}
	query += ` ORDER BY rule_order ASC, id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RoutingRule
	for rows.Next() {
		var rule domain.RoutingRule
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Order,
			&rule.Category,
			&rule.Location,
			&rule.Priority,
			&rule.UserID,
			&rule.RoleID,
			&rule.IsActive,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *routingRuleRepository) Deactivate(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE routing_rules SET is_active=FALSE WHERE id=$1`, id)
	if err != nil {
		return mapInvalidID(err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
