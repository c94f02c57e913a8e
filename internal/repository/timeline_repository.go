package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// TimelineRepository reads the append-only complaint audit log. Events are written
// by ComplaintRepository in the same transaction as the change they describe.
type TimelineRepository interface {
	ListByComplaint(ctx context.Context, complaintID string) ([]domain.TimelineEvent, error)
}

type timelineRepository struct {
	pool *pgxpool.Pool
}

// NewTimelineRepository builds repository.
func NewTimelineRepository(pool *pgxpool.Pool) TimelineRepository {
	return &timelineRepository{pool: pool}
}

func (r *timelineRepository) ListByComplaint(ctx context.Context, complaintID string) ([]domain.TimelineEvent, error) {
	const query = `
        SELECT id, complaint_id, event_type, description, actor_id, metadata, created_at
        FROM timeline_events WHERE complaint_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TimelineEvent
	for rows.Next() {
		var (
			event    domain.TimelineEvent
			metadata []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.ComplaintID,
			&event.EventType,
			&event.Description,
			&event.ActorID,
			&metadata,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode timeline metadata: %w", err)
			}
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

// queryExecer is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertTimelineEvent(ctx context.Context, q queryExecer, event *domain.TimelineEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode timeline metadata: %w", err)
	}
	const query = `
        INSERT INTO timeline_events (id, complaint_id, event_type, description, actor_id, metadata, created_at)
        VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)`
	if _, err := q.Exec(ctx, query,
		event.ID,
		event.ComplaintID,
		event.EventType,
		event.Description,
		event.ActorID,
		string(payload),
		event.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}
