package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// ComplaintFilter captures listing parameters. Deleted complaints are never returned.
type ComplaintFilter struct {
	Statuses    []domain.ComplaintStatus
	Priorities  []domain.ComplaintPriority
	Category    *string
	Location    *string
	AssignedTo  *string
	CreatedBy   *string
	IsOverdue   *bool
	IsEscalated *bool
	Limit       int
	Offset      int
}

// MutateFunc changes a locked complaint in place and returns the events describing the change.
type MutateFunc func(c *domain.Complaint) ([]*domain.TimelineEvent, error)

// ComplaintRepository encapsulates complaint persistence. Every write stores its
// timeline events in the same transaction.
type ComplaintRepository interface {
	Create(ctx context.Context, complaint *domain.Complaint, events []*domain.TimelineEvent) error
	GetByID(ctx context.Context, id string) (*domain.Complaint, error)
	ListWithFilter(ctx context.Context, filter ComplaintFilter) ([]domain.Complaint, error)
	// Mutate locks the row, applies fn and writes back the handler-owned columns.
	// The overdue and escalation flags are never written here.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Complaint, []*domain.TimelineEvent, error)
	// ListSweepCandidates pages open, non-deleted complaints by id after afterID.
	ListSweepCandidates(ctx context.Context, afterID string, limit int) ([]domain.Complaint, error)
	// MarkOverdue flips is_overdue with a compare-and-set. false means another writer won
	// or the complaint is no longer eligible.
	MarkOverdue(ctx context.Context, id string, now time.Time, event *domain.TimelineEvent) (bool, error)
	// MarkEscalated flips is_escalated and stamps escalated_at with a compare-and-set.
	MarkEscalated(ctx context.Context, id string, now time.Time, event *domain.TimelineEvent) (bool, error)
}

type complaintRepository struct {
	pool *pgxpool.Pool
}

// NewComplaintRepository instantiates repository.
func NewComplaintRepository(pool *pgxpool.Pool) ComplaintRepository {
	return &complaintRepository{pool: pool}
}

const complaintColumns = `id, reference_key, title, description, category, location, priority, status,
               sla_minutes, due_date, is_overdue, is_escalated, escalated_at, acknowledged_at,
               resolved_at, resolved_by, closed_at, assigned_to, pending_role_id, created_by,
               is_deleted, deleted_at, created_at, updated_at`

func (r *complaintRepository) Create(ctx context.Context, complaint *domain.Complaint, events []*domain.TimelineEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
        INSERT INTO complaints (reference_key, title, description, category, location, priority, status,
            sla_minutes, due_date, assigned_to, pending_role_id, created_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
        RETURNING id, updated_at`
	if err := tx.QueryRow(ctx, query,
		complaint.ReferenceKey,
		complaint.Title,
		complaint.Description,
		complaint.Category,
		complaint.Location,
		complaint.Priority,
		complaint.Status,
		complaint.SLAMinutes,
		complaint.DueDate,
		complaint.AssignedTo,
		complaint.PendingRoleID,
		complaint.CreatedBy,
		complaint.CreatedAt,
	).Scan(&complaint.ID, &complaint.UpdatedAt); err != nil {
		return fmt.Errorf("insert complaint: %w", err)
	}

	for _, event := range events {
		event.ComplaintID = complaint.ID
		if err := insertTimelineEvent(ctx, tx, event); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *complaintRepository) GetByID(ctx context.Context, id string) (*domain.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id=$1 AND is_deleted=FALSE`
	complaint, err := scanComplaint(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapInvalidID(err)
	}
	return complaint, nil
}

func (r *complaintRepository) ListWithFilter(ctx context.Context, filter ComplaintFilter) ([]domain.Complaint, error) {
	where, args := buildComplaintFilter(filter)
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM complaints WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		complaintColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComplaints(rows)
}

func (r *complaintRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Complaint, []*domain.TimelineEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id=$1 AND is_deleted=FALSE FOR UPDATE`
	complaint, err := scanComplaint(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, nil, fmt.Errorf("lock complaint: %w", mapInvalidID(err))
	}

	events, err := fn(complaint)
	if err != nil {
		return nil, nil, err
	}

	const update = `
        UPDATE complaints SET title=$1, description=$2, category=$3, location=$4, priority=$5, status=$6,
            acknowledged_at=$7, resolved_at=$8, resolved_by=$9, closed_at=$10, assigned_to=$11,
            pending_role_id=$12, is_deleted=$13, deleted_at=$14, updated_at=$15
        WHERE id=$16`
	if _, err := tx.Exec(ctx, update,
		complaint.Title,
		complaint.Description,
		complaint.Category,
		complaint.Location,
		complaint.Priority,
		complaint.Status,
		complaint.AcknowledgedAt,
		complaint.ResolvedAt,
		complaint.ResolvedBy,
		complaint.ClosedAt,
		complaint.AssignedTo,
		complaint.PendingRoleID,
		complaint.IsDeleted,
		complaint.DeletedAt,
		complaint.UpdatedAt,
		complaint.ID,
	); err != nil {
		return nil, nil, fmt.Errorf("update complaint: %w", err)
	}

	for _, event := range events {
		event.ComplaintID = complaint.ID
		if err := insertTimelineEvent(ctx, tx, event); err != nil {
			return nil, nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit complaint update: %w", err)
	}
	return complaint, events, nil
}

func (r *complaintRepository) ListSweepCandidates(ctx context.Context, afterID string, limit int) ([]domain.Complaint, error) {
	if limit <= 0 {
		limit = 200
	}
	clauses := []string{
		"is_deleted=FALSE",
		"status NOT IN ('Resolved','Closed')",
		"(is_overdue=FALSE OR is_escalated=FALSE)",
	}
	args := []any{}
	if afterID != "" {
		args = append(args, afterID)
		clauses = append(clauses, fmt.Sprintf("id > $%d", len(args)))
	}
	query := fmt.Sprintf(`SELECT %s FROM complaints WHERE %s ORDER BY id ASC LIMIT %d`,
		complaintColumns, strings.Join(clauses, " AND "), limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComplaints(rows)
}

func (r *complaintRepository) MarkOverdue(ctx context.Context, id string, now time.Time, event *domain.TimelineEvent) (bool, error) {
	const query = `
        UPDATE complaints SET is_overdue=TRUE, updated_at=$2
        WHERE id=$1 AND is_overdue=FALSE AND is_deleted=FALSE
          AND status NOT IN ('Resolved','Closed') AND due_date < $2`
	return r.flipFlag(ctx, query, id, now, event)
}

func (r *complaintRepository) MarkEscalated(ctx context.Context, id string, now time.Time, event *domain.TimelineEvent) (bool, error) {
	const query = `
        UPDATE complaints SET is_escalated=TRUE, escalated_at=$2, updated_at=$2
        WHERE id=$1 AND is_escalated=FALSE AND is_deleted=FALSE
          AND status NOT IN ('Resolved','Closed')`
	return r.flipFlag(ctx, query, id, now, event)
}

// flipFlag runs a conditional update and appends the event only when the row changed.
func (r *complaintRepository) flipFlag(ctx context.Context, query, id string, now time.Time, event *domain.TimelineEvent) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("flip complaint flag: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}
	if event != nil {
		event.ComplaintID = id
		if err := insertTimelineEvent(ctx, tx, event); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit complaint flag: %w", err)
	}
	return true, nil
}

func buildComplaintFilter(filter ComplaintFilter) (string, []any) {
	clauses := []string{"is_deleted=FALSE"}
	args := []any{}

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
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Location != nil {
		args = append(args, *filter.Location)
		clauses = append(clauses, fmt.Sprintf("location=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.IsOverdue != nil {
		args = append(args, *filter.IsOverdue)
		clauses = append(clauses, fmt.Sprintf("is_overdue=$%d", len(args)))
	}
	if filter.IsEscalated != nil {
		args = append(args, *filter.IsEscalated)
		clauses = append(clauses, fmt.Sprintf("is_escalated=$%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanComplaint(row pgx.Row) (*domain.Complaint, error) {
	var c domain.Complaint
	if err := row.Scan(complaintDest(&c)...); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanComplaints(rows pgx.Rows) ([]domain.Complaint, error) {
	var result []domain.Complaint
	for rows.Next() {
		var c domain.Complaint
		if err := rows.Scan(complaintDest(&c)...); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func complaintDest(c *domain.Complaint) []any {
	return []any{
		&c.ID,
		&c.ReferenceKey,
		&c.Title,
		&c.Description,
		&c.Category,
		&c.Location,
		&c.Priority,
		&c.Status,
		&c.SLAMinutes,
		&c.DueDate,
		&c.IsOverdue,
		&c.IsEscalated,
		&c.EscalatedAt,
		&c.AcknowledgedAt,
		&c.ResolvedAt,
		&c.ResolvedBy,
		&c.ClosedAt,
		&c.AssignedTo,
		&c.PendingRoleID,
		&c.CreatedBy,
		&c.IsDeleted,
		&c.DeletedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
}
