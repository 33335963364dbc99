package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-pass-api/internal/models"
)

// LeaveRepository persists staff leave windows.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs the repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

const leaveColumns = `id, staff_id, kind, starts_on, ends_on, reason, status, reviewed_by, reviewed_at, created_at`

// Create inserts a new pending leave.
func (r *LeaveRepository) Create(ctx context.Context, leave *models.Leave) error {
	if leave.ID == "" {
		leave.ID = uuid.NewString()
	}
	if leave.Status == "" {
		leave.Status = models.LeaveStatusPending
	}
	if leave.CreatedAt.IsZero() {
		leave.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO leaves (id, staff_id, kind, starts_on, ends_on, reason, status, reviewed_by, reviewed_at, created_at)
	VALUES (:id, :staff_id, :kind, :starts_on, :ends_on, :reason, :status, :reviewed_by, :reviewed_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, leave); err != nil {
		return fmt.Errorf("create leave: %w", err)
	}
	return nil
}

// GetByID fetches a leave by identifier.
func (r *LeaveRepository) GetByID(ctx context.Context, id string) (*models.Leave, error) {
	query := fmt.Sprintf(`SELECT %s FROM leaves WHERE id = $1`, leaveColumns)
	var leave models.Leave
	if err := r.db.GetContext(ctx, &leave, query, id); err != nil {
		return nil, err
	}
	return &leave, nil
}

// Review records the decision on a pending leave. The status guard rejects
// double reviews.
func (r *LeaveRepository) Review(ctx context.Context, id string, status models.LeaveStatus, reviewerID string) error {
	const query = `UPDATE leaves SET status = $2, reviewed_by = $3, reviewed_at = $4 WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, status, reviewerID, time.Now().UTC(), models.LeaveStatusPending)
	if err != nil {
		return fmt.Errorf("review leave: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check leave review rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListForStaff returns a staff member's leaves, newest first.
func (r *LeaveRepository) ListForStaff(ctx context.Context, staffID string) ([]models.Leave, error) {
	query := fmt.Sprintf(`SELECT %s FROM leaves WHERE staff_id = $1 ORDER BY created_at DESC`, leaveColumns)
	var leaves []models.Leave
	if err := r.db.SelectContext(ctx, &leaves, query, staffID); err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
	}
	return leaves, nil
}
