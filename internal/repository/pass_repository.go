package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-pass-api/internal/models"
)

// PassRepository persists pass requests and their approval chain.
type PassRepository struct {
	db *sqlx.DB
}

// NewPassRepository constructs the repository.
func NewPassRepository(db *sqlx.DB) *PassRepository {
	return &PassRepository{db: db}
}

const passColumns = `id, student_id, kind, reason, depart_at, return_at, status, reject_reason, issued_by, out_at, returned_at, late_return, created_at, updated_at`

// Create inserts a new pass request.
func (r *PassRepository) Create(ctx context.Context, pass *models.PassRequest) error {
	if pass.ID == "" {
		pass.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if pass.CreatedAt.IsZero() {
		pass.CreatedAt = now
	}
	pass.UpdatedAt = now
	const query = `INSERT INTO pass_requests
	(id, student_id, kind, reason, depart_at, return_at, status, reject_reason, issued_by, out_at, returned_at, late_return, created_at, updated_at)
	VALUES (:id, :student_id, :kind, :reason, :depart_at, :return_at, :status, :reject_reason, :issued_by, :out_at, :returned_at, :late_return, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pass); err != nil {
		return fmt.Errorf("create pass request: %w", err)
	}
	return nil
}

// GetByID fetches a pass request with its approval chain.
func (r *PassRepository) GetByID(ctx context.Context, id string) (*models.PassRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM pass_requests WHERE id = $1`, passColumns)
	var pass models.PassRequest
	if err := r.db.GetContext(ctx, &pass, query, id); err != nil {
		return nil, err
	}
	const approvalQuery = `SELECT id, pass_id, actor_id, role, decision, reason, delegated, decided_at
	FROM pass_approvals WHERE pass_id = $1 ORDER BY decided_at ASC`
	if err := r.db.SelectContext(ctx, &pass.Approvals, approvalQuery, id); err != nil {
		return nil, fmt.Errorf("load pass approvals: %w", err)
	}
	return &pass, nil
}

// List returns pass requests matching the filter (latest first).
func (r *PassRepository) List(ctx context.Context, filter models.PassFilter) ([]models.PassRequest, int, error) {
	base := "FROM pass_requests WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if len(filter.Status) > 0 {
		values := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			values[i] = string(s)
		}
		args = append(args, pq.Array(values))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("depart_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("depart_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", passColumns, base, size, offset)
	var passes []models.PassRequest
	if err := r.db.SelectContext(ctx, &passes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list pass requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count pass requests: %w", err)
	}
	return passes, total, nil
}

// ListPendingForRole returns requests currently awaiting the given authority
// level, scoped to a department for mentors and department heads.
func (r *PassRepository) ListPendingForRole(ctx context.Context, statuses []models.PassStatus, departmentID string, mentorID string) ([]models.PassRequest, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	args := []interface{}{pq.Array(values)}
	query := `SELECT p.id, p.student_id, p.kind, p.reason, p.depart_at, p.return_at, p.status, p.reject_reason, p.issued_by, p.out_at, p.returned_at, p.late_return, p.created_at, p.updated_at
	FROM pass_requests p JOIN students s ON s.id = p.student_id
	WHERE p.status = ANY($1)`
	if departmentID != "" {
		args = append(args, departmentID)
		query += fmt.Sprintf(" AND s.department_id = $%d", len(args))
	}
	if mentorID != "" {
		args = append(args, mentorID)
		query += fmt.Sprintf(" AND s.mentor_id = $%d", len(args))
	}
	query += " ORDER BY p.created_at ASC"

	var passes []models.PassRequest
	if err := r.db.SelectContext(ctx, &passes, query, args...); err != nil {
		return nil, fmt.Errorf("list pending passes: %w", err)
	}
	return passes, nil
}

// TransitionParams carries one guarded status transition.
type TransitionParams struct {
	ID           string
	FromStatus   models.PassStatus
	ToStatus     models.PassStatus
	RejectReason *string
	Approval     *models.PassApproval
}

// Transition moves a pass from an expected status to the next one. The
// update is guarded by the expected current status; when a concurrent caller
// already moved the row, zero rows match and sql.ErrNoRows is returned so
// the service can surface a stale-state conflict. The approval row, when
// present, is written in the same transaction.
func (r *PassRepository) Transition(ctx context.Context, params TransitionParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pass transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const update = `UPDATE pass_requests SET status = $1, reject_reason = COALESCE($2, reject_reason), updated_at = $3
	WHERE id = $4 AND status = $5`
	result, err := tx.ExecContext(ctx, update, params.ToStatus, params.RejectReason, now, params.ID, params.FromStatus)
	if err != nil {
		return fmt.Errorf("transition pass status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check pass transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if params.Approval != nil {
		approval := params.Approval
		if approval.ID == "" {
			approval.ID = uuid.NewString()
		}
		if approval.DecidedAt.IsZero() {
			approval.DecidedAt = now
		}
		approval.PassID = params.ID
		const insert = `INSERT INTO pass_approvals (id, pass_id, actor_id, role, decision, reason, delegated, decided_at)
	VALUES (:id, :pass_id, :actor_id, :role, :decision, :reason, :delegated, :decided_at)`
		if _, err = tx.NamedExecContext(ctx, insert, approval); err != nil {
			return fmt.Errorf("record pass approval: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit pass transition: %w", err)
	}
	return nil
}

// UpdateEmergency edits reason and window of an emergency pass. Allowed only
// while the pass has not completed.
func (r *PassRepository) UpdateEmergency(ctx context.Context, id, reason string, departAt, returnAt time.Time) error {
	const query = `UPDATE pass_requests SET reason = $2, depart_at = $3, return_at = $4, updated_at = $5
	WHERE id = $1 AND kind = $6 AND status NOT IN ($7, $8, $9)`
	result, err := r.db.ExecContext(ctx, query, id, reason, departAt, returnAt, time.Now().UTC(),
		models.PassKindEmergency, models.PassStatusCompleted, models.PassStatusRejected, models.PassStatusCancelled)
	if err != nil {
		return fmt.Errorf("update emergency pass: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check emergency update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindActiveForStudent returns the student's single open pass: generated,
// scanned out and not yet returned.
func (r *PassRepository) FindActiveForStudent(ctx context.Context, studentID string) (*models.PassRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM pass_requests
	WHERE student_id = $1 AND status = $2 AND out_at IS NOT NULL AND returned_at IS NULL
	ORDER BY out_at DESC LIMIT 1`, passColumns)
	var pass models.PassRequest
	if err := r.db.GetContext(ctx, &pass, query, studentID, models.PassStatusGenerated); err != nil {
		return nil, err
	}
	return &pass, nil
}

// FindGeneratedForStudent returns the student's scannable pass, if any.
func (r *PassRepository) FindGeneratedForStudent(ctx context.Context, studentID string) (*models.PassRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM pass_requests
	WHERE student_id = $1 AND status = $2 AND out_at IS NULL
	ORDER BY depart_at ASC LIMIT 1`, passColumns)
	var pass models.PassRequest
	if err := r.db.GetContext(ctx, &pass, query, studentID, models.PassStatusGenerated); err != nil {
		return nil, err
	}
	return &pass, nil
}

// HasOpenPass reports whether the student already holds a non-terminal
// request with an open mobility window.
func (r *PassRepository) HasOpenPass(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM pass_requests
	WHERE student_id = $1 AND status = $2 AND out_at IS NOT NULL AND returned_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, models.PassStatusGenerated); err != nil {
		return false, fmt.Errorf("count open passes: %w", err)
	}
	return count > 0, nil
}

// MarkOut stamps the exit scan onto a generated pass.
func (r *PassRepository) MarkOut(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE pass_requests SET out_at = $2, updated_at = $3 WHERE id = $1 AND status = $4 AND out_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, at, time.Now().UTC(), models.PassStatusGenerated)
	if err != nil {
		return fmt.Errorf("mark pass out: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check mark out rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Close completes a pass on return. The status guard keeps concurrent
// closes (gate scan racing the overdue sweep) from both succeeding.
func (r *PassRepository) Close(ctx context.Context, id string, returnedAt time.Time, late bool) error {
	const query = `UPDATE pass_requests SET status = $2, returned_at = $3, late_return = $4, updated_at = $5
	WHERE id = $1 AND status = $6 AND returned_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, models.PassStatusCompleted, returnedAt, late, time.Now().UTC(), models.PassStatusGenerated)
	if err != nil {
		return fmt.Errorf("close pass: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check close rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListLateUnpenalized returns completed late returns that have no VIOLATION
// row in the trust ledger. The sweep re-finds penalties lost between the
// status-guarded close and the ledger write.
func (r *PassRepository) ListLateUnpenalized(ctx context.Context, limit int) ([]models.PassRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM pass_requests
	WHERE status = $1 AND late_return = TRUE
	AND NOT EXISTS (
		SELECT 1 FROM trust_history
		WHERE trust_history.pass_id = pass_requests.id AND trust_history.kind = $2
	)
	ORDER BY updated_at ASC LIMIT %d`, passColumns, limit)
	var passes []models.PassRequest
	if err := r.db.SelectContext(ctx, &passes, query, models.PassStatusCompleted, models.TrustEventViolation); err != nil {
		return nil, fmt.Errorf("list unpenalized late returns: %w", err)
	}
	return passes, nil
}

// ListOverdue returns open passes whose declared return (plus grace) lies in
// the past. Consumed by the periodic sweep.
func (r *PassRepository) ListOverdue(ctx context.Context, deadline time.Time) ([]models.PassRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM pass_requests
	WHERE status = $1 AND out_at IS NOT NULL AND returned_at IS NULL AND return_at < $2
	ORDER BY return_at ASC`, passColumns)
	var passes []models.PassRequest
	if err := r.db.SelectContext(ctx, &passes, query, models.PassStatusGenerated, deadline); err != nil {
		return nil, fmt.Errorf("list overdue passes: %w", err)
	}
	return passes, nil
}
