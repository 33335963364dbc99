package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-pass-api/internal/models"
)

// RestrictionRepository persists cohort restrictions. Per-student hard
// blocks live on the student row (StudentRepository.SetHardBlock); this
// repository covers the (department, academic year) layer.
type RestrictionRepository struct {
	db *sqlx.DB
}

// NewRestrictionRepository constructs the repository.
func NewRestrictionRepository(db *sqlx.DB) *RestrictionRepository {
	return &RestrictionRepository{db: db}
}

const restrictionColumns = `id, department_id, academic_year, reason, active, created_by, created_at, revoked_at`

// Upsert ensures a single active restriction per (department, year) pair.
// An existing active row is updated in place, never duplicated. The row lock
// serializes concurrent setters for the same pair.
func (r *RestrictionRepository) Upsert(ctx context.Context, restriction *models.CohortRestriction) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restriction upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	var existingID string
	const selectQuery = `SELECT id FROM cohort_restrictions WHERE department_id = $1 AND academic_year = $2 AND active = TRUE FOR UPDATE`
	if err = tx.GetContext(ctx, &existingID, selectQuery, restriction.DepartmentID, restriction.AcademicYear); err != nil {
		if err != sql.ErrNoRows {
			return fmt.Errorf("lock cohort restriction: %w", err)
		}
		if restriction.ID == "" {
			restriction.ID = uuid.NewString()
		}
		restriction.Active = true
		restriction.CreatedAt = now
		const insertQuery = `INSERT INTO cohort_restrictions (id, department_id, academic_year, reason, active, created_by, created_at)
	VALUES (:id, :department_id, :academic_year, :reason, :active, :created_by, :created_at)`
		if _, err = tx.NamedExecContext(ctx, insertQuery, restriction); err != nil {
			return fmt.Errorf("insert cohort restriction: %w", err)
		}
	} else {
		restriction.ID = existingID
		restriction.Active = true
		const updateQuery = `UPDATE cohort_restrictions SET reason = $2, created_by = $3, revoked_at = NULL WHERE id = $1`
		if _, err = tx.ExecContext(ctx, updateQuery, existingID, restriction.Reason, restriction.CreatedBy); err != nil {
			return fmt.Errorf("update cohort restriction: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit restriction upsert: %w", err)
	}
	return nil
}

// Deactivate lifts a cohort restriction.
func (r *RestrictionRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE cohort_restrictions SET active = FALSE, revoked_at = $2 WHERE id = $1 AND active = TRUE`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate cohort restriction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check restriction deactivate rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindActiveForCohort returns the active restriction for the pair, if any.
func (r *RestrictionRepository) FindActiveForCohort(ctx context.Context, departmentID string, academicYear int) (*models.CohortRestriction, error) {
	query := fmt.Sprintf(`SELECT %s FROM cohort_restrictions
	WHERE department_id = $1 AND academic_year = $2 AND active = TRUE LIMIT 1`, restrictionColumns)
	var restriction models.CohortRestriction
	if err := r.db.GetContext(ctx, &restriction, query, departmentID, academicYear); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find cohort restriction: %w", err)
	}
	return &restriction, nil
}

// List returns restrictions matching the filter (latest first).
func (r *RestrictionRepository) List(ctx context.Context, filter models.RestrictionFilter) ([]models.CohortRestriction, int, error) {
	base := "FROM cohort_restrictions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.AcademicYear > 0 {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "active = TRUE")
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", restrictionColumns, base, size, offset)
	var restrictions []models.CohortRestriction
	if err := r.db.SelectContext(ctx, &restrictions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list cohort restrictions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count cohort restrictions: %w", err)
	}
	return restrictions, total, nil
}
