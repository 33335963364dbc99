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

// DelegationRepository persists delegations. Conflict with the proxy's
// approved leaves is computed in the read queries, never stored, so it can
// not go stale.
type DelegationRepository struct {
	db *sqlx.DB
}

// NewDelegationRepository constructs the repository.
func NewDelegationRepository(db *sqlx.DB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

const delegationColumns = `id, delegator_id, proxy_id, starts_on, ends_on, active, created_at, revoked_at`

// Replace deactivates any prior active delegation for the delegator and
// inserts the new one in a single transaction.
func (r *DelegationRepository) Replace(ctx context.Context, delegation *models.Delegation) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delegation replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const deactivate = `UPDATE delegations SET active = FALSE, revoked_at = $2 WHERE delegator_id = $1 AND active = TRUE`
	if _, err = tx.ExecContext(ctx, deactivate, delegation.DelegatorID, now); err != nil {
		return fmt.Errorf("deactivate prior delegation: %w", err)
	}

	if delegation.ID == "" {
		delegation.ID = uuid.NewString()
	}
	delegation.Active = true
	delegation.CreatedAt = now
	const insert = `INSERT INTO delegations (id, delegator_id, proxy_id, starts_on, ends_on, active, created_at)
	VALUES (:id, :delegator_id, :proxy_id, :starts_on, :ends_on, :active, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, delegation); err != nil {
		return fmt.Errorf("insert delegation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delegation replace: %w", err)
	}
	return nil
}

// Revoke deactivates the delegator's current delegation.
func (r *DelegationRepository) Revoke(ctx context.Context, delegatorID string) error {
	const query = `UPDATE delegations SET active = FALSE, revoked_at = $2 WHERE delegator_id = $1 AND active = TRUE`
	result, err := r.db.ExecContext(ctx, query, delegatorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke delegation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delegation revoke rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindActiveForDelegator returns the delegator's current delegation, if any.
func (r *DelegationRepository) FindActiveForDelegator(ctx context.Context, delegatorID string) (*models.Delegation, error) {
	query := fmt.Sprintf(`SELECT %s FROM delegations WHERE delegator_id = $1 AND active = TRUE LIMIT 1`, delegationColumns)
	var delegation models.Delegation
	if err := r.db.GetContext(ctx, &delegation, query, delegatorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find delegation for delegator: %w", err)
	}
	return &delegation, nil
}

// ListActiveForProxy returns delegations currently naming the proxy whose
// window covers the given day. Used by authority resolution on every advance
// call; never cached.
func (r *DelegationRepository) ListActiveForProxy(ctx context.Context, proxyID string, at time.Time) ([]models.Delegation, error) {
	query := fmt.Sprintf(`SELECT %s FROM delegations
	WHERE proxy_id = $1 AND active = TRUE AND starts_on <= $2 AND ends_on >= $2`, delegationColumns)
	var delegations []models.Delegation
	if err := r.db.SelectContext(ctx, &delegations, query, proxyID, at); err != nil {
		return nil, fmt.Errorf("list delegations for proxy: %w", err)
	}
	return delegations, nil
}

// ListWithConflicts returns active delegations joined with the delegator's
// role, the proxy's name and the computed conflict flag: an approved leave
// of the proxy overlapping the delegation window.
func (r *DelegationRepository) ListWithConflicts(ctx context.Context) ([]models.DelegationView, error) {
	const query = `SELECT d.id, d.delegator_id, d.proxy_id, d.starts_on, d.ends_on, d.active, d.created_at, d.revoked_at,
	u.role AS delegator_role,
	p.full_name AS proxy_name,
	EXISTS (
		SELECT 1 FROM leaves l
		WHERE l.staff_id = d.proxy_id AND l.status = 'APPROVED'
		AND l.starts_on <= d.ends_on AND l.ends_on >= d.starts_on
	) AS in_conflict
	FROM delegations d
	JOIN users u ON u.id = d.delegator_id
	JOIN users p ON p.id = d.proxy_id
	WHERE d.active = TRUE
	ORDER BY d.created_at DESC`
	var views []models.DelegationView
	if err := r.db.SelectContext(ctx, &views, query); err != nil {
		return nil, fmt.Errorf("list delegations with conflicts: %w", err)
	}
	return views, nil
}

// HasApprovedLeaveOverlap reports whether the staff member has an approved
// leave overlapping [startsOn, endsOn].
func (r *DelegationRepository) HasApprovedLeaveOverlap(ctx context.Context, staffID string, startsOn, endsOn time.Time) (bool, error) {
	const query = `SELECT COUNT(*) FROM leaves
	WHERE staff_id = $1 AND status = 'APPROVED' AND starts_on <= $3 AND ends_on >= $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, staffID, startsOn, endsOn); err != nil {
		return false, fmt.Errorf("check leave overlap: %w", err)
	}
	return count > 0, nil
}
