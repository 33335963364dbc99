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

// TrustRepository owns the trust ledger and the cached score/cooldown on the
// student row. Every mutation appends a history row and updates the cache in
// one transaction, serialized per student via a row lock, so the two can
// never be observed out of agreement.
type TrustRepository struct {
	db *sqlx.DB
}

// NewTrustRepository constructs the repository.
func NewTrustRepository(db *sqlx.DB) *TrustRepository {
	return &TrustRepository{db: db}
}

// AdjustParams describes one trust mutation.
type AdjustParams struct {
	StudentID string
	PassID    *string
	Kind      models.TrustEventKind
	// Delta is applied relative to the current score unless Absolute is set.
	Delta    int
	Absolute *int
	// BumpCooldown increments the violation tally alongside the score change.
	BumpCooldown  bool
	ResetCooldown bool
	Reason        string
	ActorID       string
}

// Adjust applies a trust mutation and returns the appended ledger entry.
func (r *TrustRepository) Adjust(ctx context.Context, params AdjustParams) (entry *models.TrustHistoryEntry, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin trust adjustment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		TrustScore int `db:"trust_score"`
		Cooldown   int `db:"cooldown"`
	}
	const lockQuery = `SELECT trust_score, cooldown FROM students WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, params.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock student row: %w", err)
	}

	newScore := current.TrustScore + params.Delta
	if params.Absolute != nil {
		newScore = *params.Absolute
	}
	newScore = models.ClampTrustScore(newScore)

	cooldown := current.Cooldown
	if params.BumpCooldown {
		cooldown++
	}
	if params.ResetCooldown {
		cooldown = 0
	}

	now := time.Now().UTC()
	entry = &models.TrustHistoryEntry{
		ID:        uuid.NewString(),
		StudentID: params.StudentID,
		PassID:    params.PassID,
		Kind:      params.Kind,
		PrevScore: current.TrustScore,
		NewScore:  newScore,
		Reason:    params.Reason,
		ActorID:   params.ActorID,
		CreatedAt: now,
	}
	const insertQuery = `INSERT INTO trust_history (id, student_id, pass_id, kind, prev_score, new_score, reason, actor_id, created_at)
	VALUES (:id, :student_id, :pass_id, :kind, :prev_score, :new_score, :reason, :actor_id, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, entry); err != nil {
		return nil, fmt.Errorf("append trust history: %w", err)
	}

	const updateQuery = `UPDATE students SET trust_score = $2, cooldown = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, params.StudentID, newScore, cooldown, now); err != nil {
		return nil, fmt.Errorf("update cached trust score: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit trust adjustment: %w", err)
	}
	return entry, nil
}

// History returns the ledger for a student, newest first.
func (r *TrustRepository) History(ctx context.Context, studentID string, limit int) ([]models.TrustHistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, student_id, pass_id, kind, prev_score, new_score, reason, actor_id, created_at
	FROM trust_history WHERE student_id = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var entries []models.TrustHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("list trust history: %w", err)
	}
	return entries, nil
}
