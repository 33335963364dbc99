package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-pass-api/internal/models"
)

// MobilityRepository stores gate-reported scan events. Rows are append-only;
// anomalous events stay flagged rather than deleted.
type MobilityRepository struct {
	db *sqlx.DB
}

// NewMobilityRepository constructs the repository.
func NewMobilityRepository(db *sqlx.DB) *MobilityRepository {
	return &MobilityRepository{db: db}
}

const mobilityColumns = `id, student_id, action, occurred_at, pass_id, flagged, created_at`

// Create inserts a mobility event.
func (r *MobilityRepository) Create(ctx context.Context, event *models.MobilityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO mobility_events (id, student_id, action, occurred_at, pass_id, flagged, created_at)
	VALUES (:id, :student_id, :action, :occurred_at, :pass_id, :flagged, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create mobility event: %w", err)
	}
	return nil
}

// ListForPass returns the events realizing a pass, oldest first.
func (r *MobilityRepository) ListForPass(ctx context.Context, passID string) ([]models.MobilityEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM mobility_events WHERE pass_id = $1 ORDER BY occurred_at ASC`, mobilityColumns)
	var events []models.MobilityEvent
	if err := r.db.SelectContext(ctx, &events, query, passID); err != nil {
		return nil, fmt.Errorf("list mobility events for pass: %w", err)
	}
	return events, nil
}

// ListFlagged returns anomalous events (unlinked scans), newest first.
func (r *MobilityRepository) ListFlagged(ctx context.Context, limit int) ([]models.MobilityEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM mobility_events WHERE flagged = TRUE ORDER BY occurred_at DESC LIMIT %d`, mobilityColumns, limit)
	var events []models.MobilityEvent
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("list flagged mobility events: %w", err)
	}
	return events, nil
}
