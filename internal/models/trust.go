package models

import "time"

// TrustEventKind classifies trust ledger entries.
type TrustEventKind string

const (
	TrustEventManual        TrustEventKind = "MANUAL"
	TrustEventViolation     TrustEventKind = "VIOLATION"
	TrustEventRestore       TrustEventKind = "RESTORE"
	TrustEventCooldownReset TrustEventKind = "COOLDOWN_RESET"
)

// TrustHistoryEntry is one append-only row of a student's trust ledger.
// Rows are never mutated or deleted. PassID is set for automatic penalties
// and nil for manual overrides. A cooldown reset is trust-neutral: previous
// and new score are equal, the row exists for the audit trail.
type TrustHistoryEntry struct {
	ID        string         `db:"id" json:"id"`
	StudentID string         `db:"student_id" json:"student_id"`
	PassID    *string        `db:"pass_id" json:"pass_id,omitempty"`
	Kind      TrustEventKind `db:"kind" json:"kind"`
	PrevScore int            `db:"prev_score" json:"prev_score"`
	NewScore  int            `db:"new_score" json:"new_score"`
	Reason    string         `db:"reason" json:"reason"`
	ActorID   string         `db:"actor_id" json:"actor_id"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// ClampTrustScore bounds a score to the valid [0,100] range.
func ClampTrustScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
