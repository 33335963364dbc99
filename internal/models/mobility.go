package models

import "time"

// MobilityAction is the direction of a gate scan.
type MobilityAction string

const (
	MobilityExit  MobilityAction = "EXIT"
	MobilityEntry MobilityAction = "ENTRY"
)

// MobilityEvent is one gate-reported scan. PassID is nil for anomalous
// events (an entry with no matching active pass); those rows are kept and
// flagged rather than dropped, the gate hardware cannot retry.
type MobilityEvent struct {
	ID         string         `db:"id" json:"id"`
	StudentID  string         `db:"student_id" json:"student_id"`
	Action     MobilityAction `db:"action" json:"action"`
	OccurredAt time.Time      `db:"occurred_at" json:"occurred_at"`
	PassID     *string        `db:"pass_id" json:"pass_id,omitempty"`
	Flagged    bool           `db:"flagged" json:"flagged"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// AdmissionCheck is the gate device's read of whether a student may pass.
type AdmissionCheck struct {
	StudentID string  `json:"student_id"`
	Admitted  bool    `json:"admitted"`
	PassID    *string `json:"pass_id,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}
