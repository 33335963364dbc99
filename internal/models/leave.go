package models

import "time"

// LeaveStatus captures the review states of a staff leave.
type LeaveStatus string

const (
	LeaveStatusPending   LeaveStatus = "PENDING"
	LeaveStatusApproved  LeaveStatus = "APPROVED"
	LeaveStatusRejected  LeaveStatus = "REJECTED"
	LeaveStatusCancelled LeaveStatus = "CANCELLED"
)

// LeaveKind enumerates leave categories.
type LeaveKind string

const (
	LeaveKindCasual  LeaveKind = "CASUAL"
	LeaveKindMedical LeaveKind = "MEDICAL"
	LeaveKindOnDuty  LeaveKind = "ON_DUTY"
)

// Leave is a staff absence window. Approved leaves drive the delegation
// conflict computation and whether an approver is on duty.
type Leave struct {
	ID         string      `db:"id" json:"id"`
	StaffID    string      `db:"staff_id" json:"staff_id"`
	Kind       LeaveKind   `db:"kind" json:"kind"`
	StartsOn   time.Time   `db:"starts_on" json:"starts_on"`
	EndsOn     time.Time   `db:"ends_on" json:"ends_on"`
	Reason     string      `db:"reason" json:"reason"`
	Status     LeaveStatus `db:"status" json:"status"`
	ReviewedBy *string     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time  `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}
