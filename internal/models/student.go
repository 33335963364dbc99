package models

import "time"

// Residency distinguishes hostel residents from day scholars. The approval
// chain a pass request walks depends on it.
type Residency string

const (
	ResidencyHostel     Residency = "HOSTEL"
	ResidencyDayScholar Residency = "DAY_SCHOLAR"
)

// Student represents a learner as seen by the pass engine. TrustScore is a
// cache of the trust ledger replay and must always agree with it; both are
// written in the same transaction.
type Student struct {
	ID           string    `db:"id" json:"id"`
	RollNo       string    `db:"roll_no" json:"roll_no"`
	FullName     string    `db:"full_name" json:"full_name"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	AcademicYear int       `db:"academic_year" json:"academic_year"`
	Residency    Residency `db:"residency" json:"residency"`
	MentorID     string    `db:"mentor_id" json:"mentor_id"`
	TrustScore   int       `db:"trust_score" json:"trust_score"`
	HardBlocked  bool      `db:"hard_blocked" json:"hard_blocked"`
	Cooldown     int       `db:"cooldown" json:"cooldown"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	DepartmentID string
	AcademicYear int
	Residency    Residency
	Search       string
	Page         int
	PageSize     int
}
