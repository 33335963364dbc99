package models

import "time"

// CohortRestriction blocks every student of a (department, academic year)
// pair. At most one active row exists per pair; setting it again updates the
// existing row instead of duplicating.
type CohortRestriction struct {
	ID           string     `db:"id" json:"id"`
	DepartmentID string     `db:"department_id" json:"department_id"`
	AcademicYear int        `db:"academic_year" json:"academic_year"`
	Reason       string     `db:"reason" json:"reason"`
	Active       bool       `db:"active" json:"active"`
	CreatedBy    string     `db:"created_by" json:"created_by"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	RevokedAt    *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// RestrictionCheck is the aggregated verdict consulted at submission time
// and again at the gate. Exactly one of the reasons is populated when
// Blocked is true.
type RestrictionCheck struct {
	Blocked       bool               `json:"blocked"`
	HardBlocked   bool               `json:"hard_blocked"`
	Cohort        *CohortRestriction `json:"cohort,omitempty"`
	CooldownAtMax bool               `json:"cooldown_at_max"`
	Cooldown      int                `json:"cooldown"`
	CacheHit      bool               `json:"-"`
}

// RestrictionFilter constrains restriction listings.
type RestrictionFilter struct {
	DepartmentID string
	AcademicYear int
	ActiveOnly   bool
	Page         int
	PageSize     int
}
