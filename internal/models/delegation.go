package models

import "time"

// Delegation is a time-bounded transfer of one approver's authority to a
// proxy. At most one active delegation exists per delegator; window bounds
// are inclusive dates.
type Delegation struct {
	ID          string     `db:"id" json:"id"`
	DelegatorID string     `db:"delegator_id" json:"delegator_id"`
	ProxyID     string     `db:"proxy_id" json:"proxy_id"`
	StartsOn    time.Time  `db:"starts_on" json:"starts_on"`
	EndsOn      time.Time  `db:"ends_on" json:"ends_on"`
	Active      bool       `db:"active" json:"active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	RevokedAt   *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// Covers reports whether the delegation window contains the given instant.
func (d Delegation) Covers(at time.Time) bool {
	day := at.Truncate(24 * time.Hour)
	return !day.Before(d.StartsOn.Truncate(24*time.Hour)) && !day.After(d.EndsOn.Truncate(24*time.Hour))
}

// DelegationView is a delegation augmented with its computed conflict state.
// InConflict is derived at read time from approved leaves overlapping the
// window; it is advisory and never revokes the delegation by itself.
type DelegationView struct {
	Delegation
	DelegatorRole UserRole `db:"delegator_role" json:"delegator_role"`
	ProxyName     string   `db:"proxy_name" json:"proxy_name"`
	InConflict    bool     `db:"in_conflict" json:"in_conflict"`
}
