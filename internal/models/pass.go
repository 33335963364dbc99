package models

import "time"

// PassKind enumerates supported pass categories.
type PassKind string

const (
	PassKindOuting    PassKind = "OUTING"
	PassKindLeave     PassKind = "LEAVE"
	PassKindEmergency PassKind = "EMERGENCY"
)

// PassStatus captures the lifecycle states of a pass request.
type PassStatus string

const (
	PassStatusPending          PassStatus = "PENDING"
	PassStatusMentorApproved   PassStatus = "APPROVED_BY_MENTOR"
	PassStatusDeptHeadApproved PassStatus = "APPROVED_BY_DEPARTMENT_HEAD"
	PassStatusEmergency        PassStatus = "EMERGENCY"
	PassStatusGenerated        PassStatus = "GENERATED"
	PassStatusCompleted        PassStatus = "COMPLETED"
	PassStatusRejected         PassStatus = "REJECTED"
	PassStatusCancelled        PassStatus = "CANCELLED"
)

// PassAction enumerates transitions an actor can request.
type PassAction string

const (
	PassActionApprove  PassAction = "APPROVE"
	PassActionReject   PassAction = "REJECT"
	PassActionCancel   PassAction = "CANCEL"
	PassActionComplete PassAction = "COMPLETE"
)

// Decision is the approve/reject choice submitted by an approver.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// approvalChains lists, per residency, the ordered authority levels a
// request must clear before it is generated. Adding a residency type or an
// extra step is a data change here, not new branching.
var approvalChains = map[Residency][]UserRole{
	ResidencyHostel:     {RoleMentor, RoleDepartmentHead, RoleWarden},
	ResidencyDayScholar: {RoleMentor, RoleDepartmentHead},
}

// chainStatuses maps a cleared-approvals count onto a status. Index 0 is the
// freshly submitted state. The final approval in any chain maps straight to
// GENERATED, so the last role (warden for hostel residents) never gets a
// named status of its own.
var chainStatuses = []PassStatus{
	PassStatusPending,
	PassStatusMentorApproved,
	PassStatusDeptHeadApproved,
}

// ApprovalChain returns the ordered roles required for the residency.
func ApprovalChain(r Residency) []UserRole {
	return approvalChains[r]
}

// Terminal reports whether no further transition is possible.
func (s PassStatus) Terminal() bool {
	switch s {
	case PassStatusCompleted, PassStatusRejected, PassStatusCancelled:
		return true
	}
	return false
}

// chainIndex returns the position of s within the approval walk, or -1 when
// s is not an approval state.
func chainIndex(s PassStatus) int {
	for i, cs := range chainStatuses {
		if cs == s {
			return i
		}
	}
	return -1
}

// RequiredApprover returns the authority level that must act on a request in
// the given state. The second result is false when the state has no pending
// approver (generated, terminal, or emergency handled elsewhere).
func RequiredApprover(s PassStatus, r Residency) (UserRole, bool) {
	chain := approvalChains[r]
	idx := chainIndex(s)
	if idx < 0 || idx >= len(chain) {
		return "", false
	}
	return chain[idx], true
}

// NextStatus resolves the transition table for (current state, residency,
// action). ok is false for any combination the machine does not allow.
func NextStatus(s PassStatus, r Residency, a PassAction) (PassStatus, bool) {
	switch a {
	case PassActionApprove:
		if s == PassStatusEmergency {
			return PassStatusGenerated, true
		}
		chain := approvalChains[r]
		idx := chainIndex(s)
		if idx < 0 || idx >= len(chain) {
			return "", false
		}
		if idx == len(chain)-1 {
			return PassStatusGenerated, true
		}
		// Status names follow the role that just approved, so the next
		// status is looked up by the role at position idx.
		return statusAfterApproval(chain[idx]), true
	case PassActionReject:
		if idx := chainIndex(s); idx >= 0 && idx < len(approvalChains[r]) {
			return PassStatusRejected, true
		}
		return "", false
	case PassActionCancel:
		if s == PassStatusEmergency {
			return PassStatusCancelled, true
		}
		if idx := chainIndex(s); idx >= 0 && idx < len(approvalChains[r]) {
			return PassStatusCancelled, true
		}
		return "", false
	case PassActionComplete:
		if s == PassStatusGenerated {
			return PassStatusCompleted, true
		}
		return "", false
	}
	return "", false
}

func statusAfterApproval(role UserRole) PassStatus {
	switch role {
	case RoleMentor:
		return PassStatusMentorApproved
	case RoleDepartmentHead:
		return PassStatusDeptHeadApproved
	}
	return ""
}

// PassRequest is a student's application to leave campus within a declared
// window. ReturnAt is strictly after DepartAt. OutAt/ReturnedAt are stamped
// by the mobility processor; a request with OutAt set and ReturnedAt unset is
// the student's single active pass.
type PassRequest struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Kind         PassKind   `db:"kind" json:"kind"`
	Reason       string     `db:"reason" json:"reason"`
	DepartAt     time.Time  `db:"depart_at" json:"depart_at"`
	ReturnAt     time.Time  `db:"return_at" json:"return_at"`
	Status       PassStatus `db:"status" json:"status"`
	RejectReason *string    `db:"reject_reason" json:"reject_reason,omitempty"`
	IssuedBy     *string    `db:"issued_by" json:"issued_by,omitempty"`
	OutAt        *time.Time `db:"out_at" json:"out_at,omitempty"`
	ReturnedAt   *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	LateReturn   bool       `db:"late_return" json:"late_return"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Approvals []PassApproval `db:"-" json:"approvals,omitempty"`
}

// PassApproval records one actor's decision in the approval chain.
type PassApproval struct {
	ID        string    `db:"id" json:"id"`
	PassID    string    `db:"pass_id" json:"pass_id"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	Role      UserRole  `db:"role" json:"role"`
	Decision  Decision  `db:"decision" json:"decision"`
	Reason    *string   `db:"reason" json:"reason,omitempty"`
	Delegated bool      `db:"delegated" json:"delegated"`
	DecidedAt time.Time `db:"decided_at" json:"decided_at"`
}

// PassFilter constrains pass listing queries.
type PassFilter struct {
	StudentID string
	Status    []PassStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}
