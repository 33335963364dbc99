package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin          UserRole = "ADMIN"
	RoleDepartmentHead UserRole = "DEPARTMENT_HEAD"
	RoleMentor         UserRole = "MENTOR"
	RoleWarden         UserRole = "WARDEN"
	RoleStudent        UserRole = "STUDENT"
	RoleGateDevice     UserRole = "GATE_DEVICE"
)

// SeniorStaffRoles are the roles allowed to wield department-head-level
// authority: issuing emergency passes, setting hard blocks, adjusting trust
// and resetting cooldowns.
var SeniorStaffRoles = []UserRole{RoleDepartmentHead, RoleWarden, RoleAdmin}

// User represents an application user stored in the users table. Staff rows
// carry the department they belong to; students reference their own row in
// the students table via StudentID.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	DepartmentID *string    `db:"department_id" json:"department_id,omitempty"`
	StudentID    *string    `db:"student_id" json:"student_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
