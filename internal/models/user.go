package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
	RoleParent  UserRole = "PARENT"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table. Students carry
// an optional guardian link and academic session assignment.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	PhoneNumber  *string   `db:"phone_number" json:"phone_number,omitempty"`
	DeviceToken  *string   `db:"device_token" json:"-"`
	ParentID     *string   `db:"parent_id" json:"parent_id,omitempty"`
	SessionID    *string   `db:"session_id" json:"session_id,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentProfile bundles the fields the fee calculator and dispatcher need.
type StudentProfile struct {
	Student   User     `json:"student"`
	Guardian  *User    `json:"guardian,omitempty"`
	CourseIDs []string `json:"course_ids"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Roles    []UserRole
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
