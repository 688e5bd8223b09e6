package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeScopeKind distinguishes course-bound charges from session-wide ones.
type FeeScopeKind string

const (
	FeeScopeCourse  FeeScopeKind = "COURSE"
	FeeScopeSession FeeScopeKind = "SESSION"
)

// FeeScope says which students a catalog entry applies to. A COURSE scope
// carries the course id; a SESSION scope applies to every student assigned to
// the entry's session.
type FeeScope struct {
	Kind     FeeScopeKind `json:"kind"`
	CourseID string       `json:"course_id,omitempty"`
}

// CourseScoped builds a scope applying to students enrolled in courseID.
func CourseScoped(courseID string) FeeScope {
	return FeeScope{Kind: FeeScopeCourse, CourseID: courseID}
}

// SessionScoped builds a scope applying session-wide.
func SessionScoped() FeeScope {
	return FeeScope{Kind: FeeScopeSession}
}

// IsCourse reports whether the scope is tied to a course.
func (s FeeScope) IsCourse() bool { return s.Kind == FeeScopeCourse }

// FeeEntry is a charge obligation in the fee catalog.
type FeeEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   time.Time       `json:"due_date"`
	SessionID string          `json:"session_id"`
	Scope     FeeScope        `json:"scope"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FeeEntryFilter narrows catalog listings.
type FeeEntryFilter struct {
	SessionID string
	CourseID  string
}

// FeeStatus is the derived balance view for one student.
type FeeStatus struct {
	StudentID   string          `json:"student_id"`
	TotalDue    decimal.Decimal `json:"total_due"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Balance     decimal.Decimal `json:"balance"`
	DueDate     time.Time       `json:"due_date"`
	PendingDays int             `json:"pending_days"`
	Overdue     bool            `json:"overdue"`
}

// StudentFeeStatus is a report row pairing a fee status with student details.
type StudentFeeStatus struct {
	FeeStatus
	StudentName     string  `json:"student_name"`
	PhoneNumber     *string `json:"phone_number,omitempty"`
	LatestPaymentID *string `json:"latest_payment_id,omitempty"`
}
