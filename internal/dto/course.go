package dto

import "github.com/noah-isme/sma-fee-api/internal/models"

// CourseRequest creates or updates a course.
type CourseRequest struct {
	Name      string   `json:"name" validate:"required,max=120"`
	Subjects  []string `json:"subjects" validate:"omitempty,dive,required"`
	TeacherID *string  `json:"teacher_id,omitempty" validate:"omitempty,uuid"`
}

// SessionRequest creates or updates an academic session. Status defaults to ACTIVE.
type SessionRequest struct {
	Name      string               `json:"name" validate:"required,max=80"`
	StartDate string               `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string               `json:"end_date" validate:"required,datetime=2006-01-02"`
	Status    models.SessionStatus `json:"status,omitempty"`
}

// AssignSessionRequest moves a student into a session, or out of any session
// when SessionID is null.
type AssignSessionRequest struct {
	SessionID *string `json:"session_id"`
}
