package dto

import "github.com/noah-isme/sma-fee-api/internal/models"

// AttendanceMark is one student's status for the day.
type AttendanceMark struct {
	StudentID string                  `json:"student_id" validate:"required,uuid"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// MarkAttendanceRequest marks a batch of students for a single date.
type MarkAttendanceRequest struct {
	Date    string           `json:"date" validate:"required,datetime=2006-01-02"`
	Records []AttendanceMark `json:"records" validate:"required,min=1,dive"`
}

// AttendanceMarkResult pairs a stored record with the notifications it caused.
type AttendanceMarkResult struct {
	Attendance   models.Attendance         `json:"attendance"`
	Notification models.NotificationResult `json:"notification"`
}
