package models

import "time"

// TargetGroup defines who receives an announcement or bulk notification.
type TargetGroup string

const (
	TargetGroupAll      TargetGroup = "ALL"
	TargetGroupTeachers TargetGroup = "TEACHERS"
	TargetGroupStudents TargetGroup = "STUDENTS"
	TargetGroupParents  TargetGroup = "PARENTS"
)

// Roles maps the group to the user roles it addresses.
func (g TargetGroup) Roles() []UserRole {
	switch g {
	case TargetGroupTeachers:
		return []UserRole{RoleTeacher}
	case TargetGroupStudents:
		return []UserRole{RoleStudent}
	case TargetGroupParents:
		return []UserRole{RoleParent}
	case TargetGroupAll:
		return []UserRole{RoleTeacher, RoleStudent, RoleParent}
	default:
		return nil
	}
}

// Announcement represents a persisted announcement row.
type Announcement struct {
	ID          string      `db:"id" json:"id"`
	Title       string      `db:"title" json:"title"`
	Content     string      `db:"content" json:"content"`
	TargetGroup TargetGroup `db:"target_group" json:"target_group"`
	CreatedBy   *string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// Message is the portal copy of a notification addressed to one user.
type Message struct {
	ID          string    `db:"id" json:"id"`
	SenderID    *string   `db:"sender_id" json:"sender_id,omitempty"`
	RecipientID string    `db:"recipient_id" json:"recipient_id"`
	Content     string    `db:"content" json:"content"`
	SentAt      time.Time `db:"sent_at" json:"sent_at"`
}

// MessageView adds display names for inbox listings.
type MessageView struct {
	Message
	SenderName    *string `db:"sender_name" json:"sender_name,omitempty"`
	RecipientName string  `db:"recipient_name" json:"recipient_name"`
}
