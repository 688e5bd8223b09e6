package dto

import "github.com/noah-isme/sma-fee-api/internal/models"

// PublishAnnouncementRequest creates an announcement and notifies its audience.
// Channel defaults to push.
type PublishAnnouncementRequest struct {
	Title       string             `json:"title" validate:"required,max=150"`
	Content     string             `json:"content" validate:"required"`
	TargetGroup models.TargetGroup `json:"target_group" validate:"required,target_group"`
	Channel     models.Channel     `json:"channel,omitempty" validate:"omitempty,channel"`
}

// AnnouncementPublished is returned from a publish call. Batch is nil when the
// notification could not be queued.
type AnnouncementPublished struct {
	Announcement      models.Announcement       `json:"announcement"`
	Batch             *models.NotificationBatch `json:"batch,omitempty"`
	NotificationError string                    `json:"notification_error,omitempty"`
}

// BulkNotifyRequest queues a notification for every member of a target group.
type BulkNotifyRequest struct {
	Kind        models.EventKind   `json:"kind,omitempty"`
	Channel     models.Channel     `json:"channel" validate:"required,channel"`
	TargetGroup models.TargetGroup `json:"target_group" validate:"required,target_group"`
	Subject     string             `json:"subject" validate:"required,max=150"`
	Body        string             `json:"body" validate:"required"`
}

// DirectMessageRequest sends a message about a student to the student and
// their guardian. Without a channel only portal messages are written.
type DirectMessageRequest struct {
	StudentID string          `json:"student_id" validate:"required,uuid"`
	Subject   string          `json:"subject" validate:"required,max=150"`
	Body      string          `json:"body" validate:"required"`
	Channel   *models.Channel `json:"channel,omitempty" validate:"omitempty,channel"`
}

// DirectMessageResult lists the portal messages written and any dispatch outcome.
type DirectMessageResult struct {
	Messages     []models.Message           `json:"messages"`
	Notification *models.NotificationResult `json:"notification,omitempty"`
}
