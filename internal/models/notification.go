package models

import "time"

// Channel is an outbound delivery medium.
type Channel string

const (
	ChannelPush     Channel = "PUSH"
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelEmail    Channel = "EMAIL"
)

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPush, ChannelSMS, ChannelWhatsApp, ChannelEmail:
		return true
	default:
		return false
	}
}

// EventKind names the logical event behind a notification.
type EventKind string

const (
	EventFeeReminder           EventKind = "FEE_REMINDER"
	EventAttendanceMark        EventKind = "ATTENDANCE_MARK"
	EventAnnouncementPublished EventKind = "ANNOUNCEMENT_PUBLISHED"
	EventDirectMessage         EventKind = "DIRECT_MESSAGE"
)

// Valid reports whether k is a supported event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventFeeReminder, EventAttendanceMark, EventAnnouncementPublished, EventDirectMessage:
		return true
	default:
		return false
	}
}

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	DeliverySent          DeliveryStatus = "SENT"
	DeliveryFailed        DeliveryStatus = "FAILED"
	DeliverySkipped       DeliveryStatus = "SKIPPED"
	DeliveryNotConfigured DeliveryStatus = "NOT_CONFIGURED"
)

// Audience marks whether a delivery went to the primary recipient or a guardian.
type Audience string

const (
	AudiencePrimary  Audience = "PRIMARY"
	AudienceGuardian Audience = "GUARDIAN"
)

// Contact holds the addressable fields of a user.
type Contact struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Role        UserRole `json:"role"`
	Email       string   `json:"-"`
	PhoneNumber string   `json:"-"`
	DeviceToken string   `json:"-"`
}

// ContactFromUser copies the delivery fields of u.
func ContactFromUser(u User) Contact {
	c := Contact{UserID: u.ID, Name: u.Name, Role: u.Role, Email: u.Email}
	if u.PhoneNumber != nil {
		c.PhoneNumber = *u.PhoneNumber
	}
	if u.DeviceToken != nil {
		c.DeviceToken = *u.DeviceToken
	}
	return c
}

// Recipient is a primary addressee with an optional linked guardian.
type Recipient struct {
	Contact
	Guardian *Contact `json:"guardian,omitempty"`
}

// RecipientFromProfile builds a recipient from a student and their guardian.
func RecipientFromProfile(p StudentProfile) Recipient {
	r := Recipient{Contact: ContactFromUser(p.Student)}
	if p.Guardian != nil {
		g := ContactFromUser(*p.Guardian)
		r.Guardian = &g
	}
	return r
}

// Payload is the message content. Guardian fields fall back to a rephrased
// copy of Title and Body when empty.
type Payload struct {
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	GuardianTitle string            `json:"guardian_title,omitempty"`
	GuardianBody  string            `json:"guardian_body,omitempty"`
	TemplateID    string            `json:"template_id,omitempty"`
	Data          map[string]string `json:"data,omitempty"`
}

// NotifyRequest describes a single-channel fan-out.
type NotifyRequest struct {
	Kind         EventKind
	Channel      Channel
	Recipients   []Recipient
	Payload      Payload
	GuardianOnly bool
}

// Outcome records what happened to one delivery.
type Outcome struct {
	UserID   string         `json:"user_id"`
	Name     string         `json:"name"`
	Audience Audience       `json:"audience"`
	Channel  Channel        `json:"channel"`
	Status   DeliveryStatus `json:"status"`
	Error    string         `json:"error,omitempty"`
}

// NotificationResult aggregates per-delivery outcomes of one or more dispatches.
type NotificationResult struct {
	Status   string    `json:"status"`
	Outcomes []Outcome `json:"outcomes"`
}

// Counts returns the number of sent, failed and skipped deliveries. Not
// configured deliveries count as skipped.
func (r NotificationResult) Counts() (sent, failed, skipped int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case DeliverySent:
			sent++
		case DeliveryFailed:
			failed++
		default:
			skipped++
		}
	}
	return sent, failed, skipped
}

// Merge appends the outcomes of other and recomputes Status.
func (r NotificationResult) Merge(other NotificationResult) NotificationResult {
	out := NotificationResult{Outcomes: append(append([]Outcome{}, r.Outcomes...), other.Outcomes...)}
	out.Status = SummariseOutcomes(out.Outcomes)
	return out
}

// Notification summary labels.
const (
	NotificationStatusNone    = "NONE"
	NotificationStatusSent    = "SENT"
	NotificationStatusPartial = "PARTIAL"
	NotificationStatusFailed  = "FAILED"
	NotificationStatusSkipped = "SKIPPED"
)

// SummariseOutcomes reduces outcomes to a single status label.
func SummariseOutcomes(outcomes []Outcome) string {
	if len(outcomes) == 0 {
		return NotificationStatusNone
	}
	var sent, other int
	for _, o := range outcomes {
		if o.Status == DeliverySent {
			sent++
		} else if o.Status == DeliveryFailed {
			other++
		}
	}
	switch {
	case sent == len(outcomes):
		return NotificationStatusSent
	case sent > 0:
		return NotificationStatusPartial
	case other > 0:
		return NotificationStatusFailed
	default:
		return NotificationStatusSkipped
	}
}

// BatchStatus tracks the lifecycle of an asynchronous bulk dispatch.
type BatchStatus string

const (
	BatchStatusQueued    BatchStatus = "QUEUED"
	BatchStatusRunning   BatchStatus = "RUNNING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// NotificationBatch is the persisted record of a bulk dispatch.
type NotificationBatch struct {
	ID           string      `db:"id" json:"id"`
	Kind         EventKind   `db:"kind" json:"kind"`
	Channel      Channel     `db:"channel" json:"channel"`
	TargetGroup  TargetGroup `db:"target_group" json:"target_group"`
	Subject      string      `db:"subject" json:"subject"`
	Body         string      `db:"body" json:"body"`
	Status       BatchStatus `db:"status" json:"status"`
	SentCount    int         `db:"sent_count" json:"sent_count"`
	FailedCount  int         `db:"failed_count" json:"failed_count"`
	SkippedCount int         `db:"skipped_count" json:"skipped_count"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    *string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	StartedAt    *time.Time  `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
}
