package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

// FeeEntryRequest creates or replaces a fee catalog entry. A nil CourseID makes
// the entry session-wide.
type FeeEntryRequest struct {
	Name      string          `json:"name" validate:"required,max=150"`
	Amount    decimal.Decimal `json:"amount" swaggertype:"string"`
	DueDate   string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	SessionID string          `json:"session_id" validate:"required,uuid"`
	CourseID  *string         `json:"course_id,omitempty" validate:"omitempty,uuid"`
}

// RecordPaymentRequest records one payment against a fee entry.
type RecordPaymentRequest struct {
	StudentID  string               `json:"student_id" validate:"required,uuid"`
	FeeEntryID string               `json:"fee_entry_id" validate:"required,uuid"`
	Amount     decimal.Decimal      `json:"amount" swaggertype:"string"`
	Method     models.PaymentMethod `json:"method" validate:"required"`
}

// PaymentResult is returned after a payment has been committed. FeeStatus is
// nil when the balance could not be recomputed.
type PaymentResult struct {
	Payment      models.Payment            `json:"payment"`
	FeeStatus    *models.FeeStatus         `json:"fee_status"`
	Notification models.NotificationResult `json:"notification"`
}

// FeeReminderRequest selects the channel for a manual reminder.
type FeeReminderRequest struct {
	Channel models.Channel `json:"channel"`
}

// FeeReminderResponse reports the balance the reminder was based on.
type FeeReminderResponse struct {
	FeeStatus    models.FeeStatus          `json:"fee_status"`
	Notification models.NotificationResult `json:"notification"`
}

// ReceiptLink points at a generated receipt.
type ReceiptLink struct {
	PaymentID string    `json:"payment_id"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
