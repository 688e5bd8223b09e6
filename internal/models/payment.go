package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates the accepted tender types.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodUPI          PaymentMethod = "UPI"
	PaymentMethodOnline       PaymentMethod = "ONLINE"
)

// Valid reports whether m is an accepted method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodUPI, PaymentMethodOnline:
		return true
	default:
		return false
	}
}

// Payment is an immutable ledger row.
type Payment struct {
	ID         string          `db:"id" json:"id"`
	StudentID  string          `db:"student_id" json:"student_id"`
	FeeEntryID string          `db:"fee_entry_id" json:"fee_entry_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Method     PaymentMethod   `db:"method" json:"method"`
	RecordedBy *string         `db:"recorded_by" json:"recorded_by,omitempty"`
	PaidAt     time.Time       `db:"paid_at" json:"paid_at"`
}

// PaymentDetail joins a payment with the names printed on receipts.
type PaymentDetail struct {
	Payment
	StudentName  string `db:"student_name" json:"student_name"`
	FeeEntryName string `db:"fee_entry_name" json:"fee_entry_name"`
}
