package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

type paymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindDetail(ctx context.Context, id string) (*models.PaymentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error)
}

type feeStatusTracker interface {
	Calculate(ctx context.Context, studentID string) (models.FeeStatus, error)
	Invalidate(ctx context.Context, studentID string)
	Remind(ctx context.Context, studentID string, status models.FeeStatus) models.NotificationResult
}

// LedgerService records payments and follows each one with a balance
// recalculation and, when money is still owed, a reminder.
type LedgerService struct {
	payments  paymentStore
	fees      feeStatusTracker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLedgerService constructs the ledger.
func NewLedgerService(payments paymentStore, fees feeStatusTracker, validate *validator.Validate, logger *zap.Logger) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{payments: payments, fees: fees, validator: validate, logger: logger}
}

// RecordPayment commits a payment and reports the student's new balance. The
// payment stands even when the follow-up reminder cannot be delivered.
func (s *LedgerService) RecordPayment(ctx context.Context, req dto.RecordPaymentRequest, recordedBy string) (*dto.PaymentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	if !req.Method.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported payment method")
	}

	payment := &models.Payment{
		StudentID:  req.StudentID,
		FeeEntryID: req.FeeEntryID,
		Amount:     req.Amount,
		Method:     req.Method,
	}
	if recordedBy != "" {
		payment.RecordedBy = &recordedBy
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		switch {
		case errors.Is(err, repository.ErrUnknownStudent):
			return nil, appErrors.Validation(err, "student does not exist")
		case errors.Is(err, repository.ErrUnknownFeeEntry):
			return nil, appErrors.Validation(err, "fee entry does not exist")
		default:
			return nil, appErrors.Internal(err, "failed to record payment")
		}
	}
	s.logger.Info("payment recorded",
		zap.String("payment_id", payment.ID),
		zap.String("student_id", payment.StudentID),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)

	result := &dto.PaymentResult{
		Payment:      *payment,
		Notification: models.NotificationResult{Status: models.NotificationStatusNone, Outcomes: []models.Outcome{}},
	}

	s.fees.Invalidate(ctx, payment.StudentID)
	status, err := s.fees.Calculate(ctx, payment.StudentID)
	if err != nil {
		s.logger.Error("fee status after payment failed", zap.String("student_id", payment.StudentID), zap.Error(err))
		return result, nil
	}
	result.FeeStatus = &status
	result.Notification = s.fees.Remind(ctx, payment.StudentID, status)
	return result, nil
}

// ListPayments returns a student's payments, newest first.
func (s *LedgerService) ListPayments(ctx context.Context, studentID string) ([]models.Payment, error) {
	payments, err := s.payments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list payments")
	}
	return payments, nil
}

// GetPayment returns one payment with its student and fee entry names.
func (s *LedgerService) GetPayment(ctx context.Context, id string) (*models.PaymentDetail, error) {
	detail, err := s.payments.FindDetail(ctx, id)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Internal(err, "failed to load payment")
	}
	return detail, nil
}
