package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

// paymentLedgerStub stores payments and feeds their sum back to the fee
// status calculator, as the payments table does.
type paymentLedgerStub struct {
	totals    *paymentTotalsStub
	createErr error
	created   []models.Payment
}

func (p *paymentLedgerStub) Create(_ context.Context, payment *models.Payment) error {
	if p.createErr != nil {
		return p.createErr
	}
	payment.ID = "pay-1"
	payment.PaidAt = time.Now()
	p.created = append(p.created, *payment)
	p.totals.totals[payment.StudentID] = p.totals.totals[payment.StudentID].Add(payment.Amount)
	return nil
}

func (p *paymentLedgerStub) FindDetail(_ context.Context, id string) (*models.PaymentDetail, error) {
	for _, payment := range p.created {
		if payment.ID == id {
			return &models.PaymentDetail{Payment: payment, StudentName: "Asha", FeeEntryName: "Tuition"}, nil
		}
	}
	return nil, errors.New("sql: no rows in result set")
}

func (p *paymentLedgerStub) ListByStudent(context.Context, string) ([]models.Payment, error) {
	return p.created, nil
}

func newLedgerFixture(t *testing.T) (*LedgerService, *paymentLedgerStub, *feeStatusFixture) {
	t.Helper()
	f := newFeeStatusFixture(fixedClock("2025-01-15"), profileFor(studentAsha, "Asha", strPtr("sess-1"), "c1"))
	store := &paymentLedgerStub{totals: f.payments}
	return NewLedgerService(store, f.svc, nil, nil), store, f
}

func TestRecordPaymentRemindsWhenBalanceRemains(t *testing.T) {
	ledger, store, f := newLedgerFixture(t)
	ctx := context.Background()

	// Warm the cache so the payment has to invalidate it.
	before, err := f.svc.Calculate(ctx, studentAsha)
	require.NoError(t, err)
	assert.Equal(t, "1500.00", before.Balance.StringFixed(2))

	result, err := ledger.RecordPayment(ctx, dto.RecordPaymentRequest{
		StudentID:  studentAsha,
		FeeEntryID: feeEntryExam,
		Amount:     decimal.NewFromInt(600),
		Method:     models.PaymentMethodCash,
	}, "admin-1")
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, "admin-1", *store.created[0].RecordedBy)

	require.NotNil(t, result.FeeStatus)
	assert.Equal(t, "900.00", result.FeeStatus.Balance.StringFixed(2))
	assert.Equal(t, "600.00", result.FeeStatus.TotalPaid.StringFixed(2))
	assert.Equal(t, models.NotificationStatusSent, result.Notification.Status)
	require.Len(t, f.notifier.requests, 1)
	assert.Equal(t, models.ChannelSMS, f.notifier.requests[0].Channel)
}

func TestRecordPaymentSettledBalanceSendsNothing(t *testing.T) {
	ledger, _, f := newLedgerFixture(t)

	result, err := ledger.RecordPayment(context.Background(), dto.RecordPaymentRequest{
		StudentID:  studentAsha,
		FeeEntryID: feeEntryTuition,
		Amount:     decimal.NewFromInt(2000),
		Method:     models.PaymentMethodUPI,
	}, "")
	require.NoError(t, err)
	assert.True(t, result.FeeStatus.Balance.IsZero())
	assert.Zero(t, result.FeeStatus.PendingDays)
	assert.Equal(t, models.NotificationStatusNone, result.Notification.Status)
	assert.Empty(t, f.notifier.requests)
}

func TestRecordPaymentValidation(t *testing.T) {
	ledger, store, _ := newLedgerFixture(t)
	ctx := context.Background()

	cases := map[string]dto.RecordPaymentRequest{
		"missing student":        {FeeEntryID: feeEntryTuition, Amount: decimal.NewFromInt(1), Method: models.PaymentMethodCash},
		"zero amount":            {StudentID: studentAsha, FeeEntryID: feeEntryTuition, Amount: decimal.Zero, Method: models.PaymentMethodCash},
		"negative amount":        {StudentID: studentAsha, FeeEntryID: feeEntryTuition, Amount: decimal.NewFromInt(-5), Method: models.PaymentMethodCash},
		"unknown method":         {StudentID: studentAsha, FeeEntryID: feeEntryTuition, Amount: decimal.NewFromInt(1), Method: "BARTER"},
		"malformed student id":   {StudentID: "42", FeeEntryID: feeEntryTuition, Amount: decimal.NewFromInt(1), Method: models.PaymentMethodCash},
		"malformed fee entry id": {StudentID: studentAsha, FeeEntryID: "f1", Amount: decimal.NewFromInt(1), Method: models.PaymentMethodCash},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.RecordPayment(ctx, req, "")
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, store.created)
}

func TestRecordPaymentMapsRepositoryErrors(t *testing.T) {
	ledger, store, _ := newLedgerFixture(t)
	req := dto.RecordPaymentRequest{StudentID: studentAsha, FeeEntryID: unknownFeeEntry, Amount: decimal.NewFromInt(10), Method: models.PaymentMethodCard}

	store.createErr = repository.ErrUnknownFeeEntry
	_, err := ledger.RecordPayment(context.Background(), req, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	store.createErr = repository.ErrUnknownStudent
	_, err = ledger.RecordPayment(context.Background(), req, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	store.createErr = errors.New("connection reset")
	_, err = ledger.RecordPayment(context.Background(), req, "")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
