package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
	"github.com/noah-isme/sma-fee-api/pkg/export"
	"github.com/noah-isme/sma-fee-api/pkg/storage"
)

type paymentDetailReader interface {
	FindDetail(ctx context.Context, id string) (*models.PaymentDetail, error)
}

type receiptStorage interface {
	Save(name string, data []byte) (string, error)
	Read(name string) ([]byte, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type receiptSigner interface {
	Generate(ownerID, name string) (string, time.Time, error)
	Parse(token string) (ownerID, name string, err error)
}

// ReceiptDownload is a stored receipt ready to stream.
type ReceiptDownload struct {
	Filename string
	Data     []byte
}

// ReceiptService renders payment receipts and hands out signed links to them.
type ReceiptService struct {
	payments      paymentDetailReader
	storage       receiptStorage
	signer        receiptSigner
	instituteName string
	downloadBase  string
	logger        *zap.Logger
}

// NewReceiptService constructs ReceiptService. downloadBase is the URL prefix
// the download route is mounted under.
func NewReceiptService(payments paymentDetailReader, store receiptStorage, signer receiptSigner, instituteName, downloadBase string, logger *zap.Logger) *ReceiptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptService{
		payments:      payments,
		storage:       store,
		signer:        signer,
		instituteName: instituteName,
		downloadBase:  downloadBase,
		logger:        logger,
	}
}

// GenerateReceipt renders and stores a PDF receipt for the payment.
func (s *ReceiptService) GenerateReceipt(ctx context.Context, paymentID string) (*dto.ReceiptLink, error) {
	detail, err := s.payments.FindDetail(ctx, paymentID)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Internal(err, "failed to load payment")
	}

	data, err := export.RenderDocumentPDF(receiptDocument(s.instituteName, *detail))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render receipt")
	}
	name := path.Join("receipts", fmt.Sprintf("%s-%s.pdf", detail.ID, uuid.NewString()))
	stored, err := s.storage.Save(name, data)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store receipt")
	}
	token, expiresAt, err := s.signer.Generate(detail.ID, stored)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign receipt link")
	}
	s.logger.Info("receipt generated", zap.String("payment_id", detail.ID), zap.String("file", stored))

	return &dto.ReceiptLink{
		PaymentID: detail.ID,
		Token:     token,
		URL:       s.downloadBase + "/receipts/" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Download resolves a signed token to the stored receipt.
func (s *ReceiptService) Download(_ context.Context, token string) (*ReceiptDownload, error) {
	paymentID, name, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrExpiredToken) {
			return nil, appErrors.Clone(appErrors.ErrTokenExpired, "receipt link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid receipt link")
	}
	data, err := s.storage.Read(name)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt not found")
	}
	return &ReceiptDownload{Filename: fmt.Sprintf("receipt-%s.pdf", paymentID), Data: data}, nil
}

// PurgeOlderThan deletes stored receipts older than age. Links to them stop
// resolving; a new one can be generated from the payment.
func (s *ReceiptService) PurgeOlderThan(age time.Duration) (int, error) {
	deleted, err := s.storage.CleanupOlderThan(age)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired receipts removed", zap.Int("count", len(deleted)))
	}
	return len(deleted), nil
}

func receiptDocument(institute string, detail models.PaymentDetail) export.Document {
	heading := "Payment Receipt"
	if institute != "" {
		heading = institute
	}
	recordedBy := "-"
	if detail.RecordedBy != nil {
		recordedBy = *detail.RecordedBy
	}
	return export.Document{
		Heading:    heading,
		Subheading: "Fee payment receipt",
		Fields: []export.Field{
			{Label: "Receipt No", Value: detail.ID},
			{Label: "Date", Value: detail.PaidAt.UTC().Format("2006-01-02 15:04")},
			{Label: "Student", Value: detail.StudentName},
			{Label: "Fee", Value: detail.FeeEntryName},
			{Label: "Amount", Value: detail.Amount.StringFixed(2)},
			{Label: "Method", Value: string(detail.Method)},
			{Label: "Recorded by", Value: recordedBy},
		},
		Footer: "This is a computer generated receipt.",
	}
}
