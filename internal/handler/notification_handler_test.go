package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/internal/service"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

type fakeBulk struct {
	req   dto.BulkNotifyRequest
	actor string
}

func (f *fakeBulk) Submit(_ context.Context, req dto.BulkNotifyRequest, actorID string) (*models.NotificationBatch, error) {
	f.req, f.actor = req, actorID
	return &models.NotificationBatch{ID: "batch-1", Status: models.BatchStatusQueued}, nil
}

func (f *fakeBulk) GetBatch(_ context.Context, id string) (*models.NotificationBatch, error) {
	if id != "batch-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notification batch not found")
	}
	return &models.NotificationBatch{ID: id, Status: models.BatchStatusCompleted, SentCount: 4}, nil
}

type fakeMessages struct {
	sender string
}

func (f *fakeMessages) SendToStudent(_ context.Context, req dto.DirectMessageRequest, senderID string) (*dto.DirectMessageResult, error) {
	f.sender = senderID
	return &dto.DirectMessageResult{Messages: []models.Message{{RecipientID: req.StudentID}}}, nil
}

func (f *fakeMessages) ListForParent(_ context.Context, parentID string) ([]models.MessageView, error) {
	return []models.MessageView{{Message: models.Message{ID: "m1", RecipientID: parentID}}}, nil
}

func TestNotificationHandlerBulkAccepted(t *testing.T) {
	bulk := &fakeBulk{}
	h := NewNotificationHandler(bulk, &fakeMessages{})

	c, rec := newTestContext(http.MethodPost, "/notifications/bulk", `{"channel":"SMS","target_group":"PARENTS","subject":"Fees","body":"Due Friday"}`)
	withActor(c, "admin-1", models.RoleAdmin)
	h.Bulk(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "admin-1", bulk.actor)
	assert.Equal(t, models.TargetGroupParents, bulk.req.TargetGroup)
	var batch models.NotificationBatch
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &batch))
	assert.Equal(t, models.BatchStatusQueued, batch.Status)
}

func TestNotificationHandlerBatch(t *testing.T) {
	h := NewNotificationHandler(&fakeBulk{}, &fakeMessages{})

	c, rec := newTestContext(http.MethodGet, "/notifications/batches/batch-1", "")
	c.Params = gin.Params{{Key: "id", Value: "batch-1"}}
	h.Batch(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/notifications/batches/nope", "")
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	h.Batch(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationHandlerDirectAndInbox(t *testing.T) {
	messages := &fakeMessages{}
	h := NewNotificationHandler(&fakeBulk{}, messages)

	c, rec := newTestContext(http.MethodPost, "/notifications/direct", `{"student_id":"s1","subject":"Homework","body":"Missing"}`)
	withActor(c, "t1", models.RoleTeacher)
	h.Direct(c)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "t1", messages.sender)

	c, rec = newTestContext(http.MethodGet, "/parents/p1/messages", "")
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	h.ParentMessages(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeLedger struct {
	recordedBy string
}

func (f *fakeLedger) RecordPayment(_ context.Context, req dto.RecordPaymentRequest, recordedBy string) (*dto.PaymentResult, error) {
	f.recordedBy = recordedBy
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	balance := models.FeeStatus{StudentID: req.StudentID, Balance: decimal.NewFromInt(900)}
	return &dto.PaymentResult{
		Payment:      models.Payment{ID: "p1", StudentID: req.StudentID, Amount: req.Amount},
		FeeStatus:    &balance,
		Notification: models.NotificationResult{Status: models.NotificationStatusSent},
	}, nil
}

func (f *fakeLedger) ListPayments(context.Context, string) ([]models.Payment, error) {
	return []models.Payment{{ID: "p1"}}, nil
}

type fakeReceipts struct{}

func (fakeReceipts) GenerateReceipt(_ context.Context, id string) (*dto.ReceiptLink, error) {
	return &dto.ReceiptLink{PaymentID: id, Token: "tok", URL: "/api/v1/receipts/tok"}, nil
}

func (fakeReceipts) Download(_ context.Context, token string) (*service.ReceiptDownload, error) {
	if token != "tok" {
		return nil, appErrors.Clone(appErrors.ErrTokenExpired, "receipt link expired")
	}
	return &service.ReceiptDownload{Filename: "receipt-p1.pdf", Data: []byte("%PDF-1.3")}, nil
}

func TestPaymentHandlerRecord(t *testing.T) {
	ledger := &fakeLedger{}
	h := NewPaymentHandler(ledger, fakeReceipts{})

	c, rec := newTestContext(http.MethodPost, "/payments", `{"student_id":"s1","fee_entry_id":"f1","amount":"600","method":"CASH"}`)
	withActor(c, "admin-1", models.RoleAdmin)
	h.Record(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "admin-1", ledger.recordedBy)
	var out struct {
		FeeStatus struct {
			Balance string `json:"balance"`
		} `json:"fee_status"`
		Notification struct {
			Status string `json:"status"`
		} `json:"notification"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	assert.Equal(t, "900", out.FeeStatus.Balance)
	assert.Equal(t, models.NotificationStatusSent, out.Notification.Status)

	c, rec = newTestContext(http.MethodPost, "/payments", `{"student_id":"s1","fee_entry_id":"f1","amount":"0","method":"CASH"}`)
	h.Record(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentHandlerReceiptDownload(t *testing.T) {
	h := NewPaymentHandler(&fakeLedger{}, fakeReceipts{})

	c, rec := newTestContext(http.MethodGet, "/receipts/tok", "")
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Download(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "receipt-p1.pdf")

	c, rec = newTestContext(http.MethodGet, "/receipts/old", "")
	c.Params = gin.Params{{Key: "token", Value: "old"}}
	h.Download(c)
	assert.Equal(t, appErrors.ErrTokenExpired.Status, rec.Code)
}

func TestMetricsHandlerHealthReportsDegraded(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return assert.AnError },
	})

	c, rec := newTestContext(http.MethodGet, "/health", "")
	h.Health(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Components["database"])
}
