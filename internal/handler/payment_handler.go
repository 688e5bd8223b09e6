package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/internal/service"
	"github.com/noah-isme/sma-fee-api/pkg/response"
)

type ledgerService interface {
	RecordPayment(ctx context.Context, req dto.RecordPaymentRequest, recordedBy string) (*dto.PaymentResult, error)
	ListPayments(ctx context.Context, studentID string) ([]models.Payment, error)
}

type receiptService interface {
	GenerateReceipt(ctx context.Context, paymentID string) (*dto.ReceiptLink, error)
	Download(ctx context.Context, token string) (*service.ReceiptDownload, error)
}

// PaymentHandler exposes the ledger and receipt endpoints.
type PaymentHandler struct {
	ledger   ledgerService
	receipts receiptService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(ledger ledgerService, receipts receiptService) *PaymentHandler {
	return &PaymentHandler{ledger: ledger, receipts: receipts}
}

// Record godoc
// @Summary Record a payment
// @Description Commits the payment, recomputes the student's balance and reminds them when a balance remains.
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.ledger.RecordPayment(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListForStudent godoc
// @Summary Payments of a student
// @Tags Payments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/payments [get]
func (h *PaymentHandler) ListForStudent(c *gin.Context) {
	payments, err := h.ledger.ListPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// Receipt godoc
// @Summary Generate a payment receipt
// @Description Renders a PDF receipt and returns a signed download link.
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	link, err := h.receipts.GenerateReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a receipt
// @Tags Payments
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /receipts/{token} [get]
func (h *PaymentHandler) Download(c *gin.Context) {
	file, err := h.receipts.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, "application/pdf", file.Data)
}
