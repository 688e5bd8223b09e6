package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/pkg/response"
)

type bulkNotifyService interface {
	Submit(ctx context.Context, req dto.BulkNotifyRequest, actorID string) (*models.NotificationBatch, error)
	GetBatch(ctx context.Context, id string) (*models.NotificationBatch, error)
}

type messageService interface {
	SendToStudent(ctx context.Context, req dto.DirectMessageRequest, senderID string) (*dto.DirectMessageResult, error)
	ListForParent(ctx context.Context, parentID string) ([]models.MessageView, error)
}

// NotificationHandler exposes bulk notifications and direct messages.
type NotificationHandler struct {
	bulk     bulkNotifyService
	messages messageService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(bulk bulkNotifyService, messages messageService) *NotificationHandler {
	return &NotificationHandler{bulk: bulk, messages: messages}
}

// Bulk godoc
// @Summary Queue a bulk notification
// @Description Returns immediately with the QUEUED batch; poll the batch for progress.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.BulkNotifyRequest true "Bulk notification payload"
// @Success 202 {object} response.Envelope
// @Router /notifications/bulk [post]
func (h *NotificationHandler) Bulk(c *gin.Context) {
	var req dto.BulkNotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	batch, err := h.bulk.Submit(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, batch)
}

// Batch godoc
// @Summary Get notification batch
// @Tags Notifications
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/batches/{id} [get]
func (h *NotificationHandler) Batch(c *gin.Context) {
	batch, err := h.bulk.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Direct godoc
// @Summary Message a student and their guardian
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.DirectMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Router /notifications/direct [post]
func (h *NotificationHandler) Direct(c *gin.Context) {
	var req dto.DirectMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	out, err := h.messages.SendToStudent(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, out)
}

// ParentMessages godoc
// @Summary Parent inbox
// @Description Messages addressed to the parent or any of their children.
// @Tags Notifications
// @Produce json
// @Param id path string true "Parent ID"
// @Success 200 {object} response.Envelope
// @Router /parents/{id}/messages [get]
func (h *NotificationHandler) ParentMessages(c *gin.Context) {
	views, err := h.messages.ListForParent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}
