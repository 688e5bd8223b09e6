package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/internal/service"
	"github.com/noah-isme/sma-fee-api/pkg/response"
)

type feeCatalogService interface {
	List(ctx context.Context, filter models.FeeEntryFilter) ([]models.FeeEntry, error)
	Get(ctx context.Context, id string) (*models.FeeEntry, error)
	Create(ctx context.Context, req dto.FeeEntryRequest) (*models.FeeEntry, error)
	Update(ctx context.Context, id string, req dto.FeeEntryRequest) (*models.FeeEntry, error)
	Delete(ctx context.Context, id string) error
}

type feeStatusService interface {
	Calculate(ctx context.Context, studentID string) (models.FeeStatus, error)
	ListFeeStatuses(ctx context.Context) ([]models.StudentFeeStatus, error)
	ListPending(ctx context.Context) ([]models.StudentFeeStatus, error)
	ExportPending(ctx context.Context, format string) (*service.ExportFile, error)
	SendFeeReminder(ctx context.Context, studentID string, ch models.Channel) (*dto.FeeReminderResponse, error)
}

// FeeHandler exposes the fee catalog and fee status endpoints.
type FeeHandler struct {
	catalog  feeCatalogService
	statuses feeStatusService
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(catalog feeCatalogService, statuses feeStatusService) *FeeHandler {
	return &FeeHandler{catalog: catalog, statuses: statuses}
}

// ListEntries godoc
// @Summary List fee entries
// @Tags Fees
// @Produce json
// @Param sessionId query string false "Filter by session"
// @Param courseId query string false "Filter by course"
// @Success 200 {object} response.Envelope
// @Router /fee-entries [get]
func (h *FeeHandler) ListEntries(c *gin.Context) {
	entries, err := h.catalog.List(c.Request.Context(), models.FeeEntryFilter{
		SessionID: c.Query("sessionId"),
		CourseID:  c.Query("courseId"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// GetEntry godoc
// @Summary Get fee entry
// @Tags Fees
// @Produce json
// @Param id path string true "Fee entry ID"
// @Success 200 {object} response.Envelope
// @Router /fee-entries/{id} [get]
func (h *FeeHandler) GetEntry(c *gin.Context) {
	entry, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// CreateEntry godoc
// @Summary Create fee entry
// @Description Omit course_id for a session-wide fee.
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body dto.FeeEntryRequest true "Fee entry payload"
// @Success 201 {object} response.Envelope
// @Router /fee-entries [post]
func (h *FeeHandler) CreateEntry(c *gin.Context) {
	var req dto.FeeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	entry, err := h.catalog.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// UpdateEntry godoc
// @Summary Update fee entry
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Fee entry ID"
// @Param payload body dto.FeeEntryRequest true "Fee entry payload"
// @Success 200 {object} response.Envelope
// @Router /fee-entries/{id} [put]
func (h *FeeHandler) UpdateEntry(c *gin.Context) {
	var req dto.FeeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	entry, err := h.catalog.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// DeleteEntry godoc
// @Summary Delete fee entry
// @Tags Fees
// @Param id path string true "Fee entry ID"
// @Success 204
// @Router /fee-entries/{id} [delete]
func (h *FeeHandler) DeleteEntry(c *gin.Context) {
	if err := h.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentStatus godoc
// @Summary Fee status of a student
// @Tags Fees
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/fee-status [get]
func (h *FeeHandler) StudentStatus(c *gin.Context) {
	status, err := h.statuses.Calculate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// ListStatuses godoc
// @Summary Fee status of every student
// @Tags Fees
// @Produce json
// @Param pending query bool false "Only students with an outstanding balance, earliest due first"
// @Success 200 {object} response.Envelope
// @Router /fee-status [get]
func (h *FeeHandler) ListStatuses(c *gin.Context) {
	list := h.statuses.ListFeeStatuses
	if c.Query("pending") == "true" {
		list = h.statuses.ListPending
	}
	statuses, err := list(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statuses, nil)
}

// ExportPending godoc
// @Summary Export students with pending fees
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /reports/fee-pending [get]
func (h *FeeHandler) ExportPending(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	file, err := h.statuses.ExportPending(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// SendReminder godoc
// @Summary Send a fee reminder
// @Description Channel defaults to the configured reminder channel.
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.FeeReminderRequest false "Reminder channel"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/fee-reminders [post]
func (h *FeeHandler) SendReminder(c *gin.Context) {
	var req dto.FeeReminderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err))
			return
		}
	}
	out, err := h.statuses.SendFeeReminder(c.Request.Context(), c.Param("id"), req.Channel)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}
