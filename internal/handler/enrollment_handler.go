package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/pkg/response"
)

type enrollmentService interface {
	Profile(ctx context.Context, studentID string) (*models.StudentProfile, error)
	Enroll(ctx context.Context, studentID, courseID string) error
	Unenroll(ctx context.Context, studentID, courseID string) error
	AssignSession(ctx context.Context, studentID string, sessionID *string) error
}

// EnrollmentHandler exposes student course and session membership.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Profile godoc
// @Summary Student profile
// @Description The student with guardian, session and enrolled course ids.
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *EnrollmentHandler) Profile(c *gin.Context) {
	profile, err := h.enrollments.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Enroll godoc
// @Summary Enroll student in course
// @Tags Students
// @Param id path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 204
// @Router /students/{id}/courses/{courseId} [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	if err := h.enrollments.Enroll(c.Request.Context(), c.Param("id"), c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Unenroll godoc
// @Summary Remove student from course
// @Tags Students
// @Param id path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 204
// @Router /students/{id}/courses/{courseId} [delete]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	if err := h.enrollments.Unenroll(c.Request.Context(), c.Param("id"), c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignSession godoc
// @Summary Assign student to a session
// @Tags Students
// @Accept json
// @Param id path string true "Student ID"
// @Param payload body dto.AssignSessionRequest true "Session payload"
// @Success 204
// @Router /students/{id}/session [put]
func (h *EnrollmentHandler) AssignSession(c *gin.Context) {
	var req dto.AssignSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if err := h.enrollments.AssignSession(c.Request.Context(), c.Param("id"), req.SessionID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
