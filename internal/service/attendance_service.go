package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

type attendanceStore interface {
	UpsertMany(ctx context.Context, records []models.Attendance) ([]models.Attendance, error)
	History(ctx context.Context, studentID string, limit int) ([]models.AttendanceHistoryRow, error)
	Summary(ctx context.Context) ([]models.AttendanceSummary, error)
}

type studentProfileGetter interface {
	GetStudentProfile(ctx context.Context, id string) (*models.StudentProfile, error)
}

const defaultHistoryLimit = 30

// AttendanceService records daily attendance and tells students and
// guardians about it.
type AttendanceService struct {
	records        attendanceStore
	students       studentProfileGetter
	notifier       Notifier
	absenceChannel models.Channel
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewAttendanceService constructs the service. absenceChannel is the text
// channel used to reach guardians of absent students; SMS when empty.
func NewAttendanceService(records attendanceStore, students studentProfileGetter, notifier Notifier, absenceChannel models.Channel, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if absenceChannel == "" {
		absenceChannel = models.ChannelSMS
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		records:        records,
		students:       students,
		notifier:       notifier,
		absenceChannel: absenceChannel,
		validator:      validate,
		logger:         logger,
	}
}

// MarkAttendance upserts one record per student for the date, then notifies.
// A student listed twice keeps the last status given.
func (s *AttendanceService) MarkAttendance(ctx context.Context, req dto.MarkAttendanceRequest, markedBy string) ([]dto.AttendanceMarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid attendance payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, appErrors.Validation(err, "date must be YYYY-MM-DD")
	}

	order := make([]string, 0, len(req.Records))
	statuses := make(map[string]models.AttendanceStatus, len(req.Records))
	for _, mark := range req.Records {
		status := models.AttendanceStatus(strings.ToUpper(string(mark.Status)))
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid status %q", mark.Status))
		}
		if _, seen := statuses[mark.StudentID]; !seen {
			order = append(order, mark.StudentID)
		}
		statuses[mark.StudentID] = status
	}

	profiles := make(map[string]models.StudentProfile, len(order))
	for _, id := range order {
		profile, err := s.students.GetStudentProfile(ctx, id)
		if err != nil {
			if isMissing(err) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s does not exist", id))
			}
			return nil, appErrors.Internal(err, "failed to load student")
		}
		profiles[id] = *profile
	}

	var by *string
	if markedBy != "" {
		by = &markedBy
	}
	records := make([]models.Attendance, 0, len(order))
	for _, id := range order {
		records = append(records, models.Attendance{StudentID: id, Date: date, Status: statuses[id], MarkedBy: by})
	}
	stored, err := s.records.UpsertMany(ctx, records)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to save attendance")
	}

	results := make([]dto.AttendanceMarkResult, 0, len(stored))
	for _, record := range stored {
		profile := profiles[record.StudentID]
		results = append(results, dto.AttendanceMarkResult{
			Attendance:   record,
			Notification: s.notifyMark(ctx, profile, record),
		})
	}
	s.logger.Info("attendance marked", zap.String("date", req.Date), zap.Int("records", len(stored)))
	return results, nil
}

// notifyMark applies the attendance rule: push to the student and guardian
// for every mark, plus a text to the guardian when the student is absent.
func (s *AttendanceService) notifyMark(ctx context.Context, profile models.StudentProfile, record models.Attendance) models.NotificationResult {
	name := profile.Student.Name
	date := record.Date.Format(dateLayout)
	label := strings.ToLower(string(record.Status))
	if record.Status == models.AttendanceStatusCheckedIn {
		label = "checked in"
	}
	recipient := models.RecipientFromProfile(profile)

	result := s.notifier.Notify(ctx, models.NotifyRequest{
		Kind:       models.EventAttendanceMark,
		Channel:    models.ChannelPush,
		Recipients: []models.Recipient{recipient},
		Payload: models.Payload{
			Title:        "Attendance update",
			Body:         fmt.Sprintf("You were marked %s on %s.", label, date),
			GuardianBody: fmt.Sprintf("%s was marked %s on %s.", name, label, date),
			Data:         map[string]string{"kind": string(models.EventAttendanceMark), "student_id": profile.Student.ID, "date": date},
		},
	})

	if record.Status != models.AttendanceStatusAbsent || recipient.Guardian == nil || recipient.Guardian.PhoneNumber == "" {
		return result
	}
	text := s.notifier.Notify(ctx, models.NotifyRequest{
		Kind:         models.EventAttendanceMark,
		Channel:      s.absenceChannel,
		Recipients:   []models.Recipient{recipient},
		GuardianOnly: true,
		Payload: models.Payload{
			Title:        "Absence alert",
			GuardianBody: fmt.Sprintf("Dear parent, %s was absent on %s.", name, date),
		},
	})
	return result.Merge(text)
}

// History returns a student's most recent attendance days.
func (s *AttendanceService) History(ctx context.Context, studentID string, limit int) ([]models.AttendanceHistoryRow, error) {
	if limit <= 0 || limit > 365 {
		limit = defaultHistoryLimit
	}
	rows, err := s.records.History(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load attendance history")
	}
	return rows, nil
}

// Summary returns present/absent totals and the attendance percentage per student.
func (s *AttendanceService) Summary(ctx context.Context) ([]models.AttendanceSummary, error) {
	rows, err := s.records.Summary(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to summarise attendance")
	}
	return rows, nil
}
