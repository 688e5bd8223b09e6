package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
	"github.com/noah-isme/sma-fee-api/pkg/export"
)

type studentProfileReader interface {
	GetStudentProfile(ctx context.Context, id string) (*models.StudentProfile, error)
	ListStudentProfiles(ctx context.Context) ([]models.StudentProfile, error)
}

type applicableFeeReader interface {
	ListApplicable(ctx context.Context, courseIDs []string, sessionID *string) ([]models.FeeEntry, error)
}

type paymentTotalsReader interface {
	SumByStudent(ctx context.Context, studentID string) (decimal.Decimal, error)
	LatestIDs(ctx context.Context) (map[string]string, error)
}

// FeeStatusConfig tunes caching and reminders.
type FeeStatusConfig struct {
	CacheTTL        time.Duration
	ReminderChannel models.Channel
	InstituteName   string
}

// ExportFile is a rendered report ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FeeStatusService computes, caches and reports student balances, and sends
// fee reminders.
type FeeStatusService struct {
	students studentProfileReader
	entries  applicableFeeReader
	payments paymentTotalsReader
	cache    *CacheService
	notifier Notifier
	metrics  *MetricsService
	cfg      FeeStatusConfig
	now      Clock
	logger   *zap.Logger
}

// NewFeeStatusService wires the calculator to its data sources.
func NewFeeStatusService(students studentProfileReader, entries applicableFeeReader, payments paymentTotalsReader, cache *CacheService, notifier Notifier, metrics *MetricsService, cfg FeeStatusConfig, now Clock, logger *zap.Logger) *FeeStatusService {
	if cfg.ReminderChannel == "" {
		cfg.ReminderChannel = models.ChannelSMS
	}
	if now == nil {
		now = systemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeStatusService{
		students: students,
		entries:  entries,
		payments: payments,
		cache:    cache,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
		now:      now,
		logger:   logger,
	}
}

// Calculate returns the student's fee status for today. Unknown students get
// a zeroed status rather than an error.
func (s *FeeStatusService) Calculate(ctx context.Context, studentID string) (models.FeeStatus, error) {
	profile, err := s.students.GetStudentProfile(ctx, studentID)
	if err != nil {
		if isMissing(err) {
			return ZeroFeeStatus(studentID, s.now()), nil
		}
		return models.FeeStatus{}, appErrors.Internal(err, "failed to load student")
	}
	return s.calculateFor(ctx, *profile)
}

func (s *FeeStatusService) calculateFor(ctx context.Context, profile models.StudentProfile) (models.FeeStatus, error) {
	today := dayOf(s.now())
	key := feeStatusKey(profile.Student.ID, today)

	var cached models.FeeStatus
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	start := time.Now()
	entries, err := s.entries.ListApplicable(ctx, profile.CourseIDs, profile.Student.SessionID)
	if err != nil {
		return models.FeeStatus{}, appErrors.Internal(err, "failed to load fee entries")
	}
	paid, err := s.payments.SumByStudent(ctx, profile.Student.ID)
	if err != nil {
		return models.FeeStatus{}, appErrors.Internal(err, "failed to sum payments")
	}

	status := CalculateFeeStatus(FeeInputs{
		StudentID: profile.Student.ID,
		CourseIDs: profile.CourseIDs,
		SessionID: profile.Student.SessionID,
		Entries:   entries,
		TotalPaid: paid,
	}, today)
	s.metrics.ObserveFeeStatus(time.Since(start))

	if err := s.cache.Set(ctx, key, status, s.cfg.CacheTTL); err == nil && s.cache.Enabled() {
		s.dropIfPaidSince(ctx, key, status)
	}
	return status, nil
}

// dropIfPaidSince re-reads the payment total after a cache write. A payment
// committed between the read and the write may have been invalidated before
// the write landed, so a changed total means the cached value is stale.
func (s *FeeStatusService) dropIfPaidSince(ctx context.Context, key string, status models.FeeStatus) {
	paid, err := s.payments.SumByStudent(ctx, status.StudentID)
	if err == nil && paid.Equal(status.TotalPaid) {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.Warn("stale fee status not dropped", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops the cached status of one student.
func (s *FeeStatusService) Invalidate(ctx context.Context, studentID string) {
	if err := s.cache.Invalidate(ctx, feeStatusPattern(studentID)); err != nil {
		s.logger.Warn("fee status invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

// InvalidateAll drops every cached status, e.g. after a catalog change.
func (s *FeeStatusService) InvalidateAll(ctx context.Context) {
	s.Invalidate(ctx, "")
}

// ListFeeStatuses returns a row for every student, ordered by name.
func (s *FeeStatusService) ListFeeStatuses(ctx context.Context) ([]models.StudentFeeStatus, error) {
	profiles, err := s.students.ListStudentProfiles(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list students")
	}
	latest, err := s.payments.LatestIDs(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load latest payments")
	}

	rows := make([]models.StudentFeeStatus, 0, len(profiles))
	for _, profile := range profiles {
		status, err := s.calculateFor(ctx, profile)
		if err != nil {
			return nil, err
		}
		row := models.StudentFeeStatus{FeeStatus: status, StudentName: profile.Student.Name, PhoneNumber: profile.Student.PhoneNumber}
		if id, ok := latest[profile.Student.ID]; ok {
			paymentID := id
			row.LatestPaymentID = &paymentID
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StudentName < rows[j].StudentName })
	return rows, nil
}

// ListPending returns the students with an outstanding balance, most overdue first.
func (s *FeeStatusService) ListPending(ctx context.Context) ([]models.StudentFeeStatus, error) {
	rows, err := s.ListFeeStatuses(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]models.StudentFeeStatus, 0, len(rows))
	for _, row := range rows {
		if row.Balance.IsPositive() {
			pending = append(pending, row)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].DueDate.Before(pending[j].DueDate) })
	return pending, nil
}

var pendingHeaders = []string{"Student", "Phone", "Total Due", "Total Paid", "Balance", "Due Date", "Pending Days", "Overdue", "Latest Payment"}

// ExportPending renders the pending list as CSV or PDF.
func (s *FeeStatusService) ExportPending(ctx context.Context, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = export.FormatCSV
	}
	if format != export.FormatCSV && format != export.FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	rows, err := s.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	today := dayOf(s.now())
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Pending fees as of %s", today.Format(dateLayout)),
		Headers: pendingHeaders,
	}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":        row.StudentName,
			"Phone":          derefString(row.PhoneNumber),
			"Total Due":      row.TotalDue.StringFixed(2),
			"Total Paid":     row.TotalPaid.StringFixed(2),
			"Balance":        row.Balance.StringFixed(2),
			"Due Date":       row.DueDate.Format(dateLayout),
			"Pending Days":   fmt.Sprintf("%d", row.PendingDays),
			"Overdue":        fmt.Sprintf("%t", row.Overdue),
			"Latest Payment": derefString(row.LatestPaymentID),
		})
	}
	if s.cfg.InstituteName != "" {
		dataset.Title = s.cfg.InstituteName + " - " + dataset.Title
	}

	data, err := export.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render report")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("fee-pending-%s.%s", today.Format(dateLayout), format),
		ContentType: export.ContentType(format),
		Data:        data,
	}, nil
}

// SendFeeReminder notifies a student and their guardian of the outstanding
// balance. An empty channel uses the configured reminder channel.
func (s *FeeStatusService) SendFeeReminder(ctx context.Context, studentID string, ch models.Channel) (*dto.FeeReminderResponse, error) {
	if ch == "" {
		ch = s.cfg.ReminderChannel
	}
	if !ch.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported channel")
	}
	profile, err := s.students.GetStudentProfile(ctx, studentID)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	status, err := s.calculateFor(ctx, *profile)
	if err != nil {
		return nil, err
	}
	if !status.Balance.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student has no outstanding balance")
	}
	result := s.notifier.Notify(ctx, feeReminderRequest(*profile, status, ch))
	return &dto.FeeReminderResponse{FeeStatus: status, Notification: result}, nil
}

// Remind sends the default-channel reminder for a status already computed,
// as after a payment. Balances that are settled produce no deliveries.
func (s *FeeStatusService) Remind(ctx context.Context, studentID string, status models.FeeStatus) models.NotificationResult {
	none := models.NotificationResult{Status: models.NotificationStatusNone, Outcomes: []models.Outcome{}}
	if !status.Balance.IsPositive() {
		return none
	}
	profile, err := s.students.GetStudentProfile(ctx, studentID)
	if err != nil {
		s.logger.Warn("fee reminder skipped", zap.String("student_id", studentID), zap.Error(err))
		return none
	}
	return s.notifier.Notify(ctx, feeReminderRequest(*profile, status, s.cfg.ReminderChannel))
}

func feeReminderRequest(profile models.StudentProfile, status models.FeeStatus, ch models.Channel) models.NotifyRequest {
	name := profile.Student.Name
	balance := status.Balance.StringFixed(2)
	due := status.DueDate.Format(dateLayout)

	var body, guardianBody string
	if status.Overdue {
		body = fmt.Sprintf("Dear %s, your fee balance of %s was due on %s and is %d days overdue.", name, balance, due, status.PendingDays)
		guardianBody = fmt.Sprintf("Fee balance of %s for %s was due on %s and is %d days overdue.", balance, name, due, status.PendingDays)
	} else {
		body = fmt.Sprintf("Dear %s, your fee balance of %s is due on %s.", name, balance, due)
		guardianBody = fmt.Sprintf("Fee balance of %s for %s is due on %s.", balance, name, due)
	}

	return models.NotifyRequest{
		Kind:       models.EventFeeReminder,
		Channel:    ch,
		Recipients: []models.Recipient{models.RecipientFromProfile(profile)},
		Payload: models.Payload{
			Title:        "Fee reminder",
			Body:         body,
			GuardianBody: guardianBody,
			Data:         map[string]string{"kind": string(models.EventFeeReminder), "student_id": profile.Student.ID},
		},
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
