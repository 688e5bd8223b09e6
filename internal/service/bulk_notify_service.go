package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
	"github.com/noah-isme/sma-fee-api/pkg/jobs"
)

// JobTypeNotificationBatch identifies bulk dispatch jobs on the queue.
const JobTypeNotificationBatch = "notification_batch"

type batchStore interface {
	Create(ctx context.Context, batch *models.NotificationBatch) error
	FindByID(ctx context.Context, id string) (*models.NotificationBatch, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	UpdateCounts(ctx context.Context, id string, sent, failed, skipped int) error
	Finish(ctx context.Context, id string, status models.BatchStatus, errorMessage *string, finishedAt time.Time) error
}

type audienceReader interface {
	ListByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error)
	ListStudentProfiles(ctx context.Context) ([]models.StudentProfile, error)
}

type messageWriter interface {
	CreateMany(ctx context.Context, messages []models.Message) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

func registerNotificationValidators(v *validator.Validate) {
	_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return models.Channel(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("target_group", func(fl validator.FieldLevel) bool {
		return models.TargetGroup(fl.Field().String()).Roles() != nil
	})
}

// BulkNotifyService queues notifications for whole target groups and tracks
// each run as a persisted batch.
type BulkNotifyService struct {
	batches   batchStore
	audience  audienceReader
	messages  messageWriter
	notifier  Notifier
	queue     jobDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	now       Clock
	logger    *zap.Logger
}

// NewBulkNotifyService constructs the service. The queue is attached with
// UseQueue once it has been built around Process.
func NewBulkNotifyService(batches batchStore, audience audienceReader, messages messageWriter, notifier Notifier, metrics *MetricsService, validate *validator.Validate, now Clock, logger *zap.Logger) *BulkNotifyService {
	if validate == nil {
		validate = validator.New()
	}
	if now == nil {
		now = systemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerNotificationValidators(validate)
	return &BulkNotifyService{
		batches:   batches,
		audience:  audience,
		messages:  messages,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		now:       now,
		logger:    logger,
	}
}

// UseQueue sets the dispatcher jobs are enqueued on.
func (s *BulkNotifyService) UseQueue(queue jobDispatcher) {
	s.queue = queue
}

// Submit persists a QUEUED batch and enqueues it for the workers.
func (s *BulkNotifyService) Submit(ctx context.Context, req dto.BulkNotifyRequest, actorID string) (*models.NotificationBatch, error) {
	req.Channel = models.Channel(strings.ToUpper(string(req.Channel)))
	req.TargetGroup = models.TargetGroup(strings.ToUpper(string(req.TargetGroup)))
	if req.Kind == "" {
		req.Kind = models.EventAnnouncementPublished
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid bulk notification payload")
	}
	if !req.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported notification kind")
	}

	batch := &models.NotificationBatch{
		Kind:        req.Kind,
		Channel:     req.Channel,
		TargetGroup: req.TargetGroup,
		Subject:     strings.TrimSpace(req.Subject),
		Body:        req.Body,
	}
	if actorID != "" {
		batch.CreatedBy = &actorID
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, appErrors.Internal(err, "failed to create notification batch")
	}

	if err := s.enqueue(batch.ID); err != nil {
		msg := err.Error()
		if finishErr := s.batches.Finish(ctx, batch.ID, models.BatchStatusFailed, &msg, s.now().UTC()); finishErr != nil {
			s.logger.Error("mark batch failed", zap.String("batch_id", batch.ID), zap.Error(finishErr))
		}
		s.metrics.RecordBatch(models.BatchStatusFailed)
		return nil, appErrors.Internal(err, "failed to queue notification batch")
	}
	s.logger.Info("notification batch queued",
		zap.String("batch_id", batch.ID),
		zap.String("target_group", string(batch.TargetGroup)),
		zap.String("channel", string(batch.Channel)),
	)
	return batch, nil
}

func (s *BulkNotifyService) enqueue(batchID string) error {
	if s.queue == nil {
		return errors.New("notification queue not configured")
	}
	return s.queue.Enqueue(jobs.Job{ID: batchID, Type: JobTypeNotificationBatch, Payload: batchID})
}

// GetBatch returns the tracking record of a batch.
func (s *BulkNotifyService) GetBatch(ctx context.Context, id string) (*models.NotificationBatch, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification batch not found")
		}
		return nil, appErrors.Internal(err, "failed to load notification batch")
	}
	return batch, nil
}

// Process is the queue handler. Errors returned before any delivery is
// attempted are retried by the queue; once dispatch starts the batch always
// completes.
func (s *BulkNotifyService) Process(ctx context.Context, job jobs.Job) error {
	batchID, ok := job.Payload.(string)
	if !ok || batchID == "" {
		return fmt.Errorf("job %s: missing batch id", job.ID)
	}
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if batch.Status == models.BatchStatusCompleted || batch.Status == models.BatchStatusFailed {
		return nil
	}
	if err := s.batches.MarkRunning(ctx, batch.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("mark batch %s running: %w", batch.ID, err)
	}

	recipients, err := s.resolveRecipients(ctx, batch.TargetGroup)
	if err != nil {
		return fmt.Errorf("resolve recipients for batch %s: %w", batch.ID, err)
	}

	s.logPortalMessages(ctx, batch, recipients)

	result := s.notifier.Notify(ctx, models.NotifyRequest{
		Kind:       batch.Kind,
		Channel:    batch.Channel,
		Recipients: recipients,
		Payload: models.Payload{
			Title: batch.Subject,
			Body:  batch.Body,
			Data:  map[string]string{"kind": string(batch.Kind), "batch_id": batch.ID},
		},
	})
	sent, failed, skipped := result.Counts()
	if err := s.batches.UpdateCounts(ctx, batch.ID, sent, failed, skipped); err != nil {
		s.logger.Error("update batch counts", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	if err := s.batches.Finish(ctx, batch.ID, models.BatchStatusCompleted, nil, s.now().UTC()); err != nil {
		s.logger.Error("finish batch", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	s.metrics.RecordBatch(models.BatchStatusCompleted)
	s.logger.Info("notification batch completed",
		zap.String("batch_id", batch.ID),
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
	)
	return nil
}

// OnJobComplete marks batches whose job exhausted its retries as FAILED.
func (s *BulkNotifyService) OnJobComplete(ctx context.Context, job jobs.Job, err error) {
	if err == nil {
		return
	}
	batchID, _ := job.Payload.(string)
	if batchID == "" {
		return
	}
	msg := err.Error()
	if finishErr := s.batches.Finish(ctx, batchID, models.BatchStatusFailed, &msg, s.now().UTC()); finishErr != nil {
		s.logger.Error("mark batch failed", zap.String("batch_id", batchID), zap.Error(finishErr))
	}
	s.metrics.RecordBatch(models.BatchStatusFailed)
	s.logger.Warn("notification batch failed", zap.String("batch_id", batchID), zap.Int("attempts", job.Attempt+1), zap.Error(err))
}

// resolveRecipients expands a target group. Students carry their guardian
// link so guardians are reached through the dispatcher's fan-out.
func (s *BulkNotifyService) resolveRecipients(ctx context.Context, group models.TargetGroup) ([]models.Recipient, error) {
	var recipients []models.Recipient
	var others []models.UserRole
	for _, role := range group.Roles() {
		if role != models.RoleStudent {
			others = append(others, role)
			continue
		}
		profiles, err := s.audience.ListStudentProfiles(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			recipients = append(recipients, models.RecipientFromProfile(p))
		}
	}
	if len(others) > 0 {
		users, err := s.audience.ListByRoles(ctx, others)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			recipients = append(recipients, models.Recipient{Contact: models.ContactFromUser(u)})
		}
	}
	return recipients, nil
}

func (s *BulkNotifyService) logPortalMessages(ctx context.Context, batch *models.NotificationBatch, recipients []models.Recipient) {
	if len(recipients) == 0 {
		return
	}
	content := batch.Subject
	if batch.Body != "" {
		content = batch.Subject + "\n\n" + batch.Body
	}
	sentAt := s.now().UTC()
	messages := make([]models.Message, 0, len(recipients))
	for _, r := range recipients {
		messages = append(messages, models.Message{SenderID: batch.CreatedBy, RecipientID: r.UserID, Content: content, SentAt: sentAt})
	}
	if err := s.messages.CreateMany(ctx, messages); err != nil {
		s.logger.Warn("log portal messages failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}
}
