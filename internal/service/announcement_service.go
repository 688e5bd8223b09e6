package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, page, size int) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

type batchSubmitter interface {
	Submit(ctx context.Context, req dto.BulkNotifyRequest, actorID string) (*models.NotificationBatch, error)
}

// AnnouncementService handles announcement workflows.
type AnnouncementService struct {
	repo      announcementRepository
	bulk      batchSubmitter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementRepository, bulk batchSubmitter, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerNotificationValidators(validate)
	return &AnnouncementService{repo: repo, bulk: bulk, validator: validate, logger: logger}
}

// List returns announcements newest first.
func (s *AnnouncementService) List(ctx context.Context, page, size int) ([]models.Announcement, *models.Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	items, total, err := s.repo.List(ctx, page, size)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list announcements")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Publish stores the announcement and queues a notification to its target
// group. The announcement stands even if queueing fails.
func (s *AnnouncementService) Publish(ctx context.Context, req dto.PublishAnnouncementRequest, actorID string) (*dto.AnnouncementPublished, error) {
	req.TargetGroup = models.TargetGroup(strings.ToUpper(string(req.TargetGroup)))
	req.Channel = models.Channel(strings.ToUpper(string(req.Channel)))
	if req.Channel == "" {
		req.Channel = models.ChannelPush
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid announcement payload")
	}

	announcement := &models.Announcement{
		Title:       strings.TrimSpace(req.Title),
		Content:     req.Content,
		TargetGroup: req.TargetGroup,
	}
	if actorID != "" {
		announcement.CreatedBy = &actorID
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Internal(err, "failed to create announcement")
	}

	out := &dto.AnnouncementPublished{Announcement: *announcement}
	batch, err := s.bulk.Submit(ctx, dto.BulkNotifyRequest{
		Kind:        models.EventAnnouncementPublished,
		Channel:     req.Channel,
		TargetGroup: req.TargetGroup,
		Subject:     announcement.Title,
		Body:        announcement.Content,
	}, actorID)
	if err != nil {
		s.logger.Warn("announcement notification not queued", zap.String("announcement_id", announcement.ID), zap.Error(err))
		out.NotificationError = appErrors.FromError(err).Message
		return out, nil
	}
	out.Batch = batch
	return out, nil
}

// Delete removes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if isMissing(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Internal(err, "failed to load announcement")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to delete announcement")
	}
	return nil
}
