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

type familyReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	GetStudentProfile(ctx context.Context, id string) (*models.StudentProfile, error)
	ListChildren(ctx context.Context, parentID string) ([]models.User, error)
}

type messageStore interface {
	CreateMany(ctx context.Context, messages []models.Message) error
	ListForRecipients(ctx context.Context, recipientIDs []string, limit int) ([]models.MessageView, error)
}

const parentInboxLimit = 100

// MessageService sends direct messages about a student and serves the
// parent inbox.
type MessageService struct {
	users     familyReader
	messages  messageStore
	notifier  Notifier
	validator *validator.Validate
	now       Clock
	logger    *zap.Logger
}

// NewMessageService constructs MessageService.
func NewMessageService(users familyReader, messages messageStore, notifier Notifier, validate *validator.Validate, now Clock, logger *zap.Logger) *MessageService {
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
	return &MessageService{users: users, messages: messages, notifier: notifier, validator: validate, now: now, logger: logger}
}

func guardianPrefix(studentName string) string {
	return fmt.Sprintf("MESSAGE ABOUT CHILD %s", studentName)
}

// SendToStudent writes portal copies for the student and guardian and, when
// a channel is given, delivers the message on it.
func (s *MessageService) SendToStudent(ctx context.Context, req dto.DirectMessageRequest, senderID string) (*dto.DirectMessageResult, error) {
	if req.Channel != nil {
		ch := models.Channel(strings.ToUpper(string(*req.Channel)))
		req.Channel = &ch
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid message payload")
	}
	profile, err := s.users.GetStudentProfile(ctx, req.StudentID)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}

	subject := strings.TrimSpace(req.Subject)
	name := profile.Student.Name
	var sender *string
	if senderID != "" {
		sender = &senderID
	}
	sentAt := s.now().UTC()

	messages := []models.Message{{
		SenderID:    sender,
		RecipientID: profile.Student.ID,
		Content:     subject + "\n\n" + req.Body,
		SentAt:      sentAt,
	}}
	if profile.Guardian != nil {
		messages = append(messages, models.Message{
			SenderID:    sender,
			RecipientID: profile.Guardian.ID,
			Content:     fmt.Sprintf("%s: %s\n\n%s", guardianPrefix(name), subject, req.Body),
			SentAt:      sentAt,
		})
	}
	if err := s.messages.CreateMany(ctx, messages); err != nil {
		return nil, appErrors.Internal(err, "failed to save messages")
	}

	out := &dto.DirectMessageResult{Messages: messages}
	if req.Channel == nil || *req.Channel == "" {
		return out, nil
	}
	result := s.notifier.Notify(ctx, models.NotifyRequest{
		Kind:       models.EventDirectMessage,
		Channel:    *req.Channel,
		Recipients: []models.Recipient{models.RecipientFromProfile(*profile)},
		Payload: models.Payload{
			Title:         subject,
			Body:          req.Body,
			GuardianTitle: fmt.Sprintf("%s: %s", guardianPrefix(name), subject),
			Data:          map[string]string{"kind": string(models.EventDirectMessage), "student_id": profile.Student.ID},
		},
	})
	out.Notification = &result
	return out, nil
}

// ListForParent returns messages addressed to the parent or any of their
// children, newest first.
func (s *MessageService) ListForParent(ctx context.Context, parentID string) ([]models.MessageView, error) {
	parent, err := s.users.FindByID(ctx, parentID)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return nil, appErrors.Internal(err, "failed to load parent")
	}
	if parent.Role != models.RoleParent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
	}
	children, err := s.users.ListChildren(ctx, parentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list children")
	}
	ids := make([]string, 0, len(children)+1)
	ids = append(ids, parentID)
	for _, child := range children {
		ids = append(ids, child.ID)
	}
	views, err := s.messages.ListForRecipients(ctx, ids, parentInboxLimit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list messages")
	}
	return views, nil
}
