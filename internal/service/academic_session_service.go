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

type sessionStore interface {
	List(ctx context.Context) ([]models.AcademicSession, error)
	FindByID(ctx context.Context, id string) (*models.AcademicSession, error)
	Create(ctx context.Context, session *models.AcademicSession) error
	Update(ctx context.Context, session *models.AcademicSession) error
	Delete(ctx context.Context, id string) error
}

// AcademicSessionService manages enrollment terms.
type AcademicSessionService struct {
	sessions  sessionStore
	statuses  feeStatusInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAcademicSessionService constructs AcademicSessionService.
func NewAcademicSessionService(sessions sessionStore, statuses feeStatusInvalidator, validate *validator.Validate, logger *zap.Logger) *AcademicSessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicSessionService{sessions: sessions, statuses: statuses, validator: validate, logger: logger}
}

// List returns all sessions, newest first.
func (s *AcademicSessionService) List(ctx context.Context) ([]models.AcademicSession, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sessions")
	}
	return sessions, nil
}

// Get returns a session by id.
func (s *AcademicSessionService) Get(ctx context.Context, id string) (*models.AcademicSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}
	return session, nil
}

// Create adds a session.
func (s *AcademicSessionService) Create(ctx context.Context, req dto.SessionRequest) (*models.AcademicSession, error) {
	session := &models.AcademicSession{}
	if err := s.apply(session, req); err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "session name already exists")
		}
		return nil, appErrors.Internal(err, "failed to create session")
	}
	return session, nil
}

// Update modifies a session.
func (s *AcademicSessionService) Update(ctx context.Context, id string, req dto.SessionRequest) (*models.AcademicSession, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(session, req); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Internal(err, "failed to update session")
	}
	return session, nil
}

// Delete removes a session and its session-wide fees; students stay, unassigned.
func (s *AcademicSessionService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		if isForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "session fees have recorded payments")
		}
		return appErrors.Internal(err, "failed to delete session")
	}
	s.statuses.InvalidateAll(ctx)
	return nil
}

func (s *AcademicSessionService) apply(session *models.AcademicSession, req dto.SessionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid session payload")
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return appErrors.Validation(err, "start_date must be YYYY-MM-DD")
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return appErrors.Validation(err, "end_date must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	status := req.Status
	if status == "" {
		status = models.SessionStatusActive
	}
	if status != models.SessionStatusActive && status != models.SessionStatusInactive {
		return appErrors.Clone(appErrors.ErrValidation, "status must be ACTIVE or INACTIVE")
	}
	session.Name = strings.TrimSpace(req.Name)
	session.StartDate = start
	session.EndDate = end
	session.Status = status
	return nil
}
