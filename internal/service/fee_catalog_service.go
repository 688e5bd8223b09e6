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

type feeCatalogStore interface {
	FindByID(ctx context.Context, id string) (*models.FeeEntry, error)
	List(ctx context.Context, filter models.FeeEntryFilter) ([]models.FeeEntry, error)
	Create(ctx context.Context, entry *models.FeeEntry) error
	Update(ctx context.Context, entry *models.FeeEntry) error
	Delete(ctx context.Context, id string) error
}

type sessionFinder interface {
	FindByID(ctx context.Context, id string) (*models.AcademicSession, error)
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type feeStatusInvalidator interface {
	Invalidate(ctx context.Context, studentID string)
	InvalidateAll(ctx context.Context)
}

// FeeCatalogService manages the charges students owe. Overlapping entries
// are allowed; they add up.
type FeeCatalogService struct {
	entries   feeCatalogStore
	sessions  sessionFinder
	courses   courseFinder
	statuses  feeStatusInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFeeCatalogService constructs the catalog service.
func NewFeeCatalogService(entries feeCatalogStore, sessions sessionFinder, courses courseFinder, statuses feeStatusInvalidator, validate *validator.Validate, logger *zap.Logger) *FeeCatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeCatalogService{entries: entries, sessions: sessions, courses: courses, statuses: statuses, validator: validate, logger: logger}
}

// List returns catalog entries, optionally narrowed to a session or course.
func (s *FeeCatalogService) List(ctx context.Context, filter models.FeeEntryFilter) ([]models.FeeEntry, error) {
	entries, err := s.entries.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list fee entries")
	}
	return entries, nil
}

// Get returns a single entry.
func (s *FeeCatalogService) Get(ctx context.Context, id string) (*models.FeeEntry, error) {
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee entry not found")
		}
		return nil, appErrors.Internal(err, "failed to load fee entry")
	}
	return entry, nil
}

// Create adds an entry to the catalog.
func (s *FeeCatalogService) Create(ctx context.Context, req dto.FeeEntryRequest) (*models.FeeEntry, error) {
	entry, err := s.buildEntry(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to create fee entry")
	}
	s.statuses.InvalidateAll(ctx)
	s.logger.Info("fee entry created", zap.String("fee_entry_id", entry.ID), zap.String("scope", string(entry.Scope.Kind)))
	return entry, nil
}

// Update replaces an existing entry.
func (s *FeeCatalogService) Update(ctx context.Context, id string, req dto.FeeEntryRequest) (*models.FeeEntry, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	entry, err := s.buildEntry(ctx, req)
	if err != nil {
		return nil, err
	}
	entry.ID = existing.ID
	entry.CreatedAt = existing.CreatedAt
	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to update fee entry")
	}
	s.statuses.InvalidateAll(ctx)
	return entry, nil
}

// Delete removes an entry. Entries with recorded payments cannot be removed.
func (s *FeeCatalogService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.entries.Delete(ctx, id); err != nil {
		if isForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "fee entry has recorded payments")
		}
		return appErrors.Internal(err, "failed to delete fee entry")
	}
	s.statuses.InvalidateAll(ctx)
	return nil
}

func (s *FeeCatalogService) buildEntry(ctx context.Context, req dto.FeeEntryRequest) (*models.FeeEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid fee entry payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		return nil, appErrors.Validation(err, "due_date must be YYYY-MM-DD")
	}
	if _, err := s.sessions.FindByID(ctx, req.SessionID); err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "session does not exist")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}

	scope := models.SessionScoped()
	if req.CourseID != nil && strings.TrimSpace(*req.CourseID) != "" {
		if _, err := s.courses.FindByID(ctx, *req.CourseID); err != nil {
			if isMissing(err) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "course does not exist")
			}
			return nil, appErrors.Internal(err, "failed to load course")
		}
		scope = models.CourseScoped(*req.CourseID)
	}

	return &models.FeeEntry{
		Name:      strings.TrimSpace(req.Name),
		Amount:    req.Amount.Round(2),
		DueDate:   due,
		SessionID: req.SessionID,
		Scope:     scope,
	}, nil
}
