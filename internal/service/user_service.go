package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

type userDirectory interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	ListChildren(ctx context.Context, parentID string) ([]models.User, error)
	SetDeviceToken(ctx context.Context, userID, token string) error
	ClearDeviceToken(ctx context.Context, userID, token string) error
}

// UserService manages the directory of staff, students and guardians, and
// the push tokens the dispatcher delivers to.
type UserService struct {
	users     userDirectory
	sessions  sessionFinder
	statuses  feeStatusInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(users userDirectory, sessions sessionFinder, statuses feeStatusInvalidator, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{users: users, sessions: sessions, statuses: statuses, validator: validate, logger: logger}
}

// List returns active users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	for _, role := range filter.Roles {
		if !role.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role "+string(role))
		}
	}
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if users == nil {
		users = []models.User{}
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}

// Create adds a user to the directory.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid create user payload")
	}

	email := normalizeEmail(req.Email)
	if err := s.requireFreeEmail(ctx, email, ""); err != nil {
		return nil, err
	}

	user := &models.User{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Email:       email,
		Role:        req.Role,
		PhoneNumber: blankToNil(req.PhoneNumber),
		Active:      true,
	}
	if err := s.applyLinks(ctx, user, req.ParentID, req.SessionID); err != nil {
		return nil, err
	}
	if req.Password != "" {
		if err := setPassword(user, req.Password); err != nil {
			return nil, err
		}
	}

	if err := s.users.Create(ctx, user); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update replaces the profile of a user. actorID is the admin making the
// change, who may not demote or deactivate themselves.
func (s *UserService) Update(ctx context.Context, id string, req dto.UpdateUserRequest, actorID string) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid update user payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	active := user.Active
	if req.Active != nil {
		active = *req.Active
	}
	if id == actorID && (req.Role != models.RoleAdmin || !active) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot demote or deactivate your own account")
	}

	email := normalizeEmail(req.Email)
	if email != user.Email {
		if err := s.requireFreeEmail(ctx, email, user.ID); err != nil {
			return nil, err
		}
	}
	if user.Role == models.RoleParent && req.Role != models.RoleParent {
		if err := s.requireNoChildren(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	wasStudent := user.Role == models.RoleStudent
	user.Name = strings.TrimSpace(req.Name)
	user.Email = email
	user.Role = req.Role
	user.PhoneNumber = blankToNil(req.PhoneNumber)
	user.Active = active
	if err := s.applyLinks(ctx, user, req.ParentID, req.SessionID); err != nil {
		return nil, err
	}
	if req.Password != nil {
		if err := setPassword(user, *req.Password); err != nil {
			return nil, err
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case isMissing(err):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		case isUniqueViolation(err):
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, appErrors.Internal(err, "failed to update user")
	}
	if wasStudent || user.Role == models.RoleStudent {
		s.statuses.Invalidate(ctx, user.ID)
	}
	return user, nil
}

// Delete deactivates a user. Guardians still linked to students are kept.
func (s *UserService) Delete(ctx context.Context, id, actorID string) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleParent {
		if err := s.requireNoChildren(ctx, user.ID); err != nil {
			return err
		}
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if isMissing(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to delete user")
	}
	if user.Role == models.RoleStudent {
		s.statuses.Invalidate(ctx, id)
	}
	s.logger.Info("user deactivated", zap.String("user_id", id))
	return nil
}

// RegisterDeviceToken stores the push token of the calling user.
func (s *UserService) RegisterDeviceToken(ctx context.Context, userID string, req dto.DeviceTokenRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid device token payload")
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return appErrors.Clone(appErrors.ErrValidation, "token is required")
	}
	if err := s.users.SetDeviceToken(ctx, userID, token); err != nil {
		if isMissing(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to store device token")
	}
	return nil
}

// RemoveDeviceToken forgets the calling user's push token, e.g. on sign out.
// A different token registered since is kept.
func (s *UserService) RemoveDeviceToken(ctx context.Context, userID string, req dto.DeviceTokenRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid device token payload")
	}
	if err := s.users.ClearDeviceToken(ctx, userID, strings.TrimSpace(req.Token)); err != nil {
		return appErrors.Internal(err, "failed to remove device token")
	}
	return nil
}

// applyLinks sets the guardian and session of a student. Other roles carry
// neither.
func (s *UserService) applyLinks(ctx context.Context, user *models.User, parentID, sessionID *string) error {
	parentID = blankToNil(parentID)
	sessionID = blankToNil(sessionID)
	if user.Role != models.RoleStudent {
		if parentID != nil || sessionID != nil {
			return appErrors.Clone(appErrors.ErrValidation, "parent_id and session_id only apply to students")
		}
		user.ParentID, user.SessionID = nil, nil
		return nil
	}

	if parentID != nil {
		parent, err := s.users.FindByID(ctx, *parentID)
		if err != nil {
			if isMissing(err) {
				return appErrors.Clone(appErrors.ErrValidation, "guardian does not exist")
			}
			return appErrors.Internal(err, "failed to load guardian")
		}
		if parent.Role != models.RoleParent || !parent.Active {
			return appErrors.Clone(appErrors.ErrValidation, "parent_id must reference an active parent")
		}
	}
	if sessionID != nil {
		if _, err := s.sessions.FindByID(ctx, *sessionID); err != nil {
			if isMissing(err) {
				return appErrors.Clone(appErrors.ErrValidation, "session does not exist")
			}
			return appErrors.Internal(err, "failed to load session")
		}
	}
	user.ParentID = parentID
	user.SessionID = sessionID
	return nil
}

func (s *UserService) requireFreeEmail(ctx context.Context, email, ownerID string) error {
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isMissing(err) {
			return nil
		}
		return appErrors.Internal(err, "failed to check email uniqueness")
	}
	if existing.ID != ownerID {
		return appErrors.Clone(appErrors.ErrConflict, "email already exists")
	}
	return nil
}

func (s *UserService) requireNoChildren(ctx context.Context, parentID string) error {
	children, err := s.users.ListChildren(ctx, parentID)
	if err != nil {
		return appErrors.Internal(err, "failed to list linked students")
	}
	if len(children) > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "guardian is still linked to students")
	}
	return nil
}

func setPassword(user *models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	user.PasswordHash = string(hash)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func blankToNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
