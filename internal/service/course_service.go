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

type courseStore interface {
	List(ctx context.Context) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseService manages course offerings.
type CourseService struct {
	courses   courseStore
	users     userFinder
	statuses  feeStatusInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(courses courseStore, users userFinder, statuses feeStatusInvalidator, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, users: users, statuses: statuses, validator: validate, logger: logger}
}

// List returns all courses.
func (s *CourseService) List(ctx context.Context) ([]models.Course, error) {
	courses, err := s.courses.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list courses")
	}
	return courses, nil
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	return course, nil
}

// Create adds a course.
func (s *CourseService) Create(ctx context.Context, req dto.CourseRequest) (*models.Course, error) {
	course := &models.Course{}
	if err := s.apply(ctx, course, req); err != nil {
		return nil, err
	}
	if err := s.courses.Create(ctx, course); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course name already exists")
		}
		return nil, appErrors.Internal(err, "failed to create course")
	}
	return course, nil
}

// Update modifies a course.
func (s *CourseService) Update(ctx context.Context, id string, req dto.CourseRequest) (*models.Course, error) {
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, course, req); err != nil {
		return nil, err
	}
	if err := s.courses.Update(ctx, course); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course name already exists")
		}
		return nil, appErrors.Internal(err, "failed to update course")
	}
	return course, nil
}

// Delete removes a course together with its enrollments and course fees.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.courses.Delete(ctx, id); err != nil {
		if isForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "course fees have recorded payments")
		}
		return appErrors.Internal(err, "failed to delete course")
	}
	s.statuses.InvalidateAll(ctx)
	return nil
}

func (s *CourseService) apply(ctx context.Context, course *models.Course, req dto.CourseRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid course payload")
	}
	if req.TeacherID != nil && *req.TeacherID != "" {
		teacher, err := s.users.FindByID(ctx, *req.TeacherID)
		if err != nil {
			if isMissing(err) {
				return appErrors.Clone(appErrors.ErrValidation, "teacher does not exist")
			}
			return appErrors.Internal(err, "failed to load teacher")
		}
		if teacher.Role != models.RoleTeacher {
			return appErrors.Clone(appErrors.ErrValidation, "teacher_id must reference a teacher")
		}
		course.TeacherID = req.TeacherID
	} else {
		course.TeacherID = nil
	}
	course.Name = strings.TrimSpace(req.Name)
	course.Subjects = append(course.Subjects[:0], req.Subjects...)
	return nil
}
