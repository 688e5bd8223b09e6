package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

type enrollmentStore interface {
	Enroll(ctx context.Context, studentID, courseID string) error
	Unenroll(ctx context.Context, studentID, courseID string) error
}

type sessionAssigner interface {
	GetStudentProfile(ctx context.Context, id string) (*models.StudentProfile, error)
	AssignSession(ctx context.Context, studentID string, sessionID *string) error
}

// EnrollmentService links students to courses and sessions. Every change
// alters what the student owes, so cached fee statuses are dropped.
type EnrollmentService struct {
	enrollments enrollmentStore
	students    sessionAssigner
	courses     courseFinder
	sessions    sessionFinder
	statuses    feeStatusInvalidator
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(enrollments enrollmentStore, students sessionAssigner, courses courseFinder, sessions sessionFinder, statuses feeStatusInvalidator, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{enrollments: enrollments, students: students, courses: courses, sessions: sessions, statuses: statuses, logger: logger}
}

// Profile returns the student with their guardian and course ids.
func (s *EnrollmentService) Profile(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	profile, err := s.students.GetStudentProfile(ctx, studentID)
	if err != nil {
		if isMissing(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	return profile, nil
}

// Enroll adds the student to a course. Enrolling twice is a no-op.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, courseID string) error {
	if _, err := s.Profile(ctx, studentID); err != nil {
		return err
	}
	if err := s.requireCourse(ctx, courseID); err != nil {
		return err
	}
	if err := s.enrollments.Enroll(ctx, studentID, courseID); err != nil {
		return appErrors.Internal(err, "failed to enroll student")
	}
	s.statuses.Invalidate(ctx, studentID)
	s.logger.Info("student enrolled", zap.String("student_id", studentID), zap.String("course_id", courseID))
	return nil
}

// Unenroll removes the student from a course.
func (s *EnrollmentService) Unenroll(ctx context.Context, studentID, courseID string) error {
	if _, err := s.Profile(ctx, studentID); err != nil {
		return err
	}
	if err := s.enrollments.Unenroll(ctx, studentID, courseID); err != nil {
		return appErrors.Internal(err, "failed to unenroll student")
	}
	s.statuses.Invalidate(ctx, studentID)
	return nil
}

// AssignSession moves the student into sessionID, or out of any session when nil.
func (s *EnrollmentService) AssignSession(ctx context.Context, studentID string, sessionID *string) error {
	if sessionID != nil && *sessionID == "" {
		sessionID = nil
	}
	if sessionID != nil {
		if _, err := s.sessions.FindByID(ctx, *sessionID); err != nil {
			if isMissing(err) {
				return appErrors.Clone(appErrors.ErrValidation, "session does not exist")
			}
			return appErrors.Internal(err, "failed to load session")
		}
	}
	if err := s.students.AssignSession(ctx, studentID, sessionID); err != nil {
		if isMissing(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Internal(err, "failed to assign session")
	}
	s.statuses.Invalidate(ctx, studentID)
	return nil
}

func (s *EnrollmentService) requireCourse(ctx context.Context, courseID string) error {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if isMissing(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Internal(err, "failed to load course")
	}
	return nil
}
