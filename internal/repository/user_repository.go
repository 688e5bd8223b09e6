package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

const userColumns = `id, name, email, password_hash, role, phone_number, device_token, parent_id, session_id, active, created_at, updated_at`

// UserRepository provides database access for users, students and guardians.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `INSERT INTO users (` + userColumns + `) VALUES (:id, :name, :email, :password_hash, :role, :phone_number, :device_token, :parent_id, :session_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update persists the mutable profile fields of a user.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	query := `UPDATE users SET name = :name, email = :email, password_hash = :password_hash, role = :role, phone_number = :phone_number, parent_id = :parent_id, session_id = :session_id, active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete deactivates a user and forgets their push token. Payments and
// attendance keep referencing the row.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `UPDATE users SET active = FALSE, device_token = NULL, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetDeviceToken stores the push token of an active user. A token belongs to
// one app install, so any other account still holding it is cleared first.
func (r *UserRepository) SetDeviceToken(ctx context.Context, userID, token string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin device token: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE users SET device_token = NULL, updated_at = $3 WHERE device_token = $1 AND id <> $2`, token, userID, now); err != nil {
		return fmt.Errorf("release device token: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE users SET device_token = $2, updated_at = $3 WHERE id = $1 AND active = TRUE`, userID, token, now)
	if err != nil {
		return fmt.Errorf("set device token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit device token: %w", err)
	}
	committed = true
	return nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	where := []string{"active = TRUE"}
	var args []interface{}
	if len(filter.Roles) > 0 {
		where = append(where, fmt.Sprintf("role = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(rolesToStrings(filter.Roles)))
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s FROM users WHERE %s ORDER BY name ASC LIMIT %d OFFSET %d", userColumns, whereClause, pageSize, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM users WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// ListByRoles returns every active user holding one of roles, unpaginated.
func (r *UserRepository) ListByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE active = TRUE AND role = ANY($1) ORDER BY name ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(rolesToStrings(roles))); err != nil {
		return nil, fmt.Errorf("list users by roles: %w", err)
	}
	return users, nil
}

// ListChildren returns the students linked to a guardian.
func (r *UserRepository) ListChildren(ctx context.Context, parentID string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE parent_id = $1 AND role = 'STUDENT' ORDER BY name ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, parentID); err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return users, nil
}

// IsGuardianOf reports whether studentID is linked to parentID.
func (r *UserRepository) IsGuardianOf(ctx context.Context, parentID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND parent_id = $2 AND role = 'STUDENT')`
	var linked bool
	if err := r.db.GetContext(ctx, &linked, query, studentID, parentID); err != nil {
		return false, fmt.Errorf("check guardian: %w", err)
	}
	return linked, nil
}

// GetStudentProfile loads a student together with their guardian and course
// enrollments. Returns sql.ErrNoRows when id is not a student.
func (r *UserRepository) GetStudentProfile(ctx context.Context, id string) (*models.StudentProfile, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND role = 'STUDENT' LIMIT 1`
	var student models.User
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get student: %w", err)
	}

	profile := &models.StudentProfile{Student: student, CourseIDs: []string{}}
	if student.ParentID != nil {
		guardian, err := r.FindByID(ctx, *student.ParentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		profile.Guardian = guardian
	}

	const coursesQuery = `SELECT course_id FROM student_courses WHERE student_id = $1 ORDER BY course_id`
	if err := r.db.SelectContext(ctx, &profile.CourseIDs, coursesQuery, id); err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	return profile, nil
}

// ListStudentProfiles loads every active student with guardian and course
// enrollments using one query per relation.
func (r *UserRepository) ListStudentProfiles(ctx context.Context) ([]models.StudentProfile, error) {
	students, err := r.ListByRoles(ctx, []models.UserRole{models.RoleStudent})
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return []models.StudentProfile{}, nil
	}

	const guardiansQuery = `SELECT ` + userColumns + ` FROM users WHERE id IN (SELECT parent_id FROM users WHERE role = 'STUDENT' AND parent_id IS NOT NULL)`
	var guardians []models.User
	if err := r.db.SelectContext(ctx, &guardians, guardiansQuery); err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	guardianByID := make(map[string]models.User, len(guardians))
	for _, g := range guardians {
		guardianByID[g.ID] = g
	}

	type enrollmentRow struct {
		StudentID string `db:"student_id"`
		CourseID  string `db:"course_id"`
	}
	var enrollments []enrollmentRow
	if err := r.db.SelectContext(ctx, &enrollments, `SELECT student_id, course_id FROM student_courses ORDER BY student_id, course_id`); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	coursesByStudent := make(map[string][]string)
	for _, e := range enrollments {
		coursesByStudent[e.StudentID] = append(coursesByStudent[e.StudentID], e.CourseID)
	}

	profiles := make([]models.StudentProfile, 0, len(students))
	for _, s := range students {
		p := models.StudentProfile{Student: s, CourseIDs: coursesByStudent[s.ID]}
		if p.CourseIDs == nil {
			p.CourseIDs = []string{}
		}
		if s.ParentID != nil {
			if g, ok := guardianByID[*s.ParentID]; ok {
				g := g
				p.Guardian = &g
			}
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// AssignSession sets or clears a student's academic session.
func (r *UserRepository) AssignSession(ctx context.Context, studentID string, sessionID *string) error {
	const query = `UPDATE users SET session_id = $2, updated_at = $3 WHERE id = $1 AND role = 'STUDENT'`
	res, err := r.db.ExecContext(ctx, query, studentID, sessionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearDeviceToken removes a push token rejected by the provider. The token
// is compared so that a token refreshed in the meantime is kept.
func (r *UserRepository) ClearDeviceToken(ctx context.Context, userID, token string) error {
	const query = `UPDATE users SET device_token = NULL, updated_at = $3 WHERE id = $1 AND device_token = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, token, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear device token: %w", err)
	}
	return nil
}

func rolesToStrings(roles []models.UserRole) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}
