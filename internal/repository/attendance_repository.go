package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

const attendanceUpsert = `INSERT INTO attendance (id, student_id, date, status, marked_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (student_id, date)
DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
RETURNING id, student_id, date, status, marked_by, created_at, updated_at`

// AttendanceRepository persists one attendance row per student per day.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// UpsertMany writes all records in one transaction. A second mark for the
// same student and date updates the existing row. Stored rows are returned in
// input order.
func (r *AttendanceRepository) UpsertMany(ctx context.Context, records []models.Attendance) ([]models.Attendance, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	stored := make([]models.Attendance, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		var row models.Attendance
		if err := tx.QueryRowxContext(ctx, attendanceUpsert, rec.ID, rec.StudentID, rec.Date, rec.Status, rec.MarkedBy, now, now).StructScan(&row); err != nil {
			return nil, fmt.Errorf("upsert attendance for %s: %w", rec.StudentID, err)
		}
		stored = append(stored, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance: %w", err)
	}
	committed = true
	return stored, nil
}

// History returns a student's most recent attendance rows.
func (r *AttendanceRepository) History(ctx context.Context, studentID string, limit int) ([]models.AttendanceHistoryRow, error) {
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	const query = `SELECT date, status FROM attendance WHERE student_id = $1 ORDER BY date DESC LIMIT $2`
	var rows []models.AttendanceHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("attendance history: %w", err)
	}
	return rows, nil
}

// Summary returns per-student totals. Checked-in days count as present.
func (r *AttendanceRepository) Summary(ctx context.Context) ([]models.AttendanceSummary, error) {
	const query = `SELECT u.id AS student_id, u.name AS student_name,
COUNT(a.id) FILTER (WHERE a.status IN ('PRESENT', 'CHECKED_IN')) AS present,
COUNT(a.id) FILTER (WHERE a.status = 'ABSENT') AS absent,
COUNT(a.id) AS total
FROM users u
LEFT JOIN attendance a ON a.student_id = u.id
WHERE u.role = 'STUDENT' AND u.active = TRUE
GROUP BY u.id, u.name
ORDER BY u.name ASC`
	var rows []models.AttendanceSummary
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	for i := range rows {
		if rows[i].Total > 0 {
			rows[i].Percent = float64(rows[i].Present) / float64(rows[i].Total) * 100
		}
	}
	return rows, nil
}
