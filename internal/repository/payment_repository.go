package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

var (
	// ErrUnknownStudent is returned when a payment references a missing student.
	ErrUnknownStudent = errors.New("student does not exist")
	// ErrUnknownFeeEntry is returned when a payment references a missing fee entry.
	ErrUnknownFeeEntry = errors.New("fee entry does not exist")
)

const paymentColumns = `id, student_id, fee_entry_id, amount, method, recorded_by, paid_at`

// PaymentRepository is the append-only payment ledger.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create records a payment in a transaction that also verifies the student
// and fee entry exist. Missing references yield ErrUnknownStudent or
// ErrUnknownFeeEntry and nothing is written.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payment: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM users WHERE id = $1 AND role = 'STUDENT'`, payment.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownStudent
		}
		return fmt.Errorf("check payment student: %w", err)
	}
	if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM fee_entries WHERE id = $1 FOR KEY SHARE`, payment.FeeEntryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownFeeEntry
		}
		return fmt.Errorf("check payment fee entry: %w", err)
	}

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	query := `INSERT INTO payments (` + paymentColumns + `) VALUES (:id, :student_id, :fee_entry_id, :amount, :method, :recorded_by, :paid_at)`
	if _, err := tx.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payment: %w", err)
	}
	committed = true
	return nil
}

// FindDetail returns a payment with the student and fee entry names.
func (r *PaymentRepository) FindDetail(ctx context.Context, id string) (*models.PaymentDetail, error) {
	const query = `SELECT p.id, p.student_id, p.fee_entry_id, p.amount, p.method, p.recorded_by, p.paid_at,
u.name AS student_name, f.name AS fee_entry_name
FROM payments p
JOIN users u ON u.id = p.student_id
JOIN fee_entries f ON f.id = p.fee_entry_id
WHERE p.id = $1`
	var detail models.PaymentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &detail, nil
}

// ListByStudent returns a student's payments, newest first.
func (r *PaymentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE student_id = $1 ORDER BY paid_at DESC`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, studentID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// SumByStudent totals every payment of a student regardless of fee entry.
func (r *PaymentRepository) SumByStudent(ctx context.Context, studentID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE student_id = $1`
	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, studentID); err != nil {
		return decimal.Zero, fmt.Errorf("sum payments: %w", err)
	}
	return total, nil
}

// LatestIDs maps each student with payments to their most recent payment id.
func (r *PaymentRepository) LatestIDs(ctx context.Context) (map[string]string, error) {
	const query = `SELECT DISTINCT ON (student_id) student_id, id FROM payments ORDER BY student_id, paid_at DESC`
	var rows []struct {
		StudentID string `db:"student_id"`
		ID        string `db:"id"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list latest payments: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.StudentID] = row.ID
	}
	return out, nil
}
