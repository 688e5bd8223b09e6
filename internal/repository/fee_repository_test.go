package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

var feeEntryColumnNames = []string{"id", "name", "amount", "due_date", "session_id", "course_id", "created_at", "updated_at"}

func TestListApplicableMapsScopes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeCatalogRepository(db)

	due := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	session := "sess-1"
	mock.ExpectQuery(regexp.QuoteMeta("WHERE course_id = ANY($1) OR (course_id IS NULL AND session_id = $2)")).
		WithArgs(sqlmock.AnyArg(), "sess-1").
		WillReturnRows(sqlmock.NewRows(feeEntryColumnNames).
			AddRow("f1", "Tuition", "1000.00", due, "sess-1", "c1", now, now).
			AddRow("f2", "Exam", "500.00", due, "sess-1", nil, now, now))

	entries, err := repo.ListApplicable(context.Background(), []string{"c1"}, &session)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.CourseScoped("c1"), entries[0].Scope)
	assert.Equal(t, models.SessionScoped(), entries[1].Scope)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(1000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFeeEntryWritesNullCourseForSessionScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeCatalogRepository(db)

	mock.ExpectExec("INSERT INTO fee_entries").
		WithArgs(sqlmock.AnyArg(), "Exam", sqlmock.AnyArg(), sqlmock.AnyArg(), "sess-1", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.FeeEntry{Name: "Exam", Amount: decimal.NewFromInt(500), DueDate: time.Now(), SessionID: "sess-1", Scope: models.SessionScoped()}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE id = $1 AND role = 'STUDENT'")).
		WithArgs("s1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM fee_entries WHERE id = $1 FOR KEY SHARE")).
		WithArgs("f1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	payment := &models.Payment{StudentID: "s1", FeeEntryID: "f1", Amount: decimal.NewFromInt(1500), Method: models.PaymentMethodCash}
	require.NoError(t, repo.Create(context.Background(), payment))
	assert.NotEmpty(t, payment.ID)
	assert.False(t, payment.PaidAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentUnknownFeeEntryRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM users").WithArgs("s1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM fee_entries").WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Payment{StudentID: "s1", FeeEntryID: "missing", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrUnknownFeeEntry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentInsertFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM users").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM fee_entries").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("INSERT INTO payments").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Payment{StudentID: "s1", FeeEntryID: "f1", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownFeeEntry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumByStudentCountsEveryPayment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0) FROM payments WHERE student_id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("2750.50"))

	total, err := repo.SumByStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "2750.50", total.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestPaymentIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT ON (student_id) student_id, id FROM payments")).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "id"}).AddRow("s1", "p9"))

	latest, err := repo.LatestIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"s1": "p9"}, latest)
	assert.NoError(t, mock.ExpectationsWereMet())
}
