package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

func TestUpsertManyUsesOnConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, date)")).
		WithArgs(sqlmock.AnyArg(), "s1", day, models.AttendanceStatusAbsent, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "date", "status", "marked_by", "created_at", "updated_at"}).
			AddRow("existing-id", "s1", day, "ABSENT", nil, now, now))
	mock.ExpectCommit()

	stored, err := repo.UpsertMany(context.Background(), []models.Attendance{{StudentID: "s1", Date: day, Status: models.AttendanceStatusAbsent}})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "existing-id", stored[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertManyRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO attendance").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.UpsertMany(context.Background(), []models.Attendance{{StudentID: "s1", Status: models.AttendanceStatusPresent}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceSummaryComputesPercent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("FILTER \\(WHERE a.status IN \\('PRESENT', 'CHECKED_IN'\\)\\)").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "student_name", "present", "absent", "total"}).
			AddRow("s1", "Asha", 3, 1, 4).
			AddRow("s2", "Bilal", 0, 0, 0))

	rows, err := repo.Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.InDelta(t, 75.0, rows[0].Percent, 0.001)
	assert.Zero(t, rows[1].Percent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationBatchLifecycle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationBatchRepository(db)

	mock.ExpectExec("INSERT INTO notification_batches").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notification_batches SET status = $2, started_at = $3")).
		WithArgs(sqlmock.AnyArg(), models.BatchStatusRunning, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET sent_count = $2, failed_count = $3, skipped_count = $4")).
		WithArgs(sqlmock.AnyArg(), 3, 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET status = $2, error_message = $3, finished_at = $4")).
		WithArgs(sqlmock.AnyArg(), models.BatchStatusCompleted, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	batch := &models.NotificationBatch{Kind: models.EventAnnouncementPublished, Channel: models.ChannelPush, TargetGroup: models.TargetGroupAll}
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, batch))
	assert.Equal(t, models.BatchStatusQueued, batch.Status)
	require.NoError(t, repo.MarkRunning(ctx, batch.ID, time.Now()))
	require.NoError(t, repo.UpdateCounts(ctx, batch.ID, 3, 1, 0))
	require.NoError(t, repo.Finish(ctx, batch.ID, models.BatchStatusCompleted, nil, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessagesCreateManyInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	msgs := []models.Message{{RecipientID: "s1", Content: "hi"}, {RecipientID: "p1", Content: "MESSAGE ABOUT CHILD Asha: hi"}}
	require.NoError(t, repo.CreateMany(context.Background(), msgs))
	assert.NotEmpty(t, msgs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())

	rows, err := repo.ListForRecipients(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
