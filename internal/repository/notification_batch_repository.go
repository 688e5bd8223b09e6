package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

const batchColumns = `id, kind, channel, target_group, subject, body, status, sent_count, failed_count, skipped_count, error_message, created_by, created_at, started_at, finished_at`

// NotificationBatchRepository tracks asynchronous bulk dispatches.
type NotificationBatchRepository struct {
	db *sqlx.DB
}

// NewNotificationBatchRepository constructs the repository.
func NewNotificationBatchRepository(db *sqlx.DB) *NotificationBatchRepository {
	return &NotificationBatchRepository{db: db}
}

// Create persists a new batch.
func (r *NotificationBatchRepository) Create(ctx context.Context, batch *models.NotificationBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusQueued
	}
	query := `INSERT INTO notification_batches (` + batchColumns + `)
VALUES (:id, :kind, :channel, :target_group, :subject, :body, :status, :sent_count, :failed_count, :skipped_count, :error_message, :created_by, :created_at, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create notification batch: %w", err)
	}
	return nil
}

// FindByID returns a batch.
func (r *NotificationBatchRepository) FindByID(ctx context.Context, id string) (*models.NotificationBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM notification_batches WHERE id = $1`
	var batch models.NotificationBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get notification batch: %w", err)
	}
	return &batch, nil
}

// MarkRunning moves a batch to RUNNING.
func (r *NotificationBatchRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	const query = `UPDATE notification_batches SET status = $2, started_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.BatchStatusRunning, startedAt); err != nil {
		return fmt.Errorf("mark batch running: %w", err)
	}
	return nil
}

// UpdateCounts stores delivery counters without changing status.
func (r *NotificationBatchRepository) UpdateCounts(ctx context.Context, id string, sent, failed, skipped int) error {
	const query = `UPDATE notification_batches SET sent_count = $2, failed_count = $3, skipped_count = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, sent, failed, skipped); err != nil {
		return fmt.Errorf("update batch counts: %w", err)
	}
	return nil
}

// Finish records the terminal status.
func (r *NotificationBatchRepository) Finish(ctx context.Context, id string, status models.BatchStatus, errorMessage *string, finishedAt time.Time) error {
	const query = `UPDATE notification_batches SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, errorMessage, finishedAt); err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	return nil
}
