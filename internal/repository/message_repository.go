package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

// MessageRepository stores portal copies of notifications.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMany inserts messages in one transaction.
func (r *MessageRepository) CreateMany(ctx context.Context, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin messages: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `INSERT INTO messages (id, sender_id, recipient_id, content, sent_at) VALUES (:id, :sender_id, :recipient_id, :content, :sent_at)`
	for i := range messages {
		msg := &messages[i]
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.SentAt.IsZero() {
			msg.SentAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, msg); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	committed = true
	return nil
}

// ListForRecipients returns messages addressed to any of recipientIDs, newest first.
func (r *MessageRepository) ListForRecipients(ctx context.Context, recipientIDs []string, limit int) ([]models.MessageView, error) {
	if len(recipientIDs) == 0 {
		return []models.MessageView{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT m.id, m.sender_id, m.recipient_id, m.content, m.sent_at,
s.name AS sender_name, r.name AS recipient_name
FROM messages m
JOIN users r ON r.id = m.recipient_id
LEFT JOIN users s ON s.id = m.sender_id
WHERE m.recipient_id = ANY($1)
ORDER BY m.sent_at DESC
LIMIT $2`
	var rows []models.MessageView
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(recipientIDs), limit); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return rows, nil
}
