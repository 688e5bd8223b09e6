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
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

const feeEntryColumns = `id, name, amount, due_date, session_id, course_id, created_at, updated_at`

// feeEntryRow mirrors fee_entries; the nullable course_id becomes a FeeScope.
type feeEntryRow struct {
	ID        string          `db:"id"`
	Name      string          `db:"name"`
	Amount    decimal.Decimal `db:"amount"`
	DueDate   time.Time       `db:"due_date"`
	SessionID string          `db:"session_id"`
	CourseID  sql.NullString  `db:"course_id"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (row feeEntryRow) toModel() models.FeeEntry {
	scope := models.SessionScoped()
	if row.CourseID.Valid {
		scope = models.CourseScoped(row.CourseID.String)
	}
	return models.FeeEntry{
		ID:        row.ID,
		Name:      row.Name,
		Amount:    row.Amount,
		DueDate:   row.DueDate,
		SessionID: row.SessionID,
		Scope:     scope,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func fromFeeEntry(entry *models.FeeEntry) feeEntryRow {
	row := feeEntryRow{
		ID:        entry.ID,
		Name:      entry.Name,
		Amount:    entry.Amount,
		DueDate:   entry.DueDate,
		SessionID: entry.SessionID,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
	if entry.Scope.IsCourse() {
		row.CourseID = sql.NullString{String: entry.Scope.CourseID, Valid: true}
	}
	return row
}

func toFeeEntries(rows []feeEntryRow) []models.FeeEntry {
	out := make([]models.FeeEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}

// FeeCatalogRepository persists fee catalog entries.
type FeeCatalogRepository struct {
	db *sqlx.DB
}

// NewFeeCatalogRepository constructs the repository.
func NewFeeCatalogRepository(db *sqlx.DB) *FeeCatalogRepository {
	return &FeeCatalogRepository{db: db}
}

// FindByID returns a catalog entry.
func (r *FeeCatalogRepository) FindByID(ctx context.Context, id string) (*models.FeeEntry, error) {
	query := `SELECT ` + feeEntryColumns + ` FROM fee_entries WHERE id = $1`
	var row feeEntryRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get fee entry: %w", err)
	}
	entry := row.toModel()
	return &entry, nil
}

// List returns catalog entries ordered by due date.
func (r *FeeCatalogRepository) List(ctx context.Context, filter models.FeeEntryFilter) ([]models.FeeEntry, error) {
	where := []string{"1=1"}
	var args []interface{}
	if filter.SessionID != "" {
		where = append(where, fmt.Sprintf("session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	query := fmt.Sprintf("SELECT %s FROM fee_entries WHERE %s ORDER BY due_date ASC, name ASC", feeEntryColumns, strings.Join(where, " AND "))
	var rows []feeEntryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list fee entries: %w", err)
	}
	return toFeeEntries(rows), nil
}

// ListApplicable returns every entry scoped to one of courseIDs plus every
// session-wide entry of sessionID. A nil sessionID matches no session-wide entry.
func (r *FeeCatalogRepository) ListApplicable(ctx context.Context, courseIDs []string, sessionID *string) ([]models.FeeEntry, error) {
	query := `SELECT ` + feeEntryColumns + ` FROM fee_entries
WHERE course_id = ANY($1) OR (course_id IS NULL AND session_id = $2)
ORDER BY due_date ASC`
	if courseIDs == nil {
		courseIDs = []string{}
	}
	var rows []feeEntryRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(courseIDs), sessionID); err != nil {
		return nil, fmt.Errorf("list applicable fee entries: %w", err)
	}
	return toFeeEntries(rows), nil
}

// Create inserts a catalog entry.
func (r *FeeCatalogRepository) Create(ctx context.Context, entry *models.FeeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	query := `INSERT INTO fee_entries (` + feeEntryColumns + `)
VALUES (:id, :name, :amount, :due_date, :session_id, :course_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, fromFeeEntry(entry)); err != nil {
		return fmt.Errorf("create fee entry: %w", err)
	}
	return nil
}

// Update modifies a catalog entry.
func (r *FeeCatalogRepository) Update(ctx context.Context, entry *models.FeeEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	query := `UPDATE fee_entries SET name = :name, amount = :amount, due_date = :due_date, session_id = :session_id,
course_id = :course_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, fromFeeEntry(entry)); err != nil {
		return fmt.Errorf("update fee entry: %w", err)
	}
	return nil
}

// Delete removes a catalog entry.
func (r *FeeCatalogRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM fee_entries WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete fee entry: %w", err)
	}
	return nil
}
