package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
)

// Activity log actions
const (
	ActionCreated   = "CREATED"
	ActionFinalized = "FINALIZED"
	ActionUpdated   = "UPDATED"
	ActionDeleted   = "DELETED"
)

// maxDetailsLen caps the free-text details column
const maxDetailsLen = 500

// FieldChange records one field-level difference captured by an update
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// ActivityEntry records one batch mutation. Entries are append-only:
// they are never updated or deleted, and they reference their batch by
// id only so they remain queryable after the batch is gone.
type ActivityEntry struct {
	ID          string          `db:"id" json:"id"`
	BatchID     string          `db:"batch_id" json:"batch_id"`
	BatchNumber string          `db:"batch_number" json:"batch_number"`
	Action      string          `db:"action" json:"action"`
	Details     string          `db:"details" json:"details"`
	Owner       string          `db:"owner" json:"owner"`
	Changes     json.RawMessage `db:"changes" json:"changes,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// FieldChanges decodes the stored changes list, if any
func (e *ActivityEntry) FieldChanges() ([]FieldChange, error) {
	if len(e.Changes) == 0 {
		return nil, nil
	}
	var changes []FieldChange
	if err := json.Unmarshal(e.Changes, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// ActivityFilter narrows activity listings
type ActivityFilter struct {
	Action  string
	Page    int
	PerPage int
}

// ActivityLogRepository handles the append-only activity log.
// No UPDATE or DELETE is exposed.
type ActivityLogRepository struct {
	db *database.DB
}

// NewActivityLogRepository creates a new activity log repository
func NewActivityLogRepository(db *database.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// RecordTx appends an entry inside an existing transaction. Every batch
// mutation records its entry in the same transaction as the mutation
// itself, so no state change can land without its record.
func (r *ActivityLogRepository) RecordTx(ctx context.Context, tx *sqlx.Tx, entry *ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if len(entry.Details) > maxDetailsLen {
		entry.Details = entry.Details[:maxDetailsLen]
	}

	var changes interface{}
	if len(entry.Changes) > 0 {
		changes = []byte(entry.Changes)
	}

	query := `
		INSERT INTO activity_log (id, batch_id, batch_number, action, details, owner, changes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		entry.ID, entry.BatchID, entry.BatchNumber, entry.Action,
		entry.Details, entry.Owner, changes,
	).Scan(&entry.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ListByBatchID lists entries for a batch, newest first
func (r *ActivityLogRepository) ListByBatchID(ctx context.Context, batchID string, page, perPage int) ([]*ActivityEntry, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM activity_log WHERE batch_id = $1`, batchID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `
		SELECT * FROM activity_log
		WHERE batch_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var entries []*ActivityEntry
	if err := r.db.SelectContext(ctx, &entries, query, batchID, perPage, offset); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// ListByBatchNumber lists entries for a batch number, newest first
func (r *ActivityLogRepository) ListByBatchNumber(ctx context.Context, batchNumber string, page, perPage int) ([]*ActivityEntry, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM activity_log WHERE batch_number = $1`, batchNumber); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `
		SELECT * FROM activity_log
		WHERE batch_number = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var entries []*ActivityEntry
	if err := r.db.SelectContext(ctx, &entries, query, batchNumber, perPage, offset); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// List lists entries with an optional action filter, newest first
func (r *ActivityLogRepository) List(ctx context.Context, filter ActivityFilter) ([]*ActivityEntry, int64, error) {
	args := []interface{}{}
	argIdx := 1

	countQuery := `SELECT COUNT(*) FROM activity_log WHERE 1=1`
	query := `SELECT * FROM activity_log WHERE 1=1`

	if filter.Action != "" {
		countQuery += fmt.Sprintf(` AND action = $%d`, argIdx)
		query += fmt.Sprintf(` AND action = $%d`, argIdx)
		args = append(args, filter.Action)
		argIdx++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC`

	offset := (filter.Page - 1) * filter.PerPage
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, filter.PerPage, offset)

	var entries []*ActivityEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
