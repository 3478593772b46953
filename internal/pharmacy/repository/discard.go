package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
)

// DefaultDiscardReason is used when no reason is supplied
const DefaultDiscardReason = "Expired"

// DiscardRecord is the immutable record of stock removed from
// circulation. One record is created per batch touched by a discard.
// It references its batch by id/number only and outlives it.
type DiscardRecord struct {
	ID                string     `db:"id" json:"id"`
	MedicineID        int64      `db:"medicine_id" json:"medicine_id"`
	MedicineName      string     `db:"medicine_name" json:"medicine_name"`
	BatchID           string     `db:"batch_id" json:"batch_id"`
	BatchNumber       string     `db:"batch_number" json:"batch_number"`
	QuantityDiscarded int        `db:"quantity_discarded" json:"quantity_discarded"`
	PricePerUnit      float64    `db:"price_per_unit" json:"price_per_unit"`
	TotalValue        float64    `db:"total_value" json:"total_value"`
	ExpiryDate        *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	DiscardedBy       string     `db:"discarded_by" json:"discarded_by"`
	Reason            string     `db:"reason" json:"reason"`
	DiscardedAt       time.Time  `db:"discarded_at" json:"discarded_at"`
}

// DiscardFilter narrows discard record listings
type DiscardFilter struct {
	MedicineID *int64
	Page       int
	PerPage    int
}

// DiscardRepository handles discard record persistence. Records are
// created once and never modified.
type DiscardRepository struct {
	db *database.DB
}

// NewDiscardRepository creates a new discard repository
func NewDiscardRepository(db *database.DB) *DiscardRepository {
	return &DiscardRepository{db: db}
}

// CreateTx creates a discard record inside an existing transaction, so
// the record lands atomically with the batch mutation it documents.
func (r *DiscardRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, rec *DiscardRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Reason == "" {
		rec.Reason = DefaultDiscardReason
	}

	query := `
		INSERT INTO discard_records (
			id, medicine_id, medicine_name, batch_id, batch_number,
			quantity_discarded, price_per_unit, total_value, expiry_date,
			discarded_by, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING discarded_at
	`

	err := tx.QueryRowxContext(ctx, query,
		rec.ID, rec.MedicineID, rec.MedicineName, rec.BatchID, rec.BatchNumber,
		rec.QuantityDiscarded, rec.PricePerUnit, rec.TotalValue, rec.ExpiryDate,
		rec.DiscardedBy, rec.Reason,
	).Scan(&rec.DiscardedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// List lists discard records with an optional medicine filter, newest first
func (r *DiscardRepository) List(ctx context.Context, filter DiscardFilter) ([]*DiscardRecord, int64, error) {
	args := []interface{}{}
	argIdx := 1

	countQuery := `SELECT COUNT(*) FROM discard_records WHERE 1=1`
	query := `SELECT * FROM discard_records WHERE 1=1`

	if filter.MedicineID != nil {
		countQuery += fmt.Sprintf(` AND medicine_id = $%d`, argIdx)
		query += fmt.Sprintf(` AND medicine_id = $%d`, argIdx)
		args = append(args, *filter.MedicineID)
		argIdx++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY discarded_at DESC`

	offset := (filter.Page - 1) * filter.PerPage
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, filter.PerPage, offset)

	var records []*DiscardRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
