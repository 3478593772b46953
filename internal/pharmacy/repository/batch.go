package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// Batch represents one purchase/intake event grouping medicine line items
// under one bill. A batch starts as a draft and is finalized exactly once;
// only finalized batches participate in stock aggregation.
type Batch struct {
	ID                  string         `db:"id" json:"id"`
	BatchNumber         string         `db:"batch_number" json:"batch_number"`
	BillID              string         `db:"bill_id" json:"bill_id"`
	MiscellaneousAmount float64        `db:"miscellaneous_amount" json:"miscellaneous_amount"`
	OverallPrice        float64        `db:"overall_price" json:"overall_price"`
	Attachments         pq.StringArray `db:"attachments" json:"attachments"`
	IsDraft             bool           `db:"is_draft" json:"is_draft"`
	DraftNote           string         `db:"draft_note" json:"draft_note"`
	FinalizedAt         *time.Time     `db:"finalized_at" json:"finalized_at,omitempty"`
	CreatedBy           string         `db:"created_by" json:"created_by"`
	Version             int            `db:"version" json:"version"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`

	LineItems []*LineItem `db:"-" json:"line_items"`
}

// LineItem is one medicine's quantity/price/expiry record within a batch.
// Medicine name and reorder level are snapshots taken when the item was
// entered; they are never re-read from the catalog afterwards.
type LineItem struct {
	ID             string     `db:"id" json:"id"`
	BatchID        string     `db:"batch_id" json:"batch_id"`
	Position       int        `db:"position" json:"position"`
	MedicineID     int64      `db:"medicine_id" json:"medicine_id"`
	MedicineName   string     `db:"medicine_name" json:"medicine_name"`
	Quantity       int        `db:"quantity" json:"quantity"`
	Price          float64    `db:"price" json:"price"`
	ExpiryDate     *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	DateOfPurchase *time.Time `db:"date_of_purchase" json:"date_of_purchase,omitempty"`
	ReorderLevel   int        `db:"reorder_level" json:"reorder_level"`
	TotalAmount    float64    `db:"total_amount" json:"total_amount"`
}

// BatchFilter narrows batch listings
type BatchFilter struct {
	IsDraft *bool
	Page    int
	PerPage int
}

// BatchRepository handles batch and line-item persistence. Batches
// exclusively own their line items: items are written and deleted with
// their batch and have no independent lifecycle.
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// CreateTx creates a batch with its line items inside an existing
// transaction. The caller records the matching activity entry in the
// same transaction.
func (r *BatchRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Attachments == nil {
		batch.Attachments = pq.StringArray{}
	}

	query := `
		INSERT INTO batches (
			id, batch_number, bill_id, miscellaneous_amount, overall_price,
			attachments, is_draft, draft_note, finalized_at, created_by, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING version, created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.BatchNumber, batch.BillID, batch.MiscellaneousAmount,
		batch.OverallPrice, batch.Attachments, batch.IsDraft, batch.DraftNote,
		batch.FinalizedAt, batch.CreatedBy,
	).Scan(&batch.Version, &batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errors.DuplicateBatchNumber(batch.BatchNumber)
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return r.insertLineItemsTx(ctx, tx, batch.ID, batch.LineItems)
}

// UpdateTx rewrites a batch and its line items inside an existing
// transaction. The write is guarded by the version read at the start of
// the operation: if another transaction bumped it in between, no row
// matches and the caller gets a retryable WriteConflict.
func (r *BatchRepository) UpdateTx(ctx context.Context, tx *sqlx.Tx, batch *Batch, expectedVersion int) error {
	if batch.Attachments == nil {
		batch.Attachments = pq.StringArray{}
	}

	query := `
		UPDATE batches SET
			bill_id = $3, miscellaneous_amount = $4, overall_price = $5,
			attachments = $6, is_draft = $7, draft_note = $8, finalized_at = $9,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, expectedVersion, batch.BillID, batch.MiscellaneousAmount,
		batch.OverallPrice, batch.Attachments, batch.IsDraft, batch.DraftNote,
		batch.FinalizedAt,
	).Scan(&batch.Version, &batch.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return errors.WriteConflict(batch.BatchNumber)
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	// Line items are replaced wholesale with their batch
	if _, err := tx.ExecContext(ctx, `DELETE FROM batch_line_items WHERE batch_id = $1`, batch.ID); err != nil {
		return err
	}

	return r.insertLineItemsTx(ctx, tx, batch.ID, batch.LineItems)
}

// DeleteTx removes a batch inside an existing transaction. Line items go
// with it via cascade; activity entries and discard records reference the
// batch by id only and survive.
func (r *BatchRepository) DeleteTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}

	return nil
}

// GetForUpdateTx loads a batch with its line items, locking the batch row
// for the remainder of the transaction.
func (r *BatchRepository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM batches WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}

	items, err := r.lineItemsForTx(ctx, tx, []string{batch.ID})
	if err != nil {
		return nil, err
	}
	batch.LineItems = items[batch.ID]
	if batch.LineItems == nil {
		batch.LineItems = []*LineItem{}
	}

	return &batch, nil
}

// FindFinalizedByMedicineForUpdateTx loads the finalized batches holding
// remaining stock of a medicine, ordered by that medicine's earliest
// expiry (soonest-expiring stock is consumed first). Batch rows are
// locked for the remainder of the transaction.
func (r *BatchRepository) FindFinalizedByMedicineForUpdateTx(ctx context.Context, tx *sqlx.Tx, medicineID int64) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT b.* FROM batches b
		WHERE b.is_draft = false AND b.id IN (
			SELECT batch_id FROM batch_line_items
			WHERE medicine_id = $1 AND quantity > 0
		)
		ORDER BY (
			SELECT MIN(li.expiry_date) FROM batch_line_items li
			WHERE li.batch_id = b.id AND li.medicine_id = $1 AND li.quantity > 0
		) ASC NULLS LAST, b.created_at ASC
		FOR UPDATE OF b
	`
	if err := tx.SelectContext(ctx, &batches, query, medicineID); err != nil {
		return nil, err
	}

	if err := r.attachLineItemsTx(ctx, tx, batches); err != nil {
		return nil, err
	}

	return batches, nil
}

// GetByID gets a batch with its line items
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}

	if err := r.attachLineItems(ctx, []*Batch{&batch}); err != nil {
		return nil, err
	}

	return &batch, nil
}

// GetByBatchNumber gets a batch by its human-facing batch number
func (r *BatchRepository) GetByBatchNumber(ctx context.Context, batchNumber string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM batches WHERE batch_number = $1`
	if err := r.db.GetContext(ctx, &batch, query, batchNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}

	if err := r.attachLineItems(ctx, []*Batch{&batch}); err != nil {
		return nil, err
	}

	return &batch, nil
}

// List lists batches with pagination and an optional draft filter
func (r *BatchRepository) List(ctx context.Context, filter BatchFilter) ([]*Batch, int64, error) {
	args := []interface{}{}
	where := ` WHERE 1=1`

	if filter.IsDraft != nil {
		args = append(args, *filter.IsDraft)
		where += ` AND is_draft = $1`
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM batches`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PerPage
	query := `SELECT * FROM batches` + where + ` ORDER BY created_at DESC`
	if filter.IsDraft != nil {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, filter.PerPage, offset)

	var batches []*Batch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, err
	}

	if err := r.attachLineItems(ctx, batches); err != nil {
		return nil, 0, err
	}

	return batches, total, nil
}

// ListFinalizedWithItemsTx loads every finalized batch with its line
// items inside an existing transaction. The aggregation engine calls
// this within a repeatable-read snapshot.
func (r *BatchRepository) ListFinalizedWithItemsTx(ctx context.Context, tx *sqlx.Tx) ([]*Batch, error) {
	var batches []*Batch
	query := `SELECT * FROM batches WHERE is_draft = false ORDER BY created_at`
	if err := tx.SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}

	if err := r.attachLineItemsTx(ctx, tx, batches); err != nil {
		return nil, err
	}

	return batches, nil
}

// TotalFinalizedQuantity sums a medicine's remaining quantity across
// all finalized batches.
func (r *BatchRepository) TotalFinalizedQuantity(ctx context.Context, medicineID int64) (int, error) {
	var total int
	query := `
		SELECT COALESCE(SUM(li.quantity), 0)
		FROM batch_line_items li
		JOIN batches b ON b.id = li.batch_id
		WHERE li.medicine_id = $1 AND b.is_draft = false
	`
	if err := r.db.GetContext(ctx, &total, query, medicineID); err != nil {
		return 0, err
	}
	return total, nil
}

// insertLineItemsTx writes the line items for a batch, preserving order
func (r *BatchRepository) insertLineItemsTx(ctx context.Context, tx *sqlx.Tx, batchID string, items []*LineItem) error {
	query := `
		INSERT INTO batch_line_items (
			id, batch_id, position, medicine_id, medicine_name, quantity,
			price, expiry_date, date_of_purchase, reorder_level, total_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for i, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.BatchID = batchID
		item.Position = i

		_, err := tx.ExecContext(ctx, query,
			item.ID, item.BatchID, item.Position, item.MedicineID, item.MedicineName,
			item.Quantity, item.Price, item.ExpiryDate, item.DateOfPurchase,
			item.ReorderLevel, item.TotalAmount,
		)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
	}

	return nil
}

func (r *BatchRepository) attachLineItems(ctx context.Context, batches []*Batch) error {
	ids := make([]string, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
	}

	items, err := r.lineItemsFor(ctx, ids)
	if err != nil {
		return err
	}

	for _, b := range batches {
		b.LineItems = items[b.ID]
		if b.LineItems == nil {
			b.LineItems = []*LineItem{}
		}
	}
	return nil
}

func (r *BatchRepository) attachLineItemsTx(ctx context.Context, tx *sqlx.Tx, batches []*Batch) error {
	ids := make([]string, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
	}

	items, err := r.lineItemsForTx(ctx, tx, ids)
	if err != nil {
		return err
	}

	for _, b := range batches {
		b.LineItems = items[b.ID]
		if b.LineItems == nil {
			b.LineItems = []*LineItem{}
		}
	}
	return nil
}

const lineItemsForQuery = `
	SELECT * FROM batch_line_items
	WHERE batch_id = ANY($1)
	ORDER BY batch_id, position
`

func (r *BatchRepository) lineItemsFor(ctx context.Context, batchIDs []string) (map[string][]*LineItem, error) {
	if len(batchIDs) == 0 {
		return map[string][]*LineItem{}, nil
	}

	var items []*LineItem
	if err := r.db.SelectContext(ctx, &items, lineItemsForQuery, pq.Array(batchIDs)); err != nil {
		return nil, err
	}

	return groupLineItems(items), nil
}

func (r *BatchRepository) lineItemsForTx(ctx context.Context, tx *sqlx.Tx, batchIDs []string) (map[string][]*LineItem, error) {
	if len(batchIDs) == 0 {
		return map[string][]*LineItem{}, nil
	}

	var items []*LineItem
	if err := tx.SelectContext(ctx, &items, lineItemsForQuery, pq.Array(batchIDs)); err != nil {
		return nil, err
	}

	return groupLineItems(items), nil
}

func groupLineItems(items []*LineItem) map[string][]*LineItem {
	grouped := make(map[string][]*LineItem)
	for _, item := range items {
		grouped[item.BatchID] = append(grouped[item.BatchID], item)
	}
	return grouped
}
