package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// Medicine is a catalog entry. Medicines are never deleted, only
// deactivated, so batch line items always keep a valid reference.
type Medicine struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Category     string    `db:"category" json:"category"`
	Manufacturer string    `db:"manufacturer" json:"manufacturer"`
	ReorderLevel int       `db:"reorder_level" json:"reorder_level"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// MedicineRepository handles medicine catalog persistence
type MedicineRepository struct {
	db *database.DB
}

// NewMedicineRepository creates a new medicine repository
func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

// Create creates a new catalog entry
func (r *MedicineRepository) Create(ctx context.Context, m *Medicine) error {
	query := `
		INSERT INTO medicines (name, category, manufacturer, reorder_level, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.Name, m.Category, m.Manufacturer, m.ReorderLevel, m.IsActive,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a medicine by ID
func (r *MedicineRepository) GetByID(ctx context.Context, id int64) (*Medicine, error) {
	var m Medicine
	query := `SELECT * FROM medicines WHERE id = $1`
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &m, nil
}

// GetByIDTx gets a medicine by ID inside an existing transaction
func (r *MedicineRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id int64) (*Medicine, error) {
	var m Medicine
	query := `SELECT * FROM medicines WHERE id = $1`
	if err := tx.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &m, nil
}

// Update updates a catalog entry
func (r *MedicineRepository) Update(ctx context.Context, m *Medicine) error {
	query := `
		UPDATE medicines SET
			name = $2, category = $3, manufacturer = $4, reorder_level = $5,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		m.ID, m.Name, m.Category, m.Manufacturer, m.ReorderLevel,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medicine")
	}

	return nil
}

// Deactivate marks a medicine inactive. There is no delete path:
// historical batches keep referencing the entry.
func (r *MedicineRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE medicines SET is_active = false, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medicine")
	}

	return nil
}

// List lists medicines with pagination and optional category/active filters
func (r *MedicineRepository) List(ctx context.Context, page, perPage int, category string, activeOnly bool) ([]*Medicine, int64, error) {
	args := []interface{}{}
	where := ` WHERE 1=1`

	if category != "" {
		args = append(args, category)
		where += ` AND category = $1`
	}
	if activeOnly {
		where += ` AND is_active = true`
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM medicines`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT * FROM medicines` + where + ` ORDER BY name`
	if category != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, perPage, offset)

	var medicines []*Medicine
	if err := r.db.SelectContext(ctx, &medicines, query, args...); err != nil {
		return nil, 0, err
	}

	return medicines, total, nil
}

// GetAllActive gets all active medicines
func (r *MedicineRepository) GetAllActive(ctx context.Context) ([]*Medicine, error) {
	var medicines []*Medicine
	query := `SELECT * FROM medicines WHERE is_active = true ORDER BY name`
	if err := r.db.SelectContext(ctx, &medicines, query); err != nil {
		return nil, err
	}
	return medicines, nil
}

// GetAllActiveTx gets all active medicines inside an existing transaction.
// Used by the aggregation snapshot so the catalog and the batch set are
// read from the same point in time.
func (r *MedicineRepository) GetAllActiveTx(ctx context.Context, tx *sqlx.Tx) ([]*Medicine, error) {
	var medicines []*Medicine
	query := `SELECT * FROM medicines WHERE is_active = true ORDER BY name`
	if err := tx.SelectContext(ctx, &medicines, query); err != nil {
		return nil, err
	}
	return medicines, nil
}
