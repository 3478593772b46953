package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createDiscardRecord(t *testing.T, ctx context.Context, rec *repository.DiscardRecord) {
	t.Helper()

	repo := repository.NewDiscardRepository(suite.DB)
	inTx(t, ctx, func(tx *sqlx.Tx) error {
		return repo.CreateTx(ctx, tx, rec)
	})
}

func TestDiscardRepository_CreateTx_DefaultsReason(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	m := createMedicine(t, ctx)
	batch := batchFromFixture(suite.Fixtures.Batch())
	createBatch(t, ctx, batch)

	rec := &repository.DiscardRecord{
		MedicineID:        m.ID,
		MedicineName:      m.Name,
		BatchID:           batch.ID,
		BatchNumber:       batch.BatchNumber,
		QuantityDiscarded: 30,
		PricePerUnit:      2,
		TotalValue:        60,
		DiscardedBy:       "pharmacist-1",
	}
	createDiscardRecord(t, ctx, rec)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, repository.DefaultDiscardReason, rec.Reason)
	assert.False(t, rec.DiscardedAt.IsZero())
}

func TestDiscardRepository_List_NewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	m := createMedicine(t, ctx)
	batch := batchFromFixture(suite.Fixtures.Batch())
	createBatch(t, ctx, batch)

	for _, qty := range []int{10, 20} {
		createDiscardRecord(t, ctx, &repository.DiscardRecord{
			MedicineID:        m.ID,
			MedicineName:      m.Name,
			BatchID:           batch.ID,
			BatchNumber:       batch.BatchNumber,
			QuantityDiscarded: qty,
			DiscardedBy:       "pharmacist-1",
			Reason:            "Damaged",
		})
		time.Sleep(10 * time.Millisecond)
	}

	records, total, err := repository.NewDiscardRepository(suite.DB).List(ctx, repository.DiscardFilter{
		Page: 1, PerPage: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, records, 2)
	assert.Equal(t, 20, records[0].QuantityDiscarded)
	assert.Equal(t, "Damaged", records[0].Reason)
}

func TestDiscardRepository_List_FilterByMedicine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	m1 := createMedicine(t, ctx)
	m2 := createMedicine(t, ctx)
	batch := batchFromFixture(suite.Fixtures.Batch())
	createBatch(t, ctx, batch)

	for _, m := range []*repository.Medicine{m1, m2} {
		createDiscardRecord(t, ctx, &repository.DiscardRecord{
			MedicineID:        m.ID,
			MedicineName:      m.Name,
			BatchID:           batch.ID,
			BatchNumber:       batch.BatchNumber,
			QuantityDiscarded: 5,
			DiscardedBy:       "pharmacist-1",
		})
	}

	records, total, err := repository.NewDiscardRepository(suite.DB).List(ctx, repository.DiscardFilter{
		MedicineID: &m1.ID,
		Page:       1,
		PerPage:    20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, m1.ID, records[0].MedicineID)
}

func TestDiscardRepository_RecordsSurviveBatchDeletion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	m := createMedicine(t, ctx)
	batchRepo := repository.NewBatchRepository(suite.DB)
	batch := batchFromFixture(suite.Fixtures.Batch())
	createBatch(t, ctx, batch)

	createDiscardRecord(t, ctx, &repository.DiscardRecord{
		MedicineID:        m.ID,
		MedicineName:      m.Name,
		BatchID:           batch.ID,
		BatchNumber:       batch.BatchNumber,
		QuantityDiscarded: 5,
		DiscardedBy:       "pharmacist-1",
	})

	inTx(t, ctx, func(tx *sqlx.Tx) error {
		return batchRepo.DeleteTx(ctx, tx, batch.ID)
	})

	records, total, err := repository.NewDiscardRepository(suite.DB).List(ctx, repository.DiscardFilter{
		Page: 1, PerPage: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, batch.ID, records[0].BatchID)
}
