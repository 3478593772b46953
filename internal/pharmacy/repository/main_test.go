package repository_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/testutil"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

// createMedicine inserts a catalog entry built from fixture defaults
func createMedicine(t *testing.T, ctx context.Context, opts ...func(*testutil.MedicineFixture)) *repository.Medicine {
	t.Helper()

	f := suite.Fixtures.Medicine(opts...)
	m := &repository.Medicine{
		Name:         f.Name,
		Category:     f.Category,
		Manufacturer: f.Manufacturer,
		ReorderLevel: f.ReorderLevel,
		IsActive:     f.IsActive,
	}

	repo := repository.NewMedicineRepository(suite.DB)
	require.NoError(t, repo.Create(ctx, m))
	return m
}

// batchFromFixture converts a batch fixture into a repository batch
func batchFromFixture(f testutil.BatchFixture) *repository.Batch {
	b := &repository.Batch{
		ID:          f.ID,
		BatchNumber: f.BatchNumber,
		BillID:      f.BillID,
		IsDraft:     f.IsDraft,
		CreatedBy:   f.CreatedBy,
	}
	if !f.IsDraft {
		now := time.Now()
		b.FinalizedAt = &now
	}

	for _, li := range f.LineItems {
		b.LineItems = append(b.LineItems, &repository.LineItem{
			MedicineID:   li.MedicineID,
			MedicineName: li.MedicineName,
			Quantity:     li.Quantity,
			Price:        li.Price,
			ExpiryDate:   li.ExpiryDate,
			ReorderLevel: li.ReorderLevel,
			TotalAmount:  float64(li.Quantity) * li.Price,
		})
	}

	return b
}

// createBatch inserts a batch with its line items
func createBatch(t *testing.T, ctx context.Context, batch *repository.Batch) {
	t.Helper()

	repo := repository.NewBatchRepository(suite.DB)
	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		return repo.CreateTx(ctx, tx, batch)
	})
	require.NoError(t, err)
}

// inTx runs fn inside a transaction and requires it to commit
func inTx(t *testing.T, ctx context.Context, fn func(tx *sqlx.Tx) error) {
	t.Helper()
	require.NoError(t, suite.DB.Transaction(ctx, fn))
}
