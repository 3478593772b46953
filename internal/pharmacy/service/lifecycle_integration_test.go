package service_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/actor"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
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

func newBatchService() *service.BatchService {
	return service.NewBatchService(
		suite.DB,
		repository.NewBatchRepository(suite.DB),
		repository.NewMedicineRepository(suite.DB),
		repository.NewActivityLogRepository(suite.DB),
		nil, // no event publisher needed for these tests
		suite.Logger,
	)
}

func newDiscardService() *service.DiscardService {
	return service.NewDiscardService(
		suite.DB,
		repository.NewBatchRepository(suite.DB),
		repository.NewMedicineRepository(suite.DB),
		repository.NewDiscardRepository(suite.DB),
		repository.NewActivityLogRepository(suite.DB),
		nil,
		suite.Logger,
	)
}

func newReportService() *service.ReportService {
	return service.NewReportService(
		suite.DB,
		repository.NewBatchRepository(suite.DB),
		repository.NewMedicineRepository(suite.DB),
		suite.Logger,
	)
}

func newExportService() *service.ExportService {
	return service.NewExportService(
		newReportService(),
		repository.NewDiscardRepository(suite.DB),
		suite.Logger,
	)
}

func testActor() *actor.Actor {
	f := suite.Fixtures.Actor()
	return &actor.Actor{ID: f.ID, Name: f.Name, Role: f.Role}
}

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
	require.NoError(t, repository.NewMedicineRepository(suite.DB).Create(ctx, m))
	return m
}

// createFinalizedBatch runs the real draft-then-finalize flow
func createFinalizedBatch(t *testing.T, ctx context.Context, svc *service.BatchService, act *actor.Actor, items ...service.LineItemInput) *repository.Batch {
	t.Helper()

	draft, err := svc.CreateDraft(ctx, service.CreateDraftInput{
		BatchNumber: suite.Fixtures.Batch().BatchNumber,
		BillID:      "BILL-TEST",
		LineItems:   items,
	}, act)
	require.NoError(t, err)

	finalized, err := svc.Finalize(ctx, draft.ID, act)
	require.NoError(t, err)
	return finalized
}

func expiryIn(days int) *time.Time {
	d := time.Now().AddDate(0, 0, days)
	return &d
}

func TestBatchLifecycle_DraftToFinalized(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newBatchService()
	act := testActor()
	m := createMedicine(t, ctx)

	draft, err := svc.CreateDraft(ctx, service.CreateDraftInput{
		BatchNumber: "BATCH-LIFE-1",
		BillID:      "BILL-1",
		LineItems: []service.LineItemInput{
			{MedicineID: m.ID, Quantity: 100, Price: 2, ExpiryDate: expiryIn(365)},
		},
	}, act)
	require.NoError(t, err)
	assert.True(t, draft.IsDraft)
	assert.Equal(t, 1, draft.Version)
	assert.InDelta(t, 200.0, draft.OverallPrice, 0.001)
	// Catalog values are snapshotted onto the item
	require.Len(t, draft.LineItems, 1)
	assert.Equal(t, m.Name, draft.LineItems[0].MedicineName)
	assert.Equal(t, m.ReorderLevel, draft.LineItems[0].ReorderLevel)

	finalized, err := svc.Finalize(ctx, draft.ID, act)
	require.NoError(t, err)
	assert.False(t, finalized.IsDraft)
	require.NotNil(t, finalized.FinalizedAt)

	// A second finalize is rejected
	_, err = svc.Finalize(ctx, draft.ID, act)
	assert.True(t, errors.Is(err, errors.ErrAlreadyFinalized))

	// Both transitions are on the audit trail, newest first
	entries, _, err := repository.NewActivityLogRepository(suite.DB).ListByBatchID(ctx, draft.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, repository.ActionFinalized, entries[0].Action)
	assert.Equal(t, repository.ActionCreated, entries[1].Action)
	assert.Equal(t, act.ID, entries[0].Owner)
}

func TestFinalize_RejectsIncompleteItems(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newBatchService()
	act := testActor()
	m := createMedicine(t, ctx)

	// Missing expiry and zero price are fine on a draft
	draft, err := svc.CreateDraft(ctx, service.CreateDraftInput{
		BatchNumber: "BATCH-INCOMPLETE",
		LineItems: []service.LineItemInput{
			{MedicineID: m.ID, Quantity: 10, Price: 0},
		},
	}, act)
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, draft.ID, act)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Details, "line_items[0].expiry_date")
	assert.Contains(t, appErr.Details, "line_items[0].price")

	// The batch is untouched
	got, err := svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDraft)
}

func TestUpdate_DiffsAndExpectedVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newBatchService()
	act := testActor()
	m := createMedicine(t, ctx)

	draft, err := svc.CreateDraft(ctx, service.CreateDraftInput{
		BatchNumber: "BATCH-UPD",
		BillID:      "BILL-OLD",
		LineItems: []service.LineItemInput{
			{MedicineID: m.ID, Quantity: 100, Price: 2, ExpiryDate: expiryIn(365)},
		},
	}, act)
	require.NoError(t, err)

	newBill := "BILL-NEW"
	updated, err := svc.Update(ctx, draft.ID, service.UpdateBatchInput{BillID: &newBill}, act)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// The diff landed on the activity log
	entries, _, err := repository.NewActivityLogRepository(suite.DB).ListByBatchID(ctx, draft.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, repository.ActionUpdated, entries[0].Action)
	changes, err := entries[0].FieldChanges()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "bill_id", changes[0].Field)
	assert.Equal(t, "BILL-OLD", changes[0].OldValue)
	assert.Equal(t, "BILL-NEW", changes[0].NewValue)

	// A writer holding the stale version is told to retry
	stale := 1
	note := "late edit"
	_, err = svc.Update(ctx, draft.ID, service.UpdateBatchInput{DraftNote: &note, ExpectedVersion: &stale}, act)
	assert.True(t, errors.Is(err, errors.ErrWriteConflict))
}

func TestUpdate_NoOpSkipsActivity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newBatchService()
	act := testActor()
	m := createMedicine(t, ctx)

	draft, err := svc.CreateDraft(ctx, service.CreateDraftInput{
		BatchNumber: "BATCH-NOOP",
		BillID:      "BILL-1",
		LineItems: []service.LineItemInput{
			{MedicineID: m.ID, Quantity: 10, Price: 1, ExpiryDate: expiryIn(365)},
		},
	}, act)
	require.NoError(t, err)

	same := "BILL-1"
	updated, err := svc.Update(ctx, draft.ID, service.UpdateBatchInput{BillID: &same}, act)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)

	_, total, err := repository.NewActivityLogRepository(suite.DB).ListByBatchID(ctx, draft.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total) // only the CREATED entry
}

func TestDelete_AuditTrailSurvives(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc := newBatchService()
	act := testActor()
	m := createMedicine(t, ctx)

	draft, err := svc.CreateDraft(ctx, service.CreateDraftInput{
		BatchNumber: "BATCH-DEL",
		LineItems: []service.LineItemInput{
			{MedicineID: m.ID, Quantity: 10, Price: 1},
		},
	}, act)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, draft.ID, act))

	_, err = svc.Get(ctx, draft.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	entries, _, err := repository.NewActivityLogRepository(suite.DB).ListByBatchID(ctx, draft.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, repository.ActionDeleted, entries[0].Action)
}

func TestDiscard_SingleBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	batchSvc := newBatchService()
	discardSvc := newDiscardService()
	act := testActor()
	m := createMedicine(t, ctx)

	batch := createFinalizedBatch(t, ctx, batchSvc, act,
		service.LineItemInput{MedicineID: m.ID, Quantity: 100, Price: 2, ExpiryDate: expiryIn(30)},
	)

	records, err := discardSvc.Discard(ctx, service.DiscardInput{
		MedicineID: m.ID,
		Quantity:   30,
		Reason:     "Expired",
	}, act)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, 30, records[0].QuantityDiscarded)
	assert.InDelta(t, 2.0, records[0].PricePerUnit, 0.001)
	assert.InDelta(t, 60.0, records[0].TotalValue, 0.001)
	assert.Equal(t, batch.BatchNumber, records[0].BatchNumber)

	// The batch reflects the decrement with recomputed totals
	got, err := batchSvc.Get(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, 70, got.LineItems[0].Quantity)
	assert.InDelta(t, 140.0, got.LineItems[0].TotalAmount, 0.001)
	assert.InDelta(t, 140.0, got.OverallPrice, 0.001)

	// The decrement is an UPDATED entry with a quantity diff
	entries, _, err := repository.NewActivityLogRepository(suite.DB).ListByBatchID(ctx, batch.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, repository.ActionUpdated, entries[0].Action)
	changes, err := entries[0].FieldChanges()
	require.NoError(t, err)
	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.Field
	}
	assert.Contains(t, fields, "line_items[0].quantity")
}

func TestDiscard_SpansBatchesEarliestExpiryFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	batchSvc := newBatchService()
	discardSvc := newDiscardService()
	act := testActor()
	m := createMedicine(t, ctx)

	late := createFinalizedBatch(t, ctx, batchSvc, act,
		service.LineItemInput{MedicineID: m.ID, Quantity: 50, Price: 3, ExpiryDate: expiryIn(180)},
	)
	early := createFinalizedBatch(t, ctx, batchSvc, act,
		service.LineItemInput{MedicineID: m.ID, Quantity: 20, Price: 2, ExpiryDate: expiryIn(7)},
	)

	records, err := discardSvc.Discard(ctx, service.DiscardInput{
		MedicineID: m.ID,
		Quantity:   35,
	}, act)
	require.NoError(t, err)

	// One record per batch touched: the early batch is drained first
	require.Len(t, records, 2)
	assert.Equal(t, early.BatchNumber, records[0].BatchNumber)
	assert.Equal(t, 20, records[0].QuantityDiscarded)
	assert.Equal(t, late.BatchNumber, records[1].BatchNumber)
	assert.Equal(t, 15, records[1].QuantityDiscarded)

	gotEarly, err := batchSvc.Get(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gotEarly.LineItems[0].Quantity)

	gotLate, err := batchSvc.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, 35, gotLate.LineItems[0].Quantity)
}

func TestDiscard_InsufficientStockChangesNothing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	batchSvc := newBatchService()
	discardSvc := newDiscardService()
	act := testActor()
	m := createMedicine(t, ctx)

	batch := createFinalizedBatch(t, ctx, batchSvc, act,
		service.LineItemInput{MedicineID: m.ID, Quantity: 10, Price: 2, ExpiryDate: expiryIn(30)},
	)

	_, err := discardSvc.Discard(ctx, service.DiscardInput{
		MedicineID: m.ID,
		Quantity:   50,
	}, act)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "10", appErr.Details["available"])
	assert.Equal(t, "50", appErr.Details["requested"])

	// All-or-nothing: the batch is untouched and no record exists
	got, err := batchSvc.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.LineItems[0].Quantity)

	_, total, err := discardSvc.ListRecords(ctx, repository.DiscardFilter{Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestDiscard_ScopedToBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	batchSvc := newBatchService()
	discardSvc := newDiscardService()
	act := testActor()
	m := createMedicine(t, ctx)

	// The other batch expires sooner, but the scope pins the target
	createFinalizedBatch(t, ctx, batchSvc, act,
		service.LineItemInput{MedicineID: m.ID, Quantity: 100, Price: 2, ExpiryDate: expiryIn(7)},
	)
	target := createFinalizedBatch(t, ctx, batchSvc, act,
		service.LineItemInput{MedicineID: m.ID, Quantity: 40, Price: 2, ExpiryDate: expiryIn(180)},
	)

	records, err := discardSvc.Discard(ctx, service.DiscardInput{
		MedicineID:   m.ID,
		Quantity:     40,
		ScopeBatchID: target.ID,
	}, act)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, target.BatchNumber, records[0].BatchNumber)

	// Scoped availability is the scoped batch only
	_, err = discardSvc.Discard(ctx, service.DiscardInput{
		MedicineID:   m.ID,
		Quantity:     1,
		ScopeBatchID: target.ID,
	}, act)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
}

func TestDiscard_DraftStockIsInvisible(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	batchSvc := newBatchService()
	discardSvc := newDiscardService()
	act := testActor()
	m := createMedicine(t, ctx)

	draft, err := batchSvc.CreateDraft(ctx, service.CreateDraftInput{
		BatchNumber: "BATCH-DRAFT-ONLY",
		LineItems: []service.LineItemInput{
			{MedicineID: m.ID, Quantity: 100, Price: 2, ExpiryDate: expiryIn(30)},
		},
	}, act)
	require.NoError(t, err)

	_, err = discardSvc.Discard(ctx, service.DiscardInput{MedicineID: m.ID, Quantity: 1}, act)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	_, err = discardSvc.Discard(ctx, service.DiscardInput{
		MedicineID:   m.ID,
		Quantity:     1,
		ScopeBatchID: draft.ID,
	}, act)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestReports_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	batchSvc := newBatchService()
	reportSvc := newReportService()
	act := testActor()

	low := createMedicine(t, ctx, testutil.WithReorderLevel(100))
	healthy := createMedicine(t, ctx, testutil.WithReorderLevel(10))

	createFinalizedBatch(t, ctx, batchSvc, act,
		service.LineItemInput{MedicineID: low.ID, Quantity: 30, Price: 2, ExpiryDate: expiryIn(5)},
		service.LineItemInput{MedicineID: healthy.ID, Quantity: 200, Price: 1, ExpiryDate: expiryIn(365)},
	)

	lowStock, err := reportSvc.LowStock(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, lowStock.Count)
	assert.Equal(t, low.ID, lowStock.Medicines[0].MedicineID)
	assert.Equal(t, 30, lowStock.Medicines[0].TotalQuantity)

	expiry, err := reportSvc.Expiry(ctx)
	require.NoError(t, err)
	assert.Empty(t, expiry.Expired)
	require.Len(t, expiry.ExpiringSoon, 1)
	assert.Equal(t, low.ID, expiry.ExpiringSoon[0].MedicineID)
	assert.Equal(t, 30, expiry.ExpiringSoon[0].TotalQuantity)

	dashboard, err := reportSvc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dashboard.LowStock)
	assert.Equal(t, 1, dashboard.NearExpiry)
	assert.Equal(t, 0, dashboard.AlreadyExpired)
	assert.InDelta(t, 30*2+200*1, dashboard.StockValue, 0.001)

	trend, err := reportSvc.Trend(ctx, "month")
	require.NoError(t, err)
	require.NotEmpty(t, trend)
	assert.Equal(t, 230, trend[len(trend)-1].Quantity)

	_, err = reportSvc.Trend(ctx, "daily")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestReports_DraftsExcluded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	batchSvc := newBatchService()
	reportSvc := newReportService()
	act := testActor()
	m := createMedicine(t, ctx, testutil.WithReorderLevel(50))

	_, err := batchSvc.CreateDraft(ctx, service.CreateDraftInput{
		BatchNumber: "BATCH-DRAFT-REP",
		LineItems: []service.LineItemInput{
			{MedicineID: m.ID, Quantity: 500, Price: 2, ExpiryDate: expiryIn(365)},
		},
	}, act)
	require.NoError(t, err)

	// Draft stock counts for nothing: the medicine is still low
	lowStock, err := reportSvc.LowStock(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, lowStock.Count)
	assert.Zero(t, lowStock.Medicines[0].TotalQuantity)

	dashboard, err := reportSvc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, dashboard.StockValue)
}

func TestExportRegisters_ProducePDF(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	batchSvc := newBatchService()
	discardSvc := newDiscardService()
	exportSvc := newExportService()
	act := testActor()
	m := createMedicine(t, ctx)

	createFinalizedBatch(t, ctx, batchSvc, act,
		service.LineItemInput{MedicineID: m.ID, Quantity: 60, Price: 2, ExpiryDate: expiryIn(3)},
	)
	_, err := discardSvc.Discard(ctx, service.DiscardInput{MedicineID: m.ID, Quantity: 10}, act)
	require.NoError(t, err)

	expiryPDF, err := exportSvc.ExpiryRegisterPDF(ctx)
	require.NoError(t, err)
	require.True(t, len(expiryPDF) >= 4)
	assert.Equal(t, "%PDF", string(expiryPDF[:4]))

	discardPDF, err := exportSvc.DiscardRegisterPDF(ctx)
	require.NoError(t, err)
	require.True(t, len(discardPDF) >= 4)
	assert.Equal(t, "%PDF", string(discardPDF[:4]))
}
