package service

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(t time.Time) *time.Time {
	return &t
}

func TestValidateLineItemInputs(t *testing.T) {
	valid := []LineItemInput{
		{MedicineID: 1, Quantity: 10, Price: 2.5},
		{MedicineID: 2, Quantity: 0, Price: 0},
	}
	assert.Empty(t, validateLineItemInputs(valid))

	invalid := []LineItemInput{
		{MedicineID: 1, Quantity: -1, Price: 2.5},
		{MedicineID: 2, Quantity: 5, Price: -0.01},
	}
	details := validateLineItemInputs(invalid)
	assert.Contains(t, details, "line_items[0].quantity")
	assert.Contains(t, details, "line_items[1].price")
	assert.Len(t, details, 2)
}

func TestValidateForFinalize(t *testing.T) {
	expiry := time.Now().AddDate(1, 0, 0)

	ok := []*repository.LineItem{
		{Quantity: 10, Price: 2.5, ExpiryDate: &expiry},
	}
	assert.Empty(t, validateForFinalize(ok))

	missing := []*repository.LineItem{
		{Quantity: 10, Price: 2.5, ExpiryDate: nil},
	}
	details := validateForFinalize(missing)
	assert.Contains(t, details, "line_items[0].expiry_date")

	// Zero price is allowed on drafts but blocks finalization
	freebie := []*repository.LineItem{
		{Quantity: 10, Price: 0, ExpiryDate: &expiry},
	}
	details = validateForFinalize(freebie)
	assert.Contains(t, details, "line_items[0].price")
}

func TestOverallPrice(t *testing.T) {
	items := []*repository.LineItem{
		{TotalAmount: 200},
		{TotalAmount: 50.5},
		{TotalAmount: 0},
	}
	assert.InDelta(t, 250.5, overallPrice(items), 0.001)
	assert.Zero(t, overallPrice(nil))
}

func TestComputeChanges_BatchFields(t *testing.T) {
	prior := &repository.Batch{
		BillID:              "BILL-1",
		MiscellaneousAmount: 10,
		DraftNote:           "note",
		Attachments:         pq.StringArray{"a.pdf"},
		OverallPrice:        100,
	}
	current := snapshotBatch(prior)
	current.BillID = "BILL-2"
	current.MiscellaneousAmount = 15

	changes := computeChanges(prior, current)
	require.Len(t, changes, 2)
	assert.Equal(t, "bill_id", changes[0].Field)
	assert.Equal(t, "BILL-1", changes[0].OldValue)
	assert.Equal(t, "BILL-2", changes[0].NewValue)
	assert.Equal(t, "miscellaneous_amount", changes[1].Field)
	assert.Equal(t, "10.00", changes[1].OldValue)
	assert.Equal(t, "15.00", changes[1].NewValue)
}

func TestComputeChanges_NoDifference(t *testing.T) {
	batch := &repository.Batch{
		BillID: "BILL-1",
		LineItems: []*repository.LineItem{
			{MedicineName: "Aspirin", Quantity: 100, Price: 2, TotalAmount: 200},
		},
	}
	assert.Empty(t, computeChanges(batch, snapshotBatch(batch)))
}

func TestComputeChanges_LineItemQuantity(t *testing.T) {
	expiry := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	prior := &repository.Batch{
		LineItems: []*repository.LineItem{
			{MedicineName: "Aspirin", Quantity: 100, Price: 2, TotalAmount: 200, ExpiryDate: &expiry},
		},
	}
	current := snapshotBatch(prior)
	current.LineItems[0].Quantity = 70
	current.LineItems[0].TotalAmount = 140

	changes := computeChanges(prior, current)
	require.Len(t, changes, 2)
	assert.Equal(t, "line_items[0].quantity", changes[0].Field)
	assert.Equal(t, "100", changes[0].OldValue)
	assert.Equal(t, "70", changes[0].NewValue)
	assert.Equal(t, "line_items[0].total_amount", changes[1].Field)
	assert.Equal(t, "200.00", changes[1].OldValue)
	assert.Equal(t, "140.00", changes[1].NewValue)
}

func TestComputeChanges_AddedAndRemovedItems(t *testing.T) {
	prior := &repository.Batch{
		LineItems: []*repository.LineItem{
			{MedicineName: "Aspirin", Quantity: 10, Price: 2},
		},
	}

	added := snapshotBatch(prior)
	added.LineItems = append(added.LineItems, &repository.LineItem{MedicineName: "Ibuprofen", Quantity: 5, Price: 3})

	changes := computeChanges(prior, added)
	require.Len(t, changes, 1)
	assert.Equal(t, "line_items[1]", changes[0].Field)
	assert.Equal(t, "(none)", changes[0].OldValue)
	assert.Contains(t, changes[0].NewValue, "Ibuprofen")

	removed := snapshotBatch(prior)
	removed.LineItems = nil

	changes = computeChanges(prior, removed)
	require.Len(t, changes, 1)
	assert.Equal(t, "line_items[0]", changes[0].Field)
	assert.Contains(t, changes[0].OldValue, "Aspirin")
	assert.Equal(t, "(none)", changes[0].NewValue)
}

func TestSnapshotBatch_IsolatedFromMutation(t *testing.T) {
	batch := &repository.Batch{
		Attachments: pq.StringArray{"a.pdf"},
		LineItems: []*repository.LineItem{
			{MedicineName: "Aspirin", Quantity: 100},
		},
	}

	snap := snapshotBatch(batch)
	batch.LineItems[0].Quantity = 1
	batch.Attachments[0] = "b.pdf"

	assert.Equal(t, 100, snap.LineItems[0].Quantity)
	assert.Equal(t, "a.pdf", snap.Attachments[0])
}

func TestSummarizeChanges(t *testing.T) {
	changes := []repository.FieldChange{
		{Field: "bill_id"},
		{Field: "line_items[0].quantity"},
	}
	assert.Equal(t, "Updated bill_id, line_items[0].quantity", summarizeChanges(changes))
}

func TestBuildLineItem_SnapshotsCatalog(t *testing.T) {
	expiry := time.Now().AddDate(0, 6, 0)
	medicine := &repository.Medicine{ID: 7, Name: "Paracetamol", ReorderLevel: 50}

	item := buildLineItem(LineItemInput{
		MedicineID: 7,
		Quantity:   100,
		Price:      2,
		ExpiryDate: datePtr(expiry),
	}, medicine)

	assert.Equal(t, int64(7), item.MedicineID)
	assert.Equal(t, "Paracetamol", item.MedicineName)
	assert.Equal(t, 50, item.ReorderLevel)
	assert.InDelta(t, 200.0, item.TotalAmount, 0.001)
}
