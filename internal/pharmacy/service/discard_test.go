package service

import (
	"testing"
	"time"

	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockBatch(number string, items ...*repository.LineItem) *repository.Batch {
	return &repository.Batch{
		ID:          "id-" + number,
		BatchNumber: number,
		IsDraft:     false,
		LineItems:   items,
	}
}

func TestPlanConsumption_SingleBatch(t *testing.T) {
	expiry := time.Now().AddDate(0, 0, 5)
	batches := []*repository.Batch{
		stockBatch("B-001", &repository.LineItem{MedicineID: 7, Quantity: 100, Price: 2, ExpiryDate: &expiry}),
	}

	plan, available := planConsumption(batches, 7, 30)

	assert.Equal(t, 100, available)
	require.Len(t, plan, 1)
	require.Len(t, plan[0].items, 1)
	assert.Equal(t, 30, plan[0].items[0].amount)
}

func TestPlanConsumption_SpansBatchesInOrder(t *testing.T) {
	soon := time.Now().AddDate(0, 0, 3)
	later := time.Now().AddDate(0, 1, 0)
	batches := []*repository.Batch{
		stockBatch("B-001", &repository.LineItem{MedicineID: 7, Quantity: 20, ExpiryDate: &soon}),
		stockBatch("B-002", &repository.LineItem{MedicineID: 7, Quantity: 50, ExpiryDate: &later}),
	}

	plan, available := planConsumption(batches, 7, 35)

	assert.Equal(t, 70, available)
	require.Len(t, plan, 2)
	// First batch drained entirely, remainder from the second
	assert.Equal(t, 20, plan[0].items[0].amount)
	assert.Equal(t, "B-001", plan[0].batch.BatchNumber)
	assert.Equal(t, 15, plan[1].items[0].amount)
	assert.Equal(t, "B-002", plan[1].batch.BatchNumber)
}

func TestPlanConsumption_InsufficientStillReportsAvailable(t *testing.T) {
	expiry := time.Now().AddDate(0, 0, 5)
	batches := []*repository.Batch{
		stockBatch("B-001", &repository.LineItem{MedicineID: 7, Quantity: 10, ExpiryDate: &expiry}),
	}

	_, available := planConsumption(batches, 7, 50)
	assert.Equal(t, 10, available)
}

func TestPlanConsumption_IgnoresOtherMedicinesAndEmptyItems(t *testing.T) {
	expiry := time.Now().AddDate(0, 0, 5)
	batches := []*repository.Batch{
		stockBatch("B-001",
			&repository.LineItem{MedicineID: 7, Quantity: 0, ExpiryDate: &expiry},
			&repository.LineItem{MedicineID: 9, Quantity: 100, ExpiryDate: &expiry},
			&repository.LineItem{MedicineID: 7, Quantity: 25, ExpiryDate: &expiry},
		),
	}

	plan, available := planConsumption(batches, 7, 25)

	assert.Equal(t, 25, available)
	require.Len(t, plan, 1)
	require.Len(t, plan[0].items, 1)
	assert.Equal(t, int64(7), plan[0].items[0].item.MedicineID)
	assert.Equal(t, 25, plan[0].items[0].amount)
}

func TestPlanConsumption_WithinBatchEarliestExpiryFirst(t *testing.T) {
	soon := time.Now().AddDate(0, 0, 2)
	later := time.Now().AddDate(0, 2, 0)
	batches := []*repository.Batch{
		stockBatch("B-001",
			&repository.LineItem{MedicineID: 7, Quantity: 30, ExpiryDate: &later},
			&repository.LineItem{MedicineID: 7, Quantity: 30, ExpiryDate: &soon},
		),
	}

	plan, _ := planConsumption(batches, 7, 40)

	require.Len(t, plan, 1)
	require.Len(t, plan[0].items, 2)
	// The soon-expiring item is drained before the later one
	assert.Equal(t, &soon, plan[0].items[0].item.ExpiryDate)
	assert.Equal(t, 30, plan[0].items[0].amount)
	assert.Equal(t, &later, plan[0].items[1].item.ExpiryDate)
	assert.Equal(t, 10, plan[0].items[1].amount)
}

func TestPlanConsumption_NilExpirySortsLast(t *testing.T) {
	soon := time.Now().AddDate(0, 0, 2)
	batches := []*repository.Batch{
		stockBatch("B-001",
			&repository.LineItem{MedicineID: 7, Quantity: 30, ExpiryDate: nil},
			&repository.LineItem{MedicineID: 7, Quantity: 30, ExpiryDate: &soon},
		),
	}

	plan, _ := planConsumption(batches, 7, 10)

	require.Len(t, plan, 1)
	require.Len(t, plan[0].items, 1)
	assert.Equal(t, &soon, plan[0].items[0].item.ExpiryDate)
}

func TestPlanConsumption_MutatesNothing(t *testing.T) {
	expiry := time.Now().AddDate(0, 0, 5)
	item := &repository.LineItem{MedicineID: 7, Quantity: 100, ExpiryDate: &expiry}
	batches := []*repository.Batch{stockBatch("B-001", item)}

	planConsumption(batches, 7, 60)

	assert.Equal(t, 100, item.Quantity)
}
