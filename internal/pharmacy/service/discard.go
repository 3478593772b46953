package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/events"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/actor"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// DiscardService removes expired or unwanted stock from circulation.
// A discard consumes quantity across finalized batches in
// FIFO-by-expiry order, all inside one transaction: either every
// touched batch is decremented and recorded, or none is.
type DiscardService struct {
	db           *database.DB
	batchRepo    *repository.BatchRepository
	medicineRepo *repository.MedicineRepository
	discardRepo  *repository.DiscardRepository
	activityRepo *repository.ActivityLogRepository
	publisher    *events.PharmacyEventPublisher
	logger       *logger.Logger
}

// NewDiscardService creates a new discard service
func NewDiscardService(
	db *database.DB,
	batchRepo *repository.BatchRepository,
	medicineRepo *repository.MedicineRepository,
	discardRepo *repository.DiscardRepository,
	activityRepo *repository.ActivityLogRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *DiscardService {
	return &DiscardService{
		db:           db,
		batchRepo:    batchRepo,
		medicineRepo: medicineRepo,
		discardRepo:  discardRepo,
		activityRepo: activityRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// DiscardInput is the caller-supplied shape of a discard request.
// ScopeBatchID, when set, restricts the discard to one batch.
type DiscardInput struct {
	MedicineID   int64
	Quantity     int
	Reason       string
	ScopeBatchID string
}

// itemConsumption is one line item's contribution to a discard
type itemConsumption struct {
	item   *repository.LineItem
	amount int
}

// batchConsumption is one batch's planned contribution to a discard
type batchConsumption struct {
	batch *repository.Batch
	items []itemConsumption
}

// Discard removes the requested quantity of a medicine from finalized
// batches, earliest expiry first. Availability is evaluated before any
// mutation; if the total available is below the request the whole
// operation fails with InsufficientStock and nothing changes.
func (s *DiscardService) Discard(ctx context.Context, input DiscardInput, act *actor.Actor) ([]*repository.DiscardRecord, error) {
	if input.Quantity < 1 {
		return nil, errors.Validation(map[string]string{"quantity": "must be at least 1"})
	}

	medicine, err := s.medicineRepo.GetByID(ctx, input.MedicineID)
	if err != nil {
		return nil, err
	}

	var records []*repository.DiscardRecord

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		batches, err := s.eligibleBatches(ctx, tx, input)
		if err != nil {
			return err
		}

		plan, available := planConsumption(batches, input.MedicineID, input.Quantity)
		if available < input.Quantity {
			return errors.InsufficientStock(input.MedicineID, input.Quantity, available)
		}

		records = make([]*repository.DiscardRecord, 0, len(plan))
		for _, bc := range plan {
			recs, err := s.applyToBatch(ctx, tx, bc, medicine, input.Reason, act)
			if err != nil {
				return err
			}
			records = append(records, recs...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("medicine_id", input.MedicineID).
		Int("quantity", input.Quantity).
		Int("batches_touched", len(records)).
		Msg("stock discarded")
	s.publisher.PublishStockDiscarded(ctx, records, act.ID)
	s.checkLowStock(ctx, medicine)

	return records, nil
}

// ListRecords lists discard records, newest first
func (s *DiscardService) ListRecords(ctx context.Context, filter repository.DiscardFilter) ([]*repository.DiscardRecord, int64, error) {
	return s.discardRepo.List(ctx, filter)
}

// eligibleBatches locks and returns the batches a discard may consume
// from. Drafts are never eligible: unfinalized stock is not yet in
// circulation.
func (s *DiscardService) eligibleBatches(ctx context.Context, tx *sqlx.Tx, input DiscardInput) ([]*repository.Batch, error) {
	if input.ScopeBatchID == "" {
		return s.batchRepo.FindFinalizedByMedicineForUpdateTx(ctx, tx, input.MedicineID)
	}

	batch, err := s.batchRepo.GetForUpdateTx(ctx, tx, input.ScopeBatchID)
	if err != nil {
		return nil, err
	}
	if batch.IsDraft {
		return nil, errors.Validation(map[string]string{"scope_batch_id": "cannot discard from a draft batch"})
	}
	return []*repository.Batch{batch}, nil
}

// applyToBatch decrements the planned line items in one batch, routes
// the change through the diffed update path, and emits one discard
// record for the batch.
func (s *DiscardService) applyToBatch(ctx context.Context, tx *sqlx.Tx, bc batchConsumption, medicine *repository.Medicine, reason string, act *actor.Actor) ([]*repository.DiscardRecord, error) {
	batch := bc.batch
	prior := snapshotBatch(batch)

	consumed := 0
	for _, ic := range bc.items {
		ic.item.Quantity -= ic.amount
		ic.item.TotalAmount = float64(ic.item.Quantity) * ic.item.Price
		consumed += ic.amount
	}
	batch.OverallPrice = overallPrice(batch.LineItems)

	if err := s.batchRepo.UpdateTx(ctx, tx, batch, batch.Version); err != nil {
		return nil, err
	}

	changes := computeChanges(prior, batch)
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}

	if err := s.activityRepo.RecordTx(ctx, tx, &repository.ActivityEntry{
		BatchID:     batch.ID,
		BatchNumber: batch.BatchNumber,
		Action:      repository.ActionUpdated,
		Details:     fmt.Sprintf("Discarded %d units of %s", consumed, medicine.Name),
		Owner:       act.ID,
		Changes:     changesJSON,
	}); err != nil {
		return nil, err
	}

	// Exactly one record per batch touched. Price and expiry come from
	// the earliest-expiring item consumed; total value sums per item so
	// mixed prices within a batch stay accurate.
	first := bc.items[0].item
	var totalValue float64
	for _, ic := range bc.items {
		totalValue += float64(ic.amount) * ic.item.Price
	}

	rec := &repository.DiscardRecord{
		MedicineID:        medicine.ID,
		MedicineName:      first.MedicineName,
		BatchID:           batch.ID,
		BatchNumber:       batch.BatchNumber,
		QuantityDiscarded: consumed,
		PricePerUnit:      first.Price,
		TotalValue:        totalValue,
		ExpiryDate:        first.ExpiryDate,
		DiscardedBy:       act.ID,
		Reason:            reason,
	}
	if err := s.discardRepo.CreateTx(ctx, tx, rec); err != nil {
		return nil, err
	}

	return []*repository.DiscardRecord{rec}, nil
}

// checkLowStock publishes a low-stock event if the discard dropped the
// medicine below its reorder level. Fire-and-forget.
func (s *DiscardService) checkLowStock(ctx context.Context, medicine *repository.Medicine) {
	total, err := s.batchRepo.TotalFinalizedQuantity(ctx, medicine.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("medicine_id", medicine.ID).Msg("failed to check stock level after discard")
		return
	}
	if total < medicine.ReorderLevel {
		s.publisher.PublishLowStock(ctx, medicine, total)
	}
}

// planConsumption greedily allocates the requested quantity across the
// given batches in order, clamping each line item's contribution to its
// remaining quantity. It mutates nothing; the returned plan lists what
// to consume where. The second return is the total available quantity,
// which callers check against the request before applying.
func planConsumption(batches []*repository.Batch, medicineID int64, requested int) ([]batchConsumption, int) {
	available := 0
	remaining := requested
	var plan []batchConsumption

	for _, batch := range batches {
		items := medicineItems(batch, medicineID)

		var bc batchConsumption
		bc.batch = batch
		for _, item := range items {
			available += item.Quantity
			if remaining <= 0 || item.Quantity <= 0 {
				continue
			}

			amount := item.Quantity
			if amount > remaining {
				amount = remaining
			}
			bc.items = append(bc.items, itemConsumption{item: item, amount: amount})
			remaining -= amount
		}

		if len(bc.items) > 0 {
			plan = append(plan, bc)
		}
	}

	return plan, available
}

// medicineItems returns a batch's line items for one medicine with
// remaining stock, earliest expiry first.
func medicineItems(batch *repository.Batch, medicineID int64) []*repository.LineItem {
	var items []*repository.LineItem
	for _, item := range batch.LineItems {
		if item.MedicineID == medicineID && item.Quantity > 0 {
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].ExpiryDate, items[j].ExpiryDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	return items
}
