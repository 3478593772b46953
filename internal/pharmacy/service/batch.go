package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/events"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/pkg/actor"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
	"github.com/pharmstock/pharmstock-backend/pkg/messaging"
)

// BatchService handles batch lifecycle business logic. Every mutation
// writes its activity entry in the same transaction as the change, so
// no state change can land without a durable record.
type BatchService struct {
	db           *database.DB
	batchRepo    *repository.BatchRepository
	medicineRepo *repository.MedicineRepository
	activityRepo *repository.ActivityLogRepository
	publisher    *events.PharmacyEventPublisher
	logger       *logger.Logger
}

// NewBatchService creates a new batch service
func NewBatchService(
	db *database.DB,
	batchRepo *repository.BatchRepository,
	medicineRepo *repository.MedicineRepository,
	activityRepo *repository.ActivityLogRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *BatchService {
	return &BatchService{
		db:           db,
		batchRepo:    batchRepo,
		medicineRepo: medicineRepo,
		activityRepo: activityRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// LineItemInput is the caller-supplied shape of one line item
type LineItemInput struct {
	MedicineID     int64      `json:"medicine_id"`
	Quantity       int        `json:"quantity"`
	Price          float64    `json:"price"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	DateOfPurchase *time.Time `json:"date_of_purchase,omitempty"`
}

// CreateDraftInput is the caller-supplied shape of a new draft batch
type CreateDraftInput struct {
	BatchNumber         string
	BillID              string
	MiscellaneousAmount float64
	DraftNote           string
	Attachments         []string
	LineItems           []LineItemInput
}

// UpdateBatchInput is a partial replacement of a batch's mutable fields.
// Nil fields are left unchanged. ExpectedVersion, when set, is the
// version the caller last read; a mismatch against current state fails
// with a retryable WriteConflict.
type UpdateBatchInput struct {
	BillID              *string
	MiscellaneousAmount *float64
	DraftNote           *string
	Attachments         []string
	LineItems           []LineItemInput
	ExpectedVersion     *int
}

// CreateDraft creates a new draft batch with its line items. Medicine
// name and reorder level are snapshotted from the catalog at this
// moment and never re-read afterwards.
func (s *BatchService) CreateDraft(ctx context.Context, input CreateDraftInput, act *actor.Actor) (*repository.Batch, error) {
	if details := validateLineItemInputs(input.LineItems); len(details) > 0 {
		return nil, errors.Validation(details)
	}

	items, err := s.resolveLineItems(ctx, input.LineItems)
	if err != nil {
		return nil, err
	}

	batch := &repository.Batch{
		BatchNumber:         input.BatchNumber,
		BillID:              input.BillID,
		MiscellaneousAmount: input.MiscellaneousAmount,
		OverallPrice:        overallPrice(items),
		Attachments:         pq.StringArray(input.Attachments),
		IsDraft:             true,
		DraftNote:           input.DraftNote,
		CreatedBy:           act.ID,
		LineItems:           items,
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.batchRepo.CreateTx(ctx, tx, batch); err != nil {
			return err
		}
		return s.activityRepo.RecordTx(ctx, tx, &repository.ActivityEntry{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Action:      repository.ActionCreated,
			Details:     fmt.Sprintf("Draft batch created with %d line items", len(items)),
			Owner:       act.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("batch_id", batch.ID).Str("batch_number", batch.BatchNumber).Msg("draft batch created")
	s.publisher.PublishBatchLifecycle(ctx, messaging.EventBatchCreated, batch, act.ID)

	return batch, nil
}

// Finalize transitions a draft batch to finalized. The transition is
// one-way: there is no edge back to draft.
func (s *BatchService) Finalize(ctx context.Context, batchID string, act *actor.Actor) (*repository.Batch, error) {
	var batch *repository.Batch

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		batch, err = s.batchRepo.GetForUpdateTx(ctx, tx, batchID)
		if err != nil {
			return err
		}

		if !batch.IsDraft {
			return errors.AlreadyFinalized(batch.BatchNumber)
		}

		if details := validateForFinalize(batch.LineItems); len(details) > 0 {
			return errors.Validation(details)
		}

		now := time.Now()
		batch.IsDraft = false
		batch.FinalizedAt = &now

		if err := s.batchRepo.UpdateTx(ctx, tx, batch, batch.Version); err != nil {
			return err
		}

		return s.activityRepo.RecordTx(ctx, tx, &repository.ActivityEntry{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Action:      repository.ActionFinalized,
			Details:     "Batch finalized, stock now in circulation",
			Owner:       act.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("batch_id", batch.ID).Str("batch_number", batch.BatchNumber).Msg("batch finalized")
	s.publisher.PublishBatchLifecycle(ctx, messaging.EventBatchFinalized, batch, act.ID)

	return batch, nil
}

// Update applies a partial replacement to a batch, computing a
// field-level diff against the prior state. The diff lands in the
// activity log, making every quantity change auditable. This is the
// single mutating write path for line items; the discard workflow
// routes through the same diff-and-record sequence.
func (s *BatchService) Update(ctx context.Context, batchID string, input UpdateBatchInput, act *actor.Actor) (*repository.Batch, error) {
	if input.LineItems != nil {
		if details := validateLineItemInputs(input.LineItems); len(details) > 0 {
			return nil, errors.Validation(details)
		}
	}

	var batch *repository.Batch

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		batch, err = s.batchRepo.GetForUpdateTx(ctx, tx, batchID)
		if err != nil {
			return err
		}

		if input.ExpectedVersion != nil && *input.ExpectedVersion != batch.Version {
			return errors.WriteConflict(batch.BatchNumber)
		}

		prior := snapshotBatch(batch)

		if input.BillID != nil {
			batch.BillID = *input.BillID
		}
		if input.MiscellaneousAmount != nil {
			batch.MiscellaneousAmount = *input.MiscellaneousAmount
		}
		if input.DraftNote != nil {
			batch.DraftNote = *input.DraftNote
		}
		if input.Attachments != nil {
			batch.Attachments = pq.StringArray(input.Attachments)
		}
		if input.LineItems != nil {
			items, err := s.resolveLineItemsTx(ctx, tx, input.LineItems)
			if err != nil {
				return err
			}
			batch.LineItems = items
		} else {
			// Re-derive totals even for untouched items
			for _, item := range batch.LineItems {
				item.TotalAmount = float64(item.Quantity) * item.Price
			}
		}
		batch.OverallPrice = overallPrice(batch.LineItems)

		changes := computeChanges(prior, batch)
		if len(changes) == 0 {
			return nil
		}

		if err := s.batchRepo.UpdateTx(ctx, tx, batch, batch.Version); err != nil {
			return err
		}

		changesJSON, err := json.Marshal(changes)
		if err != nil {
			return err
		}

		return s.activityRepo.RecordTx(ctx, tx, &repository.ActivityEntry{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Action:      repository.ActionUpdated,
			Details:     summarizeChanges(changes),
			Owner:       act.ID,
			Changes:     changesJSON,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("batch_id", batch.ID).Str("batch_number", batch.BatchNumber).Msg("batch updated")
	s.publisher.PublishBatchLifecycle(ctx, messaging.EventBatchUpdated, batch, act.ID)

	return batch, nil
}

// Delete hard-deletes a batch. The DELETED activity entry is written in
// the same transaction, so the audit trail explains the disappearance.
// Activity entries and discard records carry no FK and survive.
func (s *BatchService) Delete(ctx context.Context, batchID string, act *actor.Actor) error {
	var batch *repository.Batch

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		batch, err = s.batchRepo.GetForUpdateTx(ctx, tx, batchID)
		if err != nil {
			return err
		}

		if err := s.activityRepo.RecordTx(ctx, tx, &repository.ActivityEntry{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Action:      repository.ActionDeleted,
			Details:     fmt.Sprintf("Batch deleted with %d line items", len(batch.LineItems)),
			Owner:       act.ID,
		}); err != nil {
			return err
		}

		return s.batchRepo.DeleteTx(ctx, tx, batch.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("batch_id", batch.ID).Str("batch_number", batch.BatchNumber).Msg("batch deleted")
	s.publisher.PublishBatchLifecycle(ctx, messaging.EventBatchDeleted, batch, act.ID)

	return nil
}

// Get gets a batch by ID
func (s *BatchService) Get(ctx context.Context, batchID string) (*repository.Batch, error) {
	return s.batchRepo.GetByID(ctx, batchID)
}

// GetByBatchNumber gets a batch by its batch number
func (s *BatchService) GetByBatchNumber(ctx context.Context, batchNumber string) (*repository.Batch, error) {
	return s.batchRepo.GetByBatchNumber(ctx, batchNumber)
}

// List lists batches with pagination and an optional draft filter
func (s *BatchService) List(ctx context.Context, filter repository.BatchFilter) ([]*repository.Batch, int64, error) {
	return s.batchRepo.List(ctx, filter)
}

// resolveLineItems turns line-item inputs into persisted line items,
// snapshotting name and reorder level from the catalog.
func (s *BatchService) resolveLineItems(ctx context.Context, inputs []LineItemInput) ([]*repository.LineItem, error) {
	items := make([]*repository.LineItem, len(inputs))
	for i, in := range inputs {
		medicine, err := s.medicineRepo.GetByID(ctx, in.MedicineID)
		if err != nil {
			return nil, err
		}
		items[i] = buildLineItem(in, medicine)
	}
	return items, nil
}

func (s *BatchService) resolveLineItemsTx(ctx context.Context, tx *sqlx.Tx, inputs []LineItemInput) ([]*repository.LineItem, error) {
	items := make([]*repository.LineItem, len(inputs))
	for i, in := range inputs {
		medicine, err := s.medicineRepo.GetByIDTx(ctx, tx, in.MedicineID)
		if err != nil {
			return nil, err
		}
		items[i] = buildLineItem(in, medicine)
	}
	return items, nil
}

func buildLineItem(in LineItemInput, medicine *repository.Medicine) *repository.LineItem {
	return &repository.LineItem{
		MedicineID:     medicine.ID,
		MedicineName:   medicine.Name,
		Quantity:       in.Quantity,
		Price:          in.Price,
		ExpiryDate:     in.ExpiryDate,
		DateOfPurchase: in.DateOfPurchase,
		ReorderLevel:   medicine.ReorderLevel,
		TotalAmount:    float64(in.Quantity) * in.Price,
	}
}

// validateLineItemInputs enforces the create/update rules: quantities
// and prices must not be negative.
func validateLineItemInputs(inputs []LineItemInput) map[string]string {
	details := map[string]string{}
	for i, in := range inputs {
		if in.Quantity < 0 {
			details[fmt.Sprintf("line_items[%d].quantity", i)] = "must not be negative"
		}
		if in.Price < 0 {
			details[fmt.Sprintf("line_items[%d].price", i)] = "must not be negative"
		}
	}
	return details
}

// validateForFinalize enforces the stricter finalize rules: every item
// needs a non-negative quantity, an expiry date, and a positive price.
func validateForFinalize(items []*repository.LineItem) map[string]string {
	details := map[string]string{}
	for i, item := range items {
		if item.Quantity < 0 {
			details[fmt.Sprintf("line_items[%d].quantity", i)] = "must not be negative"
		}
		if item.ExpiryDate == nil {
			details[fmt.Sprintf("line_items[%d].expiry_date", i)] = "required to finalize"
		}
		if item.Price <= 0 {
			details[fmt.Sprintf("line_items[%d].price", i)] = "must be positive to finalize"
		}
	}
	return details
}

// overallPrice sums line-item totals. Miscellaneous amount is tracked
// separately and not included.
func overallPrice(items []*repository.LineItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.TotalAmount
	}
	return sum
}

// snapshotBatch deep-copies the fields that participate in diffing
func snapshotBatch(b *repository.Batch) *repository.Batch {
	prior := *b
	prior.Attachments = append(pq.StringArray{}, b.Attachments...)
	prior.LineItems = make([]*repository.LineItem, len(b.LineItems))
	for i, item := range b.LineItems {
		copied := *item
		prior.LineItems[i] = &copied
	}
	return &prior
}

// computeChanges produces the field-level diff between two batch states.
// Line items are matched by position; added and removed items show up as
// transitions from/to "(none)".
func computeChanges(prior, current *repository.Batch) []repository.FieldChange {
	var changes []repository.FieldChange

	add := func(field, oldVal, newVal string) {
		if oldVal != newVal {
			changes = append(changes, repository.FieldChange{Field: field, OldValue: oldVal, NewValue: newVal})
		}
	}

	add("bill_id", prior.BillID, current.BillID)
	add("miscellaneous_amount", formatAmount(prior.MiscellaneousAmount), formatAmount(current.MiscellaneousAmount))
	add("draft_note", prior.DraftNote, current.DraftNote)
	add("attachments", strings.Join(prior.Attachments, ","), strings.Join(current.Attachments, ","))
	add("is_draft", fmt.Sprintf("%t", prior.IsDraft), fmt.Sprintf("%t", current.IsDraft))
	add("overall_price", formatAmount(prior.OverallPrice), formatAmount(current.OverallPrice))

	max := len(prior.LineItems)
	if len(current.LineItems) > max {
		max = len(current.LineItems)
	}

	for i := 0; i < max; i++ {
		var before, after *repository.LineItem
		if i < len(prior.LineItems) {
			before = prior.LineItems[i]
		}
		if i < len(current.LineItems) {
			after = current.LineItems[i]
		}

		switch {
		case before == nil:
			add(fmt.Sprintf("line_items[%d]", i), "(none)", describeLineItem(after))
		case after == nil:
			add(fmt.Sprintf("line_items[%d]", i), describeLineItem(before), "(none)")
		default:
			prefix := fmt.Sprintf("line_items[%d]", i)
			add(prefix+".medicine", before.MedicineName, after.MedicineName)
			add(prefix+".quantity", fmt.Sprintf("%d", before.Quantity), fmt.Sprintf("%d", after.Quantity))
			add(prefix+".price", formatAmount(before.Price), formatAmount(after.Price))
			add(prefix+".expiry_date", formatDate(before.ExpiryDate), formatDate(after.ExpiryDate))
			add(prefix+".total_amount", formatAmount(before.TotalAmount), formatAmount(after.TotalAmount))
		}
	}

	return changes
}

// summarizeChanges renders a short human-readable summary for the
// activity details column.
func summarizeChanges(changes []repository.FieldChange) string {
	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.Field
	}
	return fmt.Sprintf("Updated %s", strings.Join(fields, ", "))
}

func describeLineItem(item *repository.LineItem) string {
	return fmt.Sprintf("%s x%d @ %s", item.MedicineName, item.Quantity, formatAmount(item.Price))
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "(none)"
	}
	return t.Format("2006-01-02")
}
